package utils

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/internal/types"
)

func GetCurrentActor(ctx *gin.Context) (types.Actor, error) {
	value, exists := ctx.Get(types.ContextUserKey)

	if !exists {
		return types.Actor{}, errors.New("user not authenticated")
	}

	actor, ok := value.(types.Actor)

	if !ok {
		return types.Actor{}, errors.New("invalid user type in context")
	}

	return actor, nil
}

// GetIDParam parses a :name path parameter as an unsigned id.
func GetIDParam(ctx *gin.Context, name string) (uint, error) {
	raw := ctx.Param(name)

	if raw == "" {
		return 0, errors.New(name + " not found")
	}

	id, err := strconv.ParseUint(raw, 10, 32)

	if err != nil {
		return 0, errors.New("invalid " + name)
	}

	return uint(id), nil
}
