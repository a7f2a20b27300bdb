package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/db"
	"github.com/bloodlink-dev/bloodlink/internal/auth"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/types"
)

// AuthMiddleware verifies the bearer token and loads the actor from the role
// store the token names. Downstream handlers trust the resulting identity.
func AuthMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")

		if authHeader == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token is required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)

		if len(parts) != 2 || parts[0] != "Bearer" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		identity, err := auth.VerifyJWT(parts[1])
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		actor, err := loadActor(identity)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		ctx.Set(types.ContextUserKey, actor)
		ctx.Next()
	}
}

// RequireRole rejects any actor outside the allowed roles with 403.
func RequireRole(roles ...types.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value, exists := ctx.Get(types.ContextUserKey)
		if !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		actor, ok := value.(types.Actor)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user in context"})
			return
		}

		for _, role := range roles {
			if actor.Role == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Operation not permitted for this role"})
	}
}

func loadActor(identity types.Identity) (types.Actor, error) {
	actor := types.Actor{ID: identity.ID, Role: identity.Role}

	switch identity.Role {
	case types.RoleDonor:
		var donor models.Donor
		if err := db.DB.First(&donor, identity.ID).Error; err != nil {
			return types.Actor{}, err
		}
		actor.Name, actor.Email = donor.Name, donor.Email
	case types.RoleHospital:
		var hospital models.Hospital
		if err := db.DB.First(&hospital, identity.ID).Error; err != nil {
			return types.Actor{}, err
		}
		actor.Name, actor.Email = hospital.Name, hospital.Email
	case types.RoleAdmin:
		var admin models.Admin
		if err := db.DB.First(&admin, identity.ID).Error; err != nil {
			return types.Actor{}, err
		}
		actor.Name, actor.Email = admin.Name, admin.Email
	}

	return actor, nil
}
