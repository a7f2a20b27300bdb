package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/internal/alerts"
	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/config"
	"github.com/bloodlink-dev/bloodlink/internal/dispatch"
	"github.com/bloodlink-dev/bloodlink/internal/responses"
	"github.com/bloodlink-dev/bloodlink/internal/store"
)

// Package-level collaborators, wired once at startup.
var (
	Alerts     *alerts.Manager
	Dispatcher *dispatch.Dispatcher
	Tracker    *responses.Tracker
	Store      *store.Store
	Cfg        *config.AppConfig
)

func Init(manager *alerts.Manager, dispatcher *dispatch.Dispatcher, tracker *responses.Tracker, s *store.Store, cfg *config.AppConfig) {
	Alerts = manager
	Dispatcher = dispatcher
	Tracker = tracker
	Store = s
	Cfg = cfg
}

// respondError translates the error taxonomy into HTTP statuses.
func respondError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindForbidden:
		status = http.StatusForbidden
	case apperrors.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindInvalidState:
		status = http.StatusUnprocessableEntity
	case apperrors.KindDependency:
		if apperrors.IsRetryable(err) {
			status = http.StatusServiceUnavailable
		} else {
			status = http.StatusBadGateway
		}
	}

	ctx.JSON(status, gin.H{"error": err.Error()})
}
