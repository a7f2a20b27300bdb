package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/types"
	"github.com/bloodlink-dev/bloodlink/internal/utils"
)

type CreateAlertRequest struct {
	BloodGroup    string `json:"blood_group" binding:"required"`
	UnitsRequired int    `json:"units_required" binding:"required"`
}

type FulfillmentRequest struct {
	Units int `json:"units"`
}

func CreateAlert(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateAlertRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	alert, err := Alerts.CreateAlert(ctx.Request.Context(), actor.ID, req.BloodGroup, req.UnitsRequired)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, alert)
}

func ListAlerts(ctx *gin.Context) {
	statuses := []models.AlertStatus{
		models.AlertActive,
		models.AlertMatched,
		models.AlertPartiallyFulfilled,
	}
	if ctx.Query("all") == "true" {
		statuses = append(statuses,
			models.AlertFulfilled,
			models.AlertExpired,
			models.AlertCancelled,
		)
	}

	alerts, err := Store.ListAlertsByStatus(ctx.Request.Context(), statuses...)
	if err != nil {
		log.Printf("Failed to list alerts: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, alerts)
}

func ListMyAlerts(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	alerts, err := Store.ListAlertsByHospital(ctx.Request.Context(), actor.ID)
	if err != nil {
		log.Printf("Failed to list alerts for hospital %d: %v", actor.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, alerts)
}

func CancelAlert(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	alert, err := Alerts.Cancel(ctx.Request.Context(), id, actor.Identity())
	if err != nil {
		respondError(ctx, err)
		return
	}

	BroadcastAlertUpdate(alert)
	ctx.JSON(http.StatusOK, alert)
}

func RecordFulfillment(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	if err := requireAlertAccess(ctx, id, actor); err != nil {
		respondError(ctx, err)
		return
	}

	var req FulfillmentRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Units <= 0 {
		req.Units = Cfg.FulfillmentUnits
	}

	alert, err := Alerts.RecordFulfillment(ctx.Request.Context(), id, req.Units)
	if err != nil {
		respondError(ctx, err)
		return
	}

	BroadcastAlertUpdate(alert)
	ctx.JSON(http.StatusOK, alert)
}

func DispatchAlert(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	if err := requireAlertAccess(ctx, id, actor); err != nil {
		respondError(ctx, err)
		return
	}

	report, err := Dispatcher.Dispatch(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, report)
}

func ListAlertResponses(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	id, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert ID"})
		return
	}

	if err := requireAlertAccess(ctx, id, actor); err != nil {
		respondError(ctx, err)
		return
	}

	responses, err := Store.ListResponsesByAlert(ctx.Request.Context(), id)
	if err != nil {
		log.Printf("Failed to list responses for alert %d: %v", id, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, responses)
}

// requireAlertAccess lets admins through and checks ownership for hospitals.
func requireAlertAccess(ctx *gin.Context, alertID uint, actor types.Actor) error {
	if actor.Role == types.RoleAdmin {
		return nil
	}

	alert, err := Store.GetAlert(ctx.Request.Context(), alertID)
	if err != nil {
		return err
	}
	if alert.HospitalID != actor.ID {
		return apperrors.Forbidden("alert %d does not belong to hospital %d", alertID, actor.ID)
	}
	return nil
}
