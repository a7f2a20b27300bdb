package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/types"
	"github.com/bloodlink-dev/bloodlink/internal/utils"
)

type IntentResponseRequest struct {
	Status string `json:"status" binding:"required"`
}

// RecordIntentResponse lets a donor answer a notification they received.
func RecordIntentResponse(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	intentID, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid intent ID"})
		return
	}

	var req IntentResponseRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	intent, err := Store.GetIntent(ctx.Request.Context(), intentID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	if actor.Role == types.RoleDonor && intent.DonorID != actor.ID {
		respondError(ctx, apperrors.Forbidden("intent %d was not addressed to donor %d", intentID, actor.ID))
		return
	}

	resp, err := Tracker.RecordResponse(ctx.Request.Context(), intentID, models.ResponseStatus(req.Status))
	if err != nil {
		respondError(ctx, err)
		return
	}

	if alert, err := Store.GetAlert(ctx.Request.Context(), resp.AlertID); err == nil {
		BroadcastAlertUpdate(alert)
	}

	ctx.JSON(http.StatusOK, resp)
}

// ContactDonor records that the hospital reached out to a responding donor.
func ContactDonor(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	responseID, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid response ID"})
		return
	}

	resp, err := Store.GetResponse(ctx.Request.Context(), responseID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	if err := requireAlertAccess(ctx, resp.AlertID, actor); err != nil {
		respondError(ctx, err)
		return
	}

	updated, err := Tracker.RecordResponse(ctx.Request.Context(), resp.IntentID, models.ResponseContacted)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, updated)
}
