package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/bloodlink-dev/bloodlink/db"
	"github.com/bloodlink-dev/bloodlink/internal/blood"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/utils"
)

type UpdateDonorRequest struct {
	Name           *string        `json:"name"`
	Phone          *string        `json:"phone"`
	BloodGroup     *string        `json:"blood_group"`
	City           *string        `json:"city"`
	Latitude       *float64       `json:"lat"`
	Longitude      *float64       `json:"lon"`
	LastDonationAt *time.Time     `json:"last_donation_at"`
	Available      *bool          `json:"available"`
	ContactInfo    map[string]any `json:"contact_info"`
}

func ListDonors(ctx *gin.Context) {
	var donors []models.Donor

	if err := db.DB.Order("created_at DESC").Find(&donors).Error; err != nil {
		log.Printf("Failed to list donors: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, donors)
}

func GetDonorMe(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var donor models.Donor
	if err := db.DB.First(&donor, actor.ID).Error; err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Donor not found"})
		return
	}

	ctx.JSON(http.StatusOK, donor)
}

func UpdateDonorMe(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req UpdateDonorRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var donor models.Donor
	if err := db.DB.First(&donor, actor.ID).Error; err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Donor not found"})
		return
	}

	if req.Name != nil {
		donor.Name = *req.Name
	}
	if req.Phone != nil {
		donor.Phone = *req.Phone
	}
	if req.BloodGroup != nil {
		group, err := blood.Parse(*req.BloodGroup)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		donor.BloodGroup = group.String()
	}
	if req.City != nil {
		donor.City = *req.City
	}
	if req.Latitude != nil {
		donor.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		donor.Longitude = *req.Longitude
	}
	if req.LastDonationAt != nil {
		donor.LastDonationAt = req.LastDonationAt
	}
	if req.Available != nil {
		donor.Available = *req.Available
	}
	if req.ContactInfo != nil {
		if raw, err := json.Marshal(req.ContactInfo); err == nil {
			donor.ContactInfo = datatypes.JSON(raw)
		}
	}

	if err := db.DB.Save(&donor).Error; err != nil {
		log.Printf("Failed to update donor %d: %v", donor.ID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, donor)
}

func DeleteDonor(ctx *gin.Context) {
	id, err := utils.GetIDParam(ctx, "id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid donor ID"})
		return
	}

	result := db.DB.Delete(&models.Donor{}, id)
	if result.Error != nil {
		log.Printf("Failed to delete donor %d: %v", id, result.Error)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if result.RowsAffected == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Donor not found"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Donor deleted successfully"})
}
