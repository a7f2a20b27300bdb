package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/bloodlink-dev/bloodlink/db"
	"github.com/bloodlink-dev/bloodlink/internal/blood"
	"github.com/bloodlink-dev/bloodlink/internal/models"
)

type RegisterDonorRequest struct {
	Name           string         `json:"name" binding:"required"`
	Email          string         `json:"email" binding:"required,email"`
	Password       string         `json:"password" binding:"required,min=6"`
	Phone          string         `json:"phone" binding:"required"`
	BloodGroup     string         `json:"blood_group" binding:"required"`
	City           string         `json:"city"`
	Latitude       float64        `json:"lat"`
	Longitude      float64        `json:"lon"`
	LastDonationAt *time.Time     `json:"last_donation_at"`
	ContactInfo    map[string]any `json:"contact_info"`
}

type RegisterHospitalRequest struct {
	Name               string   `json:"name" binding:"required"`
	Email              string   `json:"email" binding:"required,email"`
	Password           string   `json:"password" binding:"required,min=6"`
	Phone              string   `json:"phone" binding:"required"`
	Address            string   `json:"address"`
	RegistrationNumber string   `json:"registration_number" binding:"required"`
	Latitude           *float64 `json:"lat"`
	Longitude          *float64 `json:"lon"`
}

func RegisterDonor(ctx *gin.Context) {
	var req RegisterDonorRequest

	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	group, err := blood.Parse(req.BloodGroup)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := db.DB.Model(&models.Donor{}).
		Where("email = ? OR phone = ?", email, req.Phone).
		Count(&count).Error; err != nil {
		log.Printf("Database error when checking existing donor: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if count > 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "An account with this email or phone already exists"})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	donor := models.Donor{
		Name:           req.Name,
		Email:          email,
		PasswordHash:   string(passwordHash),
		Phone:          req.Phone,
		BloodGroup:     group.String(),
		City:           req.City,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		LastDonationAt: req.LastDonationAt,
		Available:      true,
	}
	if req.ContactInfo != nil {
		if raw, err := json.Marshal(req.ContactInfo); err == nil {
			donor.ContactInfo = datatypes.JSON(raw)
		}
	}

	if err := db.DB.Create(&donor).Error; err != nil {
		log.Printf("Failed to create donor: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":  "Donor registered successfully",
		"donor_id": donor.ID,
	})
}

func RegisterHospital(ctx *gin.Context) {
	var req RegisterHospitalRequest

	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := db.DB.Model(&models.Hospital{}).
		Where("email = ? OR phone = ? OR registration_number = ?", email, req.Phone, req.RegistrationNumber).
		Count(&count).Error; err != nil {
		log.Printf("Database error when checking existing hospital: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if count > 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "An account with this email, phone, or registration number already exists"})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	hospital := models.Hospital{
		Name:               req.Name,
		Email:              email,
		PasswordHash:       string(passwordHash),
		Phone:              req.Phone,
		Address:            req.Address,
		RegistrationNumber: req.RegistrationNumber,
	}
	if req.Latitude != nil && req.Longitude != nil {
		hospital.Latitude = *req.Latitude
		hospital.Longitude = *req.Longitude
		hospital.HasLocation = true
	}

	if err := db.DB.Create(&hospital).Error; err != nil {
		log.Printf("Failed to create hospital: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message":     "Hospital registered successfully",
		"hospital_id": hospital.ID,
	})
}
