package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/bloodlink-dev/bloodlink/db"
	"github.com/bloodlink-dev/bloodlink/internal/auth"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/types"
	"github.com/bloodlink-dev/bloodlink/internal/utils"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginUser checks the credential against each role store in turn, the way
// accounts are partitioned by role.
func LoginUser(ctx *gin.Context) {
	var req LoginRequest

	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	id, name, hash, role, found := lookupAccount(email)
	if !found {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := auth.GenerateJWT(id, role, email)
	if err != nil {
		log.Printf("Failed to generate JWT: %v", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user_info": types.Actor{
			ID:    id,
			Name:  name,
			Email: email,
			Role:  role,
		},
	})
}

func lookupAccount(email string) (uint, string, string, types.Role, bool) {
	var donor models.Donor
	err := db.DB.Where("email = ?", email).First(&donor).Error
	if err == nil {
		return donor.ID, donor.Name, donor.PasswordHash, types.RoleDonor, true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", "", "", false
	}

	var hospital models.Hospital
	err = db.DB.Where("email = ?", email).First(&hospital).Error
	if err == nil {
		return hospital.ID, hospital.Name, hospital.PasswordHash, types.RoleHospital, true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", "", "", false
	}

	var admin models.Admin
	if err := db.DB.Where("email = ?", email).First(&admin).Error; err == nil {
		return admin.ID, admin.Name, admin.PasswordHash, types.RoleAdmin, true
	}
	return 0, "", "", "", false
}

func Me(ctx *gin.Context) {
	actor, err := utils.GetCurrentActor(ctx)

	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"user": actor})
}
