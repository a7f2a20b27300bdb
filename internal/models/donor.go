package models

import (
	"time"

	"gorm.io/datatypes"
)

type Donor struct {
	BaseModel

	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Phone        string `gorm:"uniqueIndex;not null" json:"phone"`
	BloodGroup   string `gorm:"not null;index" json:"blood_group"`
	City         string `json:"city"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`

	// LastDonationAt drives the cooldown filter; nil means never donated.
	LastDonationAt *time.Time `json:"last_donation_at"`

	// Available is the donor's own opt-in flag. Cooldown eligibility is
	// computed at query time, never stored.
	Available bool `gorm:"default:true" json:"available"`

	// ContactInfo holds per-channel delivery details, e.g. {"sms": "...", "webhook": "..."}.
	ContactInfo datatypes.JSON `gorm:"type:jsonb" json:"contact_info"`

	// Relationships
	NotificationIntents []NotificationIntent `gorm:"foreignKey:DonorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
