package models

type Hospital struct {
	BaseModel

	Name               string  `gorm:"not null" json:"name"`
	Email              string  `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash       string  `gorm:"not null" json:"-"`
	Phone              string  `gorm:"uniqueIndex;not null" json:"phone"`
	Address            string  `json:"address"`
	RegistrationNumber string  `gorm:"uniqueIndex;not null" json:"registration_number"`
	Latitude           float64 `json:"lat"`
	Longitude          float64 `json:"lon"`

	// HasLocation distinguishes a hospital at (0, 0) from one that never
	// supplied coordinates. Alerts cannot be raised without a location.
	HasLocation bool `gorm:"default:false" json:"has_location"`

	// Relationships
	Alerts []Alert `gorm:"foreignKey:HospitalID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
