package models

import "time"

// ResponseStatus is a donor's reply lifecycle for one alert. Moves strictly
// forward through available → contacted → confirmed → completed; declined is
// terminal from any earlier state.
type ResponseStatus string

const (
	ResponseAvailable ResponseStatus = "available"
	ResponseContacted ResponseStatus = "contacted"
	ResponseConfirmed ResponseStatus = "confirmed"
	ResponseCompleted ResponseStatus = "completed"
	ResponseDeclined  ResponseStatus = "declined"
)

// DonorResponse is the audit record of one donor's reply to one notification
// intent. Rows are mutated on status change but never deleted.
type DonorResponse struct {
	BaseModel

	IntentID    uint           `gorm:"not null;uniqueIndex" json:"notification_intent_id"`
	AlertID     uint           `gorm:"not null;index" json:"alert_id"`
	DonorID     uint           `gorm:"not null;index" json:"donor_id"`
	Status      ResponseStatus `gorm:"not null" json:"status"`
	RespondedAt time.Time      `gorm:"not null" json:"responded_at"`

	// Version detects stale or out-of-order updates.
	Version int64 `gorm:"not null;default:0" json:"-"`
}
