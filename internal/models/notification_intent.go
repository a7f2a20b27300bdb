package models

import "time"

// IntentStatus is the delivery state of one notification attempt.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentDelivered IntentStatus = "delivered"
	IntentFailed    IntentStatus = "failed"
)

// Active reports whether the intent still counts against the per-(alert,
// donor) uniqueness constraint and the over-notify budget.
func (s IntentStatus) Active() bool {
	return s == IntentPending || s == IntentDelivered
}

// NotificationIntent records one attempt to notify one donor about one alert.
// The unique index enforces at most one intent per (alert, donor) pair.
type NotificationIntent struct {
	BaseModel

	AlertID      uint         `gorm:"not null;uniqueIndex:idx_alert_donor" json:"alert_id"`
	DonorID      uint         `gorm:"not null;uniqueIndex:idx_alert_donor" json:"donor_id"`
	BatchID      string       `gorm:"not null;index" json:"batch_id"`
	Status       IntentStatus `gorm:"not null;index;default:pending" json:"status"`
	DispatchedAt time.Time    `gorm:"not null" json:"dispatched_at"`
	FailReason   string       `json:"fail_reason,omitempty"`

	// Relationships
	Donor    Donor          `gorm:"foreignKey:DonorID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	Response *DonorResponse `gorm:"foreignKey:IntentID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}
