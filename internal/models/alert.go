package models

// AlertStatus is the lifecycle state of a blood alert. Transitions only move
// forward through the graph; cancelled is reachable from any non-terminal
// state, expired from any non-fulfilled non-terminal state.
type AlertStatus string

const (
	AlertActive             AlertStatus = "active"
	AlertMatched            AlertStatus = "matched"
	AlertPartiallyFulfilled AlertStatus = "partially_fulfilled"
	AlertFulfilled          AlertStatus = "fulfilled"
	AlertExpired            AlertStatus = "expired"
	AlertCancelled          AlertStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s AlertStatus) Terminal() bool {
	return s == AlertFulfilled || s == AlertExpired || s == AlertCancelled
}

type Alert struct {
	BaseModel

	HospitalID     uint        `gorm:"not null;index" json:"hospital_id"`
	BloodGroup     string      `gorm:"not null;index" json:"blood_group"`
	UnitsRequired  int         `gorm:"not null" json:"units_required"`
	UnitsFulfilled int         `gorm:"not null;default:0" json:"units_fulfilled"`
	Latitude       float64     `json:"lat"`
	Longitude      float64     `json:"lon"`
	Status         AlertStatus `gorm:"not null;index;default:active" json:"status"`

	// Version guards every mutation with a compare-and-set so concurrent
	// fulfillments and dispatches never lose updates.
	Version int64 `gorm:"not null;default:0" json:"-"`

	// RedispatchAttempts counts extra dispatch rounds triggered by delivery
	// failures, bounded by config.
	RedispatchAttempts int `gorm:"not null;default:0" json:"-"`

	// Relationships
	Hospital            Hospital             `gorm:"foreignKey:HospitalID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
	NotificationIntents []NotificationIntent `gorm:"foreignKey:AlertID;constraint:OnUpdate:Cascade,OnDelete:CASCADE" json:"-"`
}

// UnitsRemaining is the number of units still needed.
func (a *Alert) UnitsRemaining() int {
	if r := a.UnitsRequired - a.UnitsFulfilled; r > 0 {
		return r
	}
	return 0
}
