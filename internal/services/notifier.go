package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Contact is the delivery address for one donor, extracted from the donor's
// contact_info by the dispatcher.
type Contact struct {
	DonorID uint
	Name    string
	Phone   string
	Webhook string // optional per-donor webhook override
}

// AlertSummary is the message body for one notification.
type AlertSummary struct {
	AlertID       uint    `json:"alert_id"`
	HospitalName  string  `json:"hospital_name"`
	BloodGroup    string  `json:"blood_group"`
	UnitsRequired int     `json:"units_required"`
	DistanceKm    float64 `json:"distance_km"`
	IntentID      uint    `json:"notification_intent_id"`
}

// DeliveryResult reports per-recipient delivery outcome.
type DeliveryResult struct {
	Delivered bool
	Detail    string
}

// Notifier delivers one alert summary to one donor. Implementations may fail
// independently per recipient; the dispatcher treats each failure as
// non-fatal to the batch.
type Notifier interface {
	Send(ctx context.Context, contact Contact, summary AlertSummary) (DeliveryResult, error)
}

// LogNotifier writes deliveries to the log instead of an external gateway.
// Used in development and tests.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Send(ctx context.Context, contact Contact, summary AlertSummary) (DeliveryResult, error) {
	select {
	case <-ctx.Done():
		return DeliveryResult{}, ctx.Err()
	default:
	}

	n.Log.WithFields(logrus.Fields{
		"donor_id":    contact.DonorID,
		"phone":       contact.Phone,
		"alert_id":    summary.AlertID,
		"blood_group": summary.BloodGroup,
	}).Info("Notification delivered (log channel)")

	return DeliveryResult{Delivered: true, Detail: "logged at " + time.Now().Format(time.RFC3339)}, nil
}
