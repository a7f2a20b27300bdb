package store

import (
	"context"
	"time"

	"github.com/bloodlink-dev/bloodlink/internal/blood"
	"github.com/bloodlink-dev/bloodlink/internal/models"
)

// AlertStore defines persistence operations for alerts. Every mutation is a
// conditional update keyed on the alert version so concurrent writers conflict
// instead of losing updates.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id uint) (*models.Alert, error)
	ListAlertsByHospital(ctx context.Context, hospitalID uint) ([]models.Alert, error)
	ListAlertsByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]models.Alert, error)
	// ListExpirable returns non-terminal alerts created before cutoff.
	ListExpirable(ctx context.Context, cutoff time.Time) ([]models.Alert, error)
	// UpdateAlertCAS persists alert if its stored version still equals
	// expectedVersion, bumping the version. Fails with ConflictError
	// otherwise.
	UpdateAlertCAS(ctx context.Context, alert *models.Alert, expectedVersion int64) error
	// ArchiveTerminalBefore soft-deletes terminal alerts last updated before
	// cutoff and returns how many were archived.
	ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IntentStore defines persistence operations for notification intents.
type IntentStore interface {
	// CreateIntent fails with ConflictError when an intent already exists for
	// the same (alert, donor) pair.
	CreateIntent(ctx context.Context, intent *models.NotificationIntent) error
	GetIntent(ctx context.Context, id uint) (*models.NotificationIntent, error)
	// UpdateIntentStatus moves the intent from one status to another only if
	// it still holds the expected status, failing with ConflictError
	// otherwise. Delivery outcomes are recorded exactly once.
	UpdateIntentStatus(ctx context.Context, id uint, from, to models.IntentStatus, failReason string) error
	CountActiveIntents(ctx context.Context, alertID uint) (int, error)
	ListIntentsByAlert(ctx context.Context, alertID uint) ([]models.NotificationIntent, error)
}

// ResponseStore defines persistence operations for donor responses.
type ResponseStore interface {
	// CreateResponse fails with ConflictError when a response already exists
	// for the intent.
	CreateResponse(ctx context.Context, resp *models.DonorResponse) error
	GetResponse(ctx context.Context, id uint) (*models.DonorResponse, error)
	GetResponseByIntent(ctx context.Context, intentID uint) (*models.DonorResponse, error)
	ListResponsesByAlert(ctx context.Context, alertID uint) ([]models.DonorResponse, error)
	UpdateResponseCAS(ctx context.Context, resp *models.DonorResponse, expectedVersion int64) error
}

// CandidateQuery describes one donor index lookup.
type CandidateQuery struct {
	AlertID    uint
	Groups     []blood.Group
	Latitude   float64
	Longitude  float64
	RadiusKm   float64
	Cooldown   time.Duration
	Now        time.Time
	ExcludeIDs []uint
	Limit      int
}

// Candidate is one eligible donor with its distance from the alert location.
type Candidate struct {
	Donor      models.Donor
	DistanceKm float64
}

// DonorIndex finds eligible donors near a location. Results are ordered by
// ascending distance, then by longest time since last donation (donors who
// have waited longest come first). The sequence is finite and restartable:
// each call re-evaluates eligibility, so cooldown is never served stale.
type DonorIndex interface {
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
}
