package responses

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/store"
)

// Fulfiller is the slice of the lifecycle manager the tracker feeds completed
// donations into.
type Fulfiller interface {
	RecordFulfillment(ctx context.Context, alertID uint, units int) (*models.Alert, error)
}

type Config struct {
	// UnitWeight is how many units one completed response credits.
	UnitWeight int
}

// Tracker records donor replies against notification intents and feeds
// completed donations back into alert fulfillment.
type Tracker struct {
	intents   store.IntentStore
	responses store.ResponseStore
	alerts    store.AlertStore
	fulfiller Fulfiller
	cfg       Config
	log       *logrus.Logger
}

func NewTracker(
	intents store.IntentStore,
	responses store.ResponseStore,
	alerts store.AlertStore,
	fulfiller Fulfiller,
	cfg Config,
	log *logrus.Logger,
) *Tracker {
	return &Tracker{
		intents:   intents,
		responses: responses,
		alerts:    alerts,
		fulfiller: fulfiller,
		cfg:       cfg,
		log:       log,
	}
}

const (
	creditAttempts = 3
	creditBackoff  = 50 * time.Millisecond
)

var responseRank = map[models.ResponseStatus]int{
	models.ResponseAvailable: 0,
	models.ResponseContacted: 1,
	models.ResponseConfirmed: 2,
	models.ResponseCompleted: 3,
}

func validResponseStatus(s models.ResponseStatus) bool {
	if s == models.ResponseDeclined {
		return true
	}
	_, ok := responseRank[s]
	return ok
}

func terminalResponse(s models.ResponseStatus) bool {
	return s == models.ResponseCompleted || s == models.ResponseDeclined
}

// RecordResponse applies one donor reply to an intent. The first reply
// creates the response record; later replies must move strictly forward
// through the chain (declining is allowed from any non-terminal state).
// Stale or out-of-order updates fail with ConflictError and change nothing.
func (t *Tracker) RecordResponse(ctx context.Context, intentID uint, newStatus models.ResponseStatus) (*models.DonorResponse, error) {
	if !validResponseStatus(newStatus) {
		return nil, apperrors.Validation("unknown response status %q", newStatus)
	}

	intent, err := t.intents.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	// When the fulfillment credit cannot be applied, the response falls back
	// to this state so a later retry can still complete it.
	reopenTo := models.ResponseConfirmed

	resp, err := t.responses.GetResponseByIntent(ctx, intentID)
	switch {
	case apperrors.Is(err, apperrors.KindNotFound):
		resp = &models.DonorResponse{
			IntentID:    intentID,
			AlertID:     intent.AlertID,
			DonorID:     intent.DonorID,
			Status:      newStatus,
			RespondedAt: now,
		}
		if err := t.responses.CreateResponse(ctx, resp); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if terminalResponse(resp.Status) {
			return nil, apperrors.Conflict("intent %d response is already %s", intentID, resp.Status)
		}
		if newStatus != models.ResponseDeclined && responseRank[newStatus] <= responseRank[resp.Status] {
			return nil, apperrors.Conflict("intent %d: stale transition %s -> %s", intentID, resp.Status, newStatus)
		}
		reopenTo = resp.Status
		resp.Status = newStatus
		resp.RespondedAt = now
		if err := t.responses.UpdateResponseCAS(ctx, resp, resp.Version); err != nil {
			return nil, err
		}
	}

	t.log.WithFields(logrus.Fields{
		"intent_id": intentID,
		"alert_id":  intent.AlertID,
		"donor_id":  intent.DonorID,
		"status":    newStatus,
	}).Info("Donor response recorded")

	if newStatus == models.ResponseCompleted {
		if err := t.fulfill(ctx, intent.AlertID); err != nil {
			t.reopen(ctx, resp, reopenTo)
			return nil, err
		}
	}
	return resp, nil
}

// reopen rolls a completed response back to a non-terminal state after the
// fulfillment credit could not be applied, so the donor can retry.
func (t *Tracker) reopen(ctx context.Context, resp *models.DonorResponse, to models.ResponseStatus) {
	reverted := *resp
	reverted.Status = to
	if err := t.responses.UpdateResponseCAS(ctx, &reverted, resp.Version); err != nil {
		t.log.WithError(err).WithField("response_id", resp.ID).Error("Could not reopen response after failed fulfillment credit")
		return
	}
	*resp = reverted
}

// fulfill credits one completed donation. Responses tied to cancelled or
// expired alerts are kept for audit but never fulfill.
func (t *Tracker) fulfill(ctx context.Context, alertID uint) error {
	alert, err := t.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if alert.Status == models.AlertCancelled || alert.Status == models.AlertExpired {
		t.log.WithFields(logrus.Fields{
			"alert_id": alertID,
			"status":   alert.Status,
		}).Info("Completed response against closed alert, fulfillment skipped")
		return nil
	}

	units := t.cfg.UnitWeight
	if units <= 0 {
		units = 1
	}

	var lastErr error
	for attempt := 0; attempt < creditAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt) * creditBackoff):
			}
		}
		_, err := t.fulfiller.RecordFulfillment(ctx, alertID, units)
		if err == nil {
			return nil
		}
		if apperrors.Is(err, apperrors.KindInvalidState) {
			t.log.WithField("alert_id", alertID).Info("Alert closed before fulfillment credit, skipped")
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		lastErr = err
		t.log.WithError(err).WithField("alert_id", alertID).Warn("Fulfillment credit failed, retrying")
	}
	return lastErr
}
