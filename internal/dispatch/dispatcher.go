package dispatch

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/blood"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/services"
	"github.com/bloodlink-dev/bloodlink/internal/store"
)

// AlertLifecycle is the slice of the lifecycle manager the dispatcher needs.
type AlertLifecycle interface {
	MarkMatched(ctx context.Context, alertID uint) error
}

// HospitalDirectory supplies the hospital name for notification summaries.
type HospitalDirectory interface {
	GetHospital(ctx context.Context, id uint) (*models.Hospital, error)
}

type Config struct {
	BatchSize        int           // max candidates notified per round
	MaxRetries       int           // extra rounds allowed per alert after delivery failures
	OverNotifyFactor float64       // active intents may not exceed units_required * factor
	RadiusKm         float64       // donor search radius
	Cooldown         time.Duration // donor donation cooldown
	ExpandCompatible bool          // use the ABO/Rh compatibility table
}

// Report summarizes one dispatch call, possibly spanning several rounds.
type Report struct {
	BatchID   string `json:"batch_id"`
	Created   int    `json:"created"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Rounds    int    `json:"rounds"`
}

// Dispatcher matches an alert against the donor index and emits notification
// intents. Intents are created before delivery is attempted, so a crashed or
// cancelled round leaves an accurate at-least-once record behind.
type Dispatcher struct {
	alerts    store.AlertStore
	intents   store.IntentStore
	responses store.ResponseStore
	index     store.DonorIndex
	hospitals HospitalDirectory
	lifecycle AlertLifecycle
	notifier  services.Notifier
	cfg       Config
	log       *logrus.Logger
}

func NewDispatcher(
	alerts store.AlertStore,
	intents store.IntentStore,
	responses store.ResponseStore,
	index store.DonorIndex,
	hospitals HospitalDirectory,
	lifecycle AlertLifecycle,
	notifier services.Notifier,
	cfg Config,
	log *logrus.Logger,
) *Dispatcher {
	return &Dispatcher{
		alerts:    alerts,
		intents:   intents,
		responses: responses,
		index:     index,
		hospitals: hospitals,
		lifecycle: lifecycle,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
	}
}

// Dispatch runs one dispatch round for the alert and, while deliveries fail
// and the retry budget allows, follow-up rounds against the next-best
// candidates.
func (d *Dispatcher) Dispatch(ctx context.Context, alertID uint) (Report, error) {
	report := Report{BatchID: uuid.NewString()}

	round, err := d.dispatchRound(ctx, alertID, report.BatchID)
	report.merge(round)
	if err != nil {
		return report, err
	}

	for round.Failed > 0 {
		ok, err := d.consumeRetryBudget(ctx, alertID)
		if err != nil || !ok {
			return report, err
		}
		round, err = d.dispatchRound(ctx, alertID, report.BatchID)
		report.merge(round)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (r *Report) merge(round Report) {
	r.Created += round.Created
	r.Delivered += round.Delivered
	r.Failed += round.Failed
	r.Skipped += round.Skipped
	r.Rounds++
}

// dispatchRound creates and delivers intents for one batch of candidates.
func (d *Dispatcher) dispatchRound(ctx context.Context, alertID uint, batchID string) (Report, error) {
	report := Report{BatchID: batchID}

	alert, err := d.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return report, err
	}
	if alert.Status.Terminal() {
		return report, apperrors.InvalidState("alert %d is %s, not dispatchable", alertID, alert.Status)
	}

	batch, err := d.notifyBudget(ctx, alert)
	if err != nil || batch == 0 {
		return report, err
	}

	group, err := blood.Parse(alert.BloodGroup)
	if err != nil {
		return report, apperrors.Validation("alert %d: %v", alertID, err)
	}

	candidates, err := d.index.FindCandidates(ctx, store.CandidateQuery{
		AlertID:    alert.ID,
		Groups:     blood.CompatibleDonors(group, d.cfg.ExpandCompatible),
		Latitude:   alert.Latitude,
		Longitude:  alert.Longitude,
		RadiusKm:   d.cfg.RadiusKm,
		Cooldown:   d.cfg.Cooldown,
		Now:        time.Now(),
		ExcludeIDs: d.declinedDonors(ctx, alert.ID),
		Limit:      batch,
	})
	if err != nil {
		return report, err
	}
	if len(candidates) == 0 {
		d.log.WithField("alert_id", alert.ID).Info("Dispatch found no eligible donors")
		return report, nil
	}

	hospitalName := ""
	if hospital, err := d.hospitals.GetHospital(ctx, alert.HospitalID); err == nil {
		hospitalName = hospital.Name
	}

	type delivery struct {
		intent  models.NotificationIntent
		contact services.Contact
		summary services.AlertSummary
	}
	var deliveries []delivery

	for _, cand := range candidates {
		// Cancellation leaves already-created intents in place; the response
		// tracker resolves them naturally.
		select {
		case <-ctx.Done():
			d.log.WithField("alert_id", alert.ID).Warn("Dispatch cancelled mid-batch, created intents kept")
			return report, apperrors.Dependency(true, "dispatch cancelled", ctx.Err())
		default:
		}

		intent := models.NotificationIntent{
			AlertID:      alert.ID,
			DonorID:      cand.Donor.ID,
			BatchID:      batchID,
			Status:       models.IntentPending,
			DispatchedAt: time.Now(),
		}
		if err := d.intents.CreateIntent(ctx, &intent); err != nil {
			if apperrors.Is(err, apperrors.KindConflict) {
				report.Skipped++
				continue
			}
			d.log.WithError(err).WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"donor_id": cand.Donor.ID,
			}).Error("Dispatch: failed to create intent, continuing batch")
			report.Skipped++
			continue
		}
		report.Created++

		deliveries = append(deliveries, delivery{
			intent:  intent,
			contact: contactFor(cand.Donor),
			summary: services.AlertSummary{
				AlertID:       alert.ID,
				HospitalName:  hospitalName,
				BloodGroup:    alert.BloodGroup,
				UnitsRequired: alert.UnitsRequired,
				DistanceKm:    cand.DistanceKm,
				IntentID:      intent.ID,
			},
		})
	}

	if report.Created > 0 {
		if err := d.lifecycle.MarkMatched(ctx, alert.ID); err != nil {
			d.log.WithError(err).WithField("alert_id", alert.ID).Warn("Dispatch: failed to mark alert matched")
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		failed    int
	)
	for _, dv := range deliveries {
		wg.Add(1)
		go func(dv delivery) {
			defer wg.Done()

			result, err := d.notifier.Send(ctx, dv.contact, dv.summary)
			if err != nil || !result.Delivered {
				reason := result.Detail
				if err != nil {
					reason = err.Error()
				}
				if markErr := d.markIntent(ctx, dv.intent.ID, models.IntentFailed, reason); markErr != nil {
					d.log.WithError(markErr).WithField("intent_id", dv.intent.ID).Error("Dispatch: failed to mark intent failed")
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			if markErr := d.markIntent(ctx, dv.intent.ID, models.IntentDelivered, ""); markErr != nil {
				d.log.WithError(markErr).WithField("intent_id", dv.intent.ID).Error("Dispatch: failed to mark intent delivered")
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(dv)
	}
	wg.Wait()

	report.Delivered = delivered
	report.Failed = failed

	d.log.WithFields(logrus.Fields{
		"alert_id":  alert.ID,
		"batch_id":  batchID,
		"created":   report.Created,
		"delivered": report.Delivered,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	}).Info("Dispatch round finished")

	return report, nil
}

// notifyBudget caps the batch against both the configured batch size and the
// over-notify limit on outstanding active intents.
func (d *Dispatcher) notifyBudget(ctx context.Context, alert *models.Alert) (int, error) {
	outstanding, err := d.intents.CountActiveIntents(ctx, alert.ID)
	if err != nil {
		return 0, err
	}
	maxActive := int(math.Ceil(float64(alert.UnitsRequired) * d.cfg.OverNotifyFactor))
	budget := maxActive - outstanding
	if budget <= 0 {
		return 0, nil
	}
	if budget > d.cfg.BatchSize {
		budget = d.cfg.BatchSize
	}
	return budget, nil
}

// consumeRetryBudget atomically claims one re-dispatch attempt for the alert.
// Returns false when the budget is exhausted or the alert went terminal.
func (d *Dispatcher) consumeRetryBudget(ctx context.Context, alertID uint) (bool, error) {
	for attempt := 0; attempt < 5; attempt++ {
		alert, err := d.alerts.GetAlert(ctx, alertID)
		if err != nil {
			return false, err
		}
		if alert.Status.Terminal() || alert.RedispatchAttempts >= d.cfg.MaxRetries {
			return false, nil
		}
		alert.RedispatchAttempts++
		err = d.alerts.UpdateAlertCAS(ctx, alert, alert.Version)
		if err == nil {
			return true, nil
		}
		if !apperrors.Is(err, apperrors.KindConflict) {
			return false, err
		}
	}
	return false, nil
}

// MarkDelivered records a delivery confirmation from the gateway. A repeated
// confirmation is a no-op; a confirmation for an intent already recorded as
// failed conflicts, the outcome is final once written.
func (d *Dispatcher) MarkDelivered(ctx context.Context, intentID uint) error {
	intent, err := d.intents.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Status == models.IntentDelivered {
		return nil
	}
	return d.markIntent(ctx, intentID, models.IntentDelivered, "")
}

// MarkFailed records a delivery failure and, within the retry budget,
// re-dispatches to the next-best candidates. A repeated failure report is a
// no-op and never consumes budget twice.
func (d *Dispatcher) MarkFailed(ctx context.Context, intentID uint, reason string) error {
	intent, err := d.intents.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Status == models.IntentFailed {
		return nil
	}
	if err := d.markIntent(ctx, intentID, models.IntentFailed, reason); err != nil {
		return err
	}

	ok, err := d.consumeRetryBudget(ctx, intent.AlertID)
	if err != nil || !ok {
		return err
	}
	if _, err := d.dispatchRound(ctx, intent.AlertID, uuid.NewString()); err != nil {
		d.log.WithError(err).WithField("alert_id", intent.AlertID).Warn("Re-dispatch after delivery failure did not complete")
	}
	return nil
}

// RetrySweep re-dispatches open alerts that still have failed intents and
// retry budget left. Invoked periodically by the scheduler; per-alert
// failures are logged and skipped.
func (d *Dispatcher) RetrySweep(ctx context.Context) {
	open, err := d.alerts.ListAlertsByStatus(ctx,
		models.AlertActive, models.AlertMatched, models.AlertPartiallyFulfilled)
	if err != nil {
		d.log.WithError(err).Error("Retry sweep: failed to list open alerts")
		return
	}

	for _, alert := range open {
		if alert.RedispatchAttempts >= d.cfg.MaxRetries {
			continue
		}
		intents, err := d.intents.ListIntentsByAlert(ctx, alert.ID)
		if err != nil {
			d.log.WithError(err).WithField("alert_id", alert.ID).Warn("Retry sweep: skipping alert")
			continue
		}
		hasFailed := false
		for _, in := range intents {
			if in.Status == models.IntentFailed {
				hasFailed = true
				break
			}
		}
		if !hasFailed {
			continue
		}
		ok, err := d.consumeRetryBudget(ctx, alert.ID)
		if err != nil || !ok {
			continue
		}
		if _, err := d.dispatchRound(ctx, alert.ID, uuid.NewString()); err != nil {
			d.log.WithError(err).WithField("alert_id", alert.ID).Warn("Retry sweep: dispatch round failed")
		}
	}
}

// markIntent records the delivery outcome of a pending intent. The
// conditional update rejects a second outcome for the same intent.
func (d *Dispatcher) markIntent(ctx context.Context, intentID uint, status models.IntentStatus, reason string) error {
	return d.intents.UpdateIntentStatus(ctx, intentID, models.IntentPending, status, reason)
}

// declinedDonors lists donors that turned the alert down. The donor index
// already skips anyone holding an intent, passing them explicitly keeps the
// exclusion independent of the index implementation.
func (d *Dispatcher) declinedDonors(ctx context.Context, alertID uint) []uint {
	resps, err := d.responses.ListResponsesByAlert(ctx, alertID)
	if err != nil {
		d.log.WithError(err).WithField("alert_id", alertID).Warn("Dispatch: could not list responses for exclusion")
		return nil
	}
	var ids []uint
	for _, r := range resps {
		if r.Status == models.ResponseDeclined {
			ids = append(ids, r.DonorID)
		}
	}
	return ids
}

// contactFor extracts delivery details from the donor profile.
func contactFor(donor models.Donor) services.Contact {
	contact := services.Contact{
		DonorID: donor.ID,
		Name:    donor.Name,
		Phone:   donor.Phone,
	}
	if len(donor.ContactInfo) > 0 {
		var info struct {
			Webhook string `json:"webhook"`
			SMS     string `json:"sms"`
		}
		if err := json.Unmarshal(donor.ContactInfo, &info); err == nil {
			contact.Webhook = info.Webhook
			if info.SMS != "" {
				contact.Phone = info.SMS
			}
		}
	}
	return contact
}
