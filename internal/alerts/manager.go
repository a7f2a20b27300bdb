package alerts

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/blood"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/store"
	"github.com/bloodlink-dev/bloodlink/internal/types"
)

// casRetries bounds the optimistic-concurrency retry loop on a single
// operation. Contention beyond this surfaces as ConflictError to the caller.
const casRetries = 5

// HospitalDirectory supplies the hospital profile an alert inherits its
// location from.
type HospitalDirectory interface {
	GetHospital(ctx context.Context, id uint) (*models.Hospital, error)
}

// EventSink receives lifecycle events. AlertCreated fires strictly after the
// alert row is committed.
type EventSink interface {
	AlertCreated(alert models.Alert)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(models.Alert)

func (f EventSinkFunc) AlertCreated(alert models.Alert) { f(alert) }

type Config struct {
	TTL       time.Duration // alert age after which ExpireStale applies
	Retention time.Duration // terminal alerts older than this are archived
}

// Manager owns the alert state machine. All mutations go through its
// transition methods; nothing else writes alert rows.
type Manager struct {
	alerts    store.AlertStore
	hospitals HospitalDirectory
	events    EventSink
	cfg       Config
	log       *logrus.Logger
}

func NewManager(alerts store.AlertStore, hospitals HospitalDirectory, events EventSink, cfg Config, log *logrus.Logger) *Manager {
	return &Manager{
		alerts:    alerts,
		hospitals: hospitals,
		events:    events,
		cfg:       cfg,
		log:       log,
	}
}

// SetEventSink installs the sink after construction. The dispatcher depends
// on the manager, so the sink that triggers dispatch is wired last.
func (m *Manager) SetEventSink(events EventSink) {
	m.events = events
}

var statusRank = map[models.AlertStatus]int{
	models.AlertActive:             0,
	models.AlertMatched:            1,
	models.AlertPartiallyFulfilled: 2,
	models.AlertFulfilled:          3,
}

// canTransition encodes the forward-only state graph. Cancelled is reachable
// from any non-terminal state, expired from any expirable one.
func canTransition(from, to models.AlertStatus) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case models.AlertCancelled, models.AlertExpired:
		return true
	default:
		return statusRank[to] > statusRank[from]
	}
}

// CreateAlert validates and persists a new alert, then emits the created
// event for the dispatcher.
func (m *Manager) CreateAlert(ctx context.Context, hospitalID uint, bloodGroup string, unitsRequired int) (*models.Alert, error) {
	group, err := blood.Parse(bloodGroup)
	if err != nil {
		return nil, apperrors.Validation("%v", err)
	}
	if unitsRequired <= 0 {
		return nil, apperrors.Validation("units_required must be positive, got %d", unitsRequired)
	}

	hospital, err := m.hospitals.GetHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if !hospital.HasLocation {
		return nil, apperrors.Validation("hospital %d has no registered location", hospitalID)
	}

	alert := &models.Alert{
		HospitalID:    hospital.ID,
		BloodGroup:    group.String(),
		UnitsRequired: unitsRequired,
		Latitude:      hospital.Latitude,
		Longitude:     hospital.Longitude,
		Status:        models.AlertActive,
	}
	if err := m.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	m.log.WithFields(logrus.Fields{
		"alert_id":       alert.ID,
		"hospital_id":    hospital.ID,
		"blood_group":    alert.BloodGroup,
		"units_required": alert.UnitsRequired,
	}).Info("Alert created")

	if m.events != nil {
		m.events.AlertCreated(*alert)
	}
	return alert, nil
}

// RecordFulfillment atomically credits units against the alert, capping at
// units_required, and advances the status. Safe to race: the version check
// serializes concurrent fulfillments.
func (m *Manager) RecordFulfillment(ctx context.Context, alertID uint, units int) (*models.Alert, error) {
	if units <= 0 {
		return nil, apperrors.Validation("units must be positive, got %d", units)
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		alert, err := m.alerts.GetAlert(ctx, alertID)
		if err != nil {
			return nil, err
		}
		if alert.Status.Terminal() {
			return nil, apperrors.InvalidState("alert %d is %s, fulfillment closed", alertID, alert.Status)
		}

		add := units
		if remaining := alert.UnitsRemaining(); add > remaining {
			add = remaining
		}
		alert.UnitsFulfilled += add

		next := models.AlertPartiallyFulfilled
		if alert.UnitsFulfilled == alert.UnitsRequired {
			next = models.AlertFulfilled
		}
		if !canTransition(alert.Status, next) && alert.Status != next {
			return nil, apperrors.InvalidState("alert %d cannot move %s -> %s", alertID, alert.Status, next)
		}
		alert.Status = next

		err = m.alerts.UpdateAlertCAS(ctx, alert, alert.Version)
		if err == nil {
			m.log.WithFields(logrus.Fields{
				"alert_id":        alert.ID,
				"units_fulfilled": alert.UnitsFulfilled,
				"units_required":  alert.UnitsRequired,
				"status":          alert.Status,
			}).Info("Fulfillment recorded")
			return alert, nil
		}
		if !apperrors.Is(err, apperrors.KindConflict) {
			return nil, err
		}
	}
	return nil, apperrors.Conflict("alert %d: too much contention recording fulfillment", alertID)
}

// MarkMatched advances an active alert to matched after a dispatch round
// created intents. A no-op when the alert already progressed further.
func (m *Manager) MarkMatched(ctx context.Context, alertID uint) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		alert, err := m.alerts.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if alert.Status != models.AlertActive {
			return nil
		}
		alert.Status = models.AlertMatched

		err = m.alerts.UpdateAlertCAS(ctx, alert, alert.Version)
		if err == nil {
			return nil
		}
		if !apperrors.Is(err, apperrors.KindConflict) {
			return err
		}
	}
	return apperrors.Conflict("alert %d: too much contention marking matched", alertID)
}

// Cancel closes an alert. Only the owning hospital or an admin may cancel.
func (m *Manager) Cancel(ctx context.Context, alertID uint, actor types.Identity) (*models.Alert, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		alert, err := m.alerts.GetAlert(ctx, alertID)
		if err != nil {
			return nil, err
		}

		switch actor.Role {
		case types.RoleAdmin:
			// always allowed
		case types.RoleHospital:
			if alert.HospitalID != actor.ID {
				return nil, apperrors.Forbidden("hospital %d does not own alert %d", actor.ID, alertID)
			}
		case types.RoleDonor:
			return nil, apperrors.Forbidden("donors cannot cancel alerts")
		default:
			return nil, apperrors.Forbidden("unknown role %q", actor.Role)
		}

		if alert.Status.Terminal() {
			return nil, apperrors.InvalidState("alert %d is already %s", alertID, alert.Status)
		}
		alert.Status = models.AlertCancelled

		err = m.alerts.UpdateAlertCAS(ctx, alert, alert.Version)
		if err == nil {
			m.log.WithFields(logrus.Fields{"alert_id": alertID, "actor_role": actor.Role}).Info("Alert cancelled")
			return alert, nil
		}
		if !apperrors.Is(err, apperrors.KindConflict) {
			return nil, err
		}
	}
	return nil, apperrors.Conflict("alert %d: too much contention cancelling", alertID)
}

// ExpireStale transitions alerts older than the TTL to expired. Idempotent:
// already-expired alerts are never selected again, and concurrent sweeps lose
// the version race harmlessly. Individual failures are logged and skipped.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := m.alerts.ListExpirable(ctx, now.Add(-m.cfg.TTL))
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		alert := stale[i]
		if !canTransition(alert.Status, models.AlertExpired) {
			continue
		}
		alert.Status = models.AlertExpired
		if err := m.alerts.UpdateAlertCAS(ctx, &alert, alert.Version); err != nil {
			if apperrors.Is(err, apperrors.KindConflict) || apperrors.Is(err, apperrors.KindNotFound) {
				continue
			}
			m.log.WithError(err).WithField("alert_id", alert.ID).Warn("Expire sweep: skipping alert")
			continue
		}
		expired++
	}

	if expired > 0 {
		m.log.WithField("expired", expired).Info("Expire sweep finished")
	}
	return expired, nil
}

// SweepRetention archives terminal alerts past the retention window.
func (m *Manager) SweepRetention(ctx context.Context, now time.Time) (int64, error) {
	return m.alerts.ArchiveTerminalBefore(ctx, now.Add(-m.cfg.Retention))
}
