package responses

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
)

type fixedIntents struct {
	intents map[uint]models.NotificationIntent
}

func (f *fixedIntents) CreateIntent(ctx context.Context, intent *models.NotificationIntent) error {
	return nil
}

func (f *fixedIntents) GetIntent(ctx context.Context, id uint) (*models.NotificationIntent, error) {
	intent, ok := f.intents[id]
	if !ok {
		return nil, apperrors.NotFound("intent %d not found", id)
	}
	copied := intent
	return &copied, nil
}

func (f *fixedIntents) UpdateIntentStatus(ctx context.Context, id uint, from, to models.IntentStatus, failReason string) error {
	return nil
}

func (f *fixedIntents) CountActiveIntents(ctx context.Context, alertID uint) (int, error) {
	return 0, nil
}

func (f *fixedIntents) ListIntentsByAlert(ctx context.Context, alertID uint) ([]models.NotificationIntent, error) {
	return nil, nil
}

type memResponses struct {
	mu       sync.Mutex
	nextID   uint
	byID     map[uint]models.DonorResponse
	byIntent map[uint]uint
}

func newMemResponses() *memResponses {
	return &memResponses{byID: make(map[uint]models.DonorResponse), byIntent: make(map[uint]uint)}
}

func (m *memResponses) CreateResponse(ctx context.Context, resp *models.DonorResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byIntent[resp.IntentID]; dup {
		return apperrors.Conflict("response already exists for intent %d", resp.IntentID)
	}
	m.nextID++
	resp.ID = m.nextID
	m.byID[resp.ID] = *resp
	m.byIntent[resp.IntentID] = resp.ID
	return nil
}

func (m *memResponses) GetResponse(ctx context.Context, id uint) (*models.DonorResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.byID[id]
	if !ok {
		return nil, apperrors.NotFound("response %d not found", id)
	}
	copied := resp
	return &copied, nil
}

func (m *memResponses) GetResponseByIntent(ctx context.Context, intentID uint) (*models.DonorResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIntent[intentID]
	if !ok {
		return nil, apperrors.NotFound("no response for intent %d", intentID)
	}
	copied := m.byID[id]
	return &copied, nil
}

func (m *memResponses) ListResponsesByAlert(ctx context.Context, alertID uint) ([]models.DonorResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DonorResponse
	for _, resp := range m.byID {
		if resp.AlertID == alertID {
			out = append(out, resp)
		}
	}
	return out, nil
}

func (m *memResponses) UpdateResponseCAS(ctx context.Context, resp *models.DonorResponse, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[resp.ID]
	if !ok {
		return apperrors.NotFound("response %d not found", resp.ID)
	}
	if current.Version != expectedVersion {
		return apperrors.Conflict("response %d was modified concurrently", resp.ID)
	}
	resp.Version = expectedVersion + 1
	m.byID[resp.ID] = *resp
	return nil
}

type fixedAlerts struct {
	alert models.Alert
}

func (f *fixedAlerts) CreateAlert(ctx context.Context, alert *models.Alert) error { return nil }

func (f *fixedAlerts) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	if f.alert.ID != id {
		return nil, apperrors.NotFound("alert %d not found", id)
	}
	copied := f.alert
	return &copied, nil
}

func (f *fixedAlerts) ListAlertsByHospital(ctx context.Context, hospitalID uint) ([]models.Alert, error) {
	return nil, nil
}

func (f *fixedAlerts) ListAlertsByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]models.Alert, error) {
	return nil, nil
}

func (f *fixedAlerts) ListExpirable(ctx context.Context, cutoff time.Time) ([]models.Alert, error) {
	return nil, nil
}

func (f *fixedAlerts) UpdateAlertCAS(ctx context.Context, alert *models.Alert, expectedVersion int64) error {
	return nil
}

func (f *fixedAlerts) ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// recordingFulfiller pops errs first, then falls back to the sticky err.
type recordingFulfiller struct {
	mu       sync.Mutex
	calls    []int
	attempts int
	errs     []error
	err      error
}

func (r *recordingFulfiller) RecordFulfillment(ctx context.Context, alertID uint, units int) (*models.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	r.calls = append(r.calls, units)
	return &models.Alert{}, nil
}

var errDBDown = errors.New("connection refused")

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestTracker(alertStatus models.AlertStatus) (*Tracker, *recordingFulfiller, *memResponses) {
	intents := &fixedIntents{intents: map[uint]models.NotificationIntent{
		10: {BaseModel: models.BaseModel{ID: 10}, AlertID: 1, DonorID: 3, Status: models.IntentDelivered},
	}}
	responses := newMemResponses()
	alert := models.Alert{BaseModel: models.BaseModel{ID: 1}, UnitsRequired: 2, Status: alertStatus}
	fulfiller := &recordingFulfiller{}
	t := NewTracker(intents, responses, &fixedAlerts{alert: alert}, fulfiller, Config{UnitWeight: 1}, testLogger())
	return t, fulfiller, responses
}

func TestRecordResponseForwardChain(t *testing.T) {
	tr, fulfiller, _ := newTestTracker(models.AlertMatched)
	ctx := context.Background()

	chain := []models.ResponseStatus{
		models.ResponseAvailable,
		models.ResponseContacted,
		models.ResponseConfirmed,
		models.ResponseCompleted,
	}
	for _, status := range chain {
		resp, err := tr.RecordResponse(ctx, 10, status)
		if err != nil {
			t.Fatalf("RecordResponse(%s): %v", status, err)
		}
		if resp.Status != status {
			t.Fatalf("status = %s, want %s", resp.Status, status)
		}
	}

	if len(fulfiller.calls) != 1 || fulfiller.calls[0] != 1 {
		t.Fatalf("completed response should credit exactly one unit, calls = %v", fulfiller.calls)
	}
}

func TestRecordResponseRejectsBackwardMoves(t *testing.T) {
	tr, _, _ := newTestTracker(models.AlertMatched)
	ctx := context.Background()

	if _, err := tr.RecordResponse(ctx, 10, models.ResponseConfirmed); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	for _, stale := range []models.ResponseStatus{models.ResponseAvailable, models.ResponseContacted, models.ResponseConfirmed} {
		_, err := tr.RecordResponse(ctx, 10, stale)
		if !apperrors.Is(err, apperrors.KindConflict) {
			t.Errorf("transition confirmed -> %s should conflict, got %v", stale, err)
		}
	}
}

func TestRecordResponseDoubleCompleted(t *testing.T) {
	tr, fulfiller, _ := newTestTracker(models.AlertMatched)
	ctx := context.Background()

	if _, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted); err != nil {
		t.Fatalf("first completed: %v", err)
	}
	_, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted)
	if !apperrors.Is(err, apperrors.KindConflict) {
		t.Fatalf("second completed should conflict, got %v", err)
	}

	if len(fulfiller.calls) != 1 {
		t.Fatalf("fulfillment credited %d times, want once", len(fulfiller.calls))
	}
}

func TestRecordResponseDeclinedIsTerminal(t *testing.T) {
	tr, fulfiller, _ := newTestTracker(models.AlertMatched)
	ctx := context.Background()

	// Declining is allowed from any non-terminal state, even mid-chain.
	if _, err := tr.RecordResponse(ctx, 10, models.ResponseConfirmed); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if _, err := tr.RecordResponse(ctx, 10, models.ResponseDeclined); err != nil {
		t.Fatalf("decline after confirm: %v", err)
	}

	for _, next := range []models.ResponseStatus{models.ResponseAvailable, models.ResponseCompleted, models.ResponseDeclined} {
		if _, err := tr.RecordResponse(ctx, 10, next); !apperrors.Is(err, apperrors.KindConflict) {
			t.Errorf("declined -> %s should conflict, got %v", next, err)
		}
	}
	if len(fulfiller.calls) != 0 {
		t.Fatal("declined responses must never credit fulfillment")
	}
}

func TestRecordResponseUnknownStatus(t *testing.T) {
	tr, _, _ := newTestTracker(models.AlertMatched)

	_, err := tr.RecordResponse(context.Background(), 10, "maybe")
	if !apperrors.Is(err, apperrors.KindValidation) {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}
}

func TestRecordResponseUnknownIntent(t *testing.T) {
	tr, _, _ := newTestTracker(models.AlertMatched)

	_, err := tr.RecordResponse(context.Background(), 99, models.ResponseAvailable)
	if !apperrors.Is(err, apperrors.KindNotFound) {
		t.Fatalf("unknown intent should be not_found, got %v", err)
	}
}

func TestCompletedAgainstCancelledAlert(t *testing.T) {
	tr, fulfiller, responses := newTestTracker(models.AlertCancelled)
	ctx := context.Background()

	resp, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted)
	if err != nil {
		t.Fatalf("RecordResponse against a cancelled alert: %v", err)
	}

	// The reply stays on record for audit, but nothing is credited.
	stored, err := responses.GetResponseByIntent(ctx, 10)
	if err != nil {
		t.Fatalf("response was not recorded: %v", err)
	}
	if stored.Status != models.ResponseCompleted || resp.Status != models.ResponseCompleted {
		t.Fatalf("stored status = %s", stored.Status)
	}
	if len(fulfiller.calls) != 0 {
		t.Fatal("cancelled alert must not receive fulfillment credit")
	}
}

func TestCompletedAfterAlertClosed(t *testing.T) {
	tr, fulfiller, _ := newTestTracker(models.AlertFulfilled)
	fulfiller.err = apperrors.InvalidState("alert 1 is fulfilled, fulfillment closed")
	ctx := context.Background()

	// The alert filled up between the donor's confirm and complete. The reply
	// is kept and the closed-alert credit is silently skipped.
	if _, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted); err != nil {
		t.Fatalf("completed against a just-closed alert should not error: %v", err)
	}
}

func TestCompletedRetriesTransientCreditFailure(t *testing.T) {
	tr, fulfiller, _ := newTestTracker(models.AlertMatched)
	fulfiller.errs = []error{apperrors.Dependency(true, "record fulfillment", errDBDown)}
	ctx := context.Background()

	if _, err := tr.RecordResponse(ctx, 10, models.ResponseConfirmed); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	resp, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted)
	if err != nil {
		t.Fatalf("transient credit failure should be retried away: %v", err)
	}
	if resp.Status != models.ResponseCompleted {
		t.Fatalf("status = %s, want completed", resp.Status)
	}
	if fulfiller.attempts != 2 || len(fulfiller.calls) != 1 {
		t.Fatalf("attempts = %d, calls = %v, want one retry and one credit", fulfiller.attempts, fulfiller.calls)
	}
}

func TestCompletedCreditFailureReopensResponse(t *testing.T) {
	// The credit keeps failing retryably, so the completion must not stick:
	// a terminal response would strand the donation forever.
	tr, fulfiller, responses := newTestTracker(models.AlertMatched)
	fulfiller.err = apperrors.Dependency(true, "record fulfillment", errDBDown)
	ctx := context.Background()

	if _, err := tr.RecordResponse(ctx, 10, models.ResponseConfirmed); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	_, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted)
	if !apperrors.Is(err, apperrors.KindDependency) {
		t.Fatalf("exhausted credit retries should surface, got %v", err)
	}

	stored, err := responses.GetResponseByIntent(ctx, 10)
	if err != nil {
		t.Fatalf("GetResponseByIntent: %v", err)
	}
	if stored.Status != models.ResponseConfirmed {
		t.Fatalf("status = %s, response must reopen so the credit can be retried", stored.Status)
	}

	// The store recovers and the donor retries: exactly one credit lands.
	fulfiller.err = nil
	if _, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	stored, _ = responses.GetResponseByIntent(ctx, 10)
	if stored.Status != models.ResponseCompleted {
		t.Fatalf("status = %s, want completed", stored.Status)
	}
	if len(fulfiller.calls) != 1 {
		t.Fatalf("fulfillment credited %d times, want once", len(fulfiller.calls))
	}
}

func TestFirstReplyCompletedCreditFailureStaysOpen(t *testing.T) {
	tr, fulfiller, responses := newTestTracker(models.AlertMatched)
	fulfiller.err = apperrors.Dependency(true, "record fulfillment", errDBDown)
	ctx := context.Background()

	if _, err := tr.RecordResponse(ctx, 10, models.ResponseCompleted); !apperrors.Is(err, apperrors.KindDependency) {
		t.Fatalf("exhausted credit retries should surface, got %v", err)
	}
	stored, err := responses.GetResponseByIntent(ctx, 10)
	if err != nil {
		t.Fatalf("GetResponseByIntent: %v", err)
	}
	if terminalResponse(stored.Status) {
		t.Fatalf("status = %s, a lost credit must leave the response retryable", stored.Status)
	}
}

func TestFirstReplyCreatesRecord(t *testing.T) {
	tr, _, responses := newTestTracker(models.AlertMatched)
	ctx := context.Background()

	resp, err := tr.RecordResponse(ctx, 10, models.ResponseDeclined)
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if resp.AlertID != 1 || resp.DonorID != 3 {
		t.Fatalf("response not linked to the intent: %+v", resp)
	}
	if resp.RespondedAt.IsZero() {
		t.Fatal("responded_at not set")
	}

	stored, err := responses.GetResponseByIntent(ctx, 10)
	if err != nil {
		t.Fatalf("GetResponseByIntent: %v", err)
	}
	if stored.Status != models.ResponseDeclined {
		t.Fatalf("stored status = %s", stored.Status)
	}
}
