package alerts_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bloodlink-dev/bloodlink/internal/alerts"
	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/dispatch"
	"github.com/bloodlink-dev/bloodlink/internal/models"
	"github.com/bloodlink-dev/bloodlink/internal/responses"
	"github.com/bloodlink-dev/bloodlink/internal/services"
	"github.com/bloodlink-dev/bloodlink/internal/store"
	"github.com/bloodlink-dev/bloodlink/internal/types"
)

type engine struct {
	db         *gorm.DB
	store      *store.Store
	manager    *alerts.Manager
	dispatcher *dispatch.Dispatcher
	tracker    *responses.Tracker
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine.db")), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	err = db.AutoMigrate(
		&models.Donor{}, &models.Hospital{}, &models.Admin{},
		&models.Alert{}, &models.NotificationIntent{}, &models.DonorResponse{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	s := store.New(db)
	manager := alerts.NewManager(s, s, nil, alerts.Config{
		TTL:       24 * time.Hour,
		Retention: 30 * 24 * time.Hour,
	}, log)
	dispatcher := dispatch.NewDispatcher(s, s, s, s, s, manager, &services.LogNotifier{Log: log}, dispatch.Config{
		BatchSize:        25,
		MaxRetries:       3,
		OverNotifyFactor: 3.0,
		RadiusKm:         50,
		Cooldown:         90 * 24 * time.Hour,
	}, log)
	tracker := responses.NewTracker(s, s, s, manager, responses.Config{UnitWeight: 1}, log)

	return &engine{db: db, store: s, manager: manager, dispatcher: dispatcher, tracker: tracker}
}

func (e *engine) seedHospital(t *testing.T) *models.Hospital {
	t.Helper()
	h := &models.Hospital{
		Name: "City General", Email: "gen@example.com", PasswordHash: "x",
		Phone: "+1000", RegistrationNumber: "REG-1",
		Latitude: 40.0, Longitude: -3.7, HasLocation: true,
	}
	if err := e.db.Create(h).Error; err != nil {
		t.Fatalf("seed hospital: %v", err)
	}
	return h
}

func (e *engine) seedDonors(t *testing.T, n int) []models.Donor {
	t.Helper()
	donors := make([]models.Donor, n)
	for i := range donors {
		donors[i] = models.Donor{
			Name:       "donor",
			Email:      "d" + string(rune('a'+i)) + "@example.com",
			Phone:      "+2" + string(rune('a'+i)),
			BloodGroup: "O+", PasswordHash: "x",
			Latitude: 40.005 + float64(i)*0.002, Longitude: -3.7,
			Available: true,
		}
		if err := e.db.Create(&donors[i]).Error; err != nil {
			t.Fatalf("seed donor %d: %v", i, err)
		}
	}
	return donors
}

func TestAlertLifecycleEndToEnd(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	hospital := e.seedHospital(t)
	e.seedDonors(t, 4)

	alert, err := e.manager.CreateAlert(ctx, hospital.ID, "O+", 2)
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}

	report, err := e.dispatcher.Dispatch(ctx, alert.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if report.Created != 4 || report.Delivered != 4 {
		t.Fatalf("report = %+v, want all 4 donors reached", report)
	}

	got, err := e.store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != models.AlertMatched {
		t.Fatalf("status after dispatch = %s, want matched", got.Status)
	}

	intents, err := e.store.ListIntentsByAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("ListIntentsByAlert: %v", err)
	}

	// Two donors work through the whole chain.
	for _, intent := range intents[:2] {
		for _, st := range []models.ResponseStatus{
			models.ResponseAvailable, models.ResponseContacted,
			models.ResponseConfirmed, models.ResponseCompleted,
		} {
			if _, err := e.tracker.RecordResponse(ctx, intent.ID, st); err != nil {
				t.Fatalf("RecordResponse(intent %d, %s): %v", intent.ID, st, err)
			}
		}
	}
	// A third declines.
	if _, err := e.tracker.RecordResponse(ctx, intents[2].ID, models.ResponseDeclined); err != nil {
		t.Fatalf("decline: %v", err)
	}

	got, err = e.store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != models.AlertFulfilled {
		t.Fatalf("status after 2 completions = %s, want fulfilled", got.Status)
	}
	if got.UnitsFulfilled != 2 {
		t.Fatalf("units fulfilled = %d, want 2", got.UnitsFulfilled)
	}

	// A late completion from the fourth donor is kept but credits nothing.
	for _, st := range []models.ResponseStatus{models.ResponseAvailable, models.ResponseCompleted} {
		if _, err := e.tracker.RecordResponse(ctx, intents[3].ID, st); err != nil {
			t.Fatalf("late RecordResponse(%s): %v", st, err)
		}
	}
	got, _ = e.store.GetAlert(ctx, alert.ID)
	if got.UnitsFulfilled != 2 {
		t.Fatalf("late completion bumped units to %d", got.UnitsFulfilled)
	}

	// Fulfilled alerts are closed to dispatch.
	if _, err := e.dispatcher.Dispatch(ctx, alert.ID); !apperrors.Is(err, apperrors.KindInvalidState) {
		t.Fatalf("dispatch on fulfilled alert should be invalid_state, got %v", err)
	}

	resps, err := e.store.ListResponsesByAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("ListResponsesByAlert: %v", err)
	}
	if len(resps) != 4 {
		t.Fatalf("responses on record = %d, want 4", len(resps))
	}
}

func TestCancelledAlertKeepsResponsesWithoutCredit(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	hospital := e.seedHospital(t)
	e.seedDonors(t, 2)

	alert, err := e.manager.CreateAlert(ctx, hospital.ID, "O+", 1)
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if _, err := e.dispatcher.Dispatch(ctx, alert.ID); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	intents, _ := e.store.ListIntentsByAlert(ctx, alert.ID)
	if _, err := e.tracker.RecordResponse(ctx, intents[0].ID, models.ResponseConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := e.manager.Cancel(ctx, alert.ID, types.Identity{ID: hospital.ID, Role: types.RoleHospital}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Donation happened anyway; the reply is recorded, nothing is credited.
	if _, err := e.tracker.RecordResponse(ctx, intents[0].ID, models.ResponseCompleted); err != nil {
		t.Fatalf("complete after cancel: %v", err)
	}

	got, err := e.store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != models.AlertCancelled || got.UnitsFulfilled != 0 {
		t.Fatalf("alert = status %s fulfilled %d, want cancelled with 0", got.Status, got.UnitsFulfilled)
	}

	resp, err := e.store.GetResponseByIntent(ctx, intents[0].ID)
	if err != nil {
		t.Fatalf("GetResponseByIntent: %v", err)
	}
	if resp.Status != models.ResponseCompleted {
		t.Fatalf("response status = %s, want completed", resp.Status)
	}
}

func TestExpiredAlertsAreSweptOverSqlite(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	hospital := e.seedHospital(t)

	alert, err := e.manager.CreateAlert(ctx, hospital.ID, "A-", 1)
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := e.db.Model(&models.Alert{}).Where("id = ?", alert.ID).Update("created_at", past).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	expired, err := e.manager.ExpireStale(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireStale: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got, _ := e.store.GetAlert(ctx, alert.ID)
	if got.Status != models.AlertExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	// Expired alerts reject further dispatch and fulfillment.
	if _, err := e.dispatcher.Dispatch(ctx, alert.ID); !apperrors.Is(err, apperrors.KindInvalidState) {
		t.Fatalf("dispatch on expired alert: %v", err)
	}
	if _, err := e.manager.RecordFulfillment(ctx, alert.ID, 1); !apperrors.Is(err, apperrors.KindInvalidState) {
		t.Fatalf("fulfillment on expired alert: %v", err)
	}
}
