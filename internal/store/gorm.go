package store

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
)

// Store is the gorm-backed implementation of the persistence interfaces.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var activeIntentStatuses = []models.IntentStatus{models.IntentPending, models.IntentDelivered}

var terminalAlertStatuses = []models.AlertStatus{
	models.AlertFulfilled, models.AlertExpired, models.AlertCancelled,
}

var expirableAlertStatuses = []models.AlertStatus{
	models.AlertActive, models.AlertMatched, models.AlertPartiallyFulfilled,
}

func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return apperrors.Dependency(true, "create alert", err)
	}
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("alert %d not found", id)
		}
		return nil, apperrors.Dependency(true, "get alert", err)
	}
	return &alert, nil
}

func (s *Store) ListAlertsByHospital(ctx context.Context, hospitalID uint) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("hospital_id = ?", hospitalID).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, apperrors.Dependency(true, "list alerts by hospital", err)
	}
	return alerts, nil
}

func (s *Store) ListAlertsByStatus(ctx context.Context, statuses ...models.AlertStatus) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, apperrors.Dependency(true, "list alerts by status", err)
	}
	return alerts, nil
}

func (s *Store) ListExpirable(ctx context.Context, cutoff time.Time) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", expirableAlertStatuses, cutoff).
		Find(&alerts).Error
	if err != nil {
		return nil, apperrors.Dependency(true, "list expirable alerts", err)
	}
	return alerts, nil
}

func (s *Store) UpdateAlertCAS(ctx context.Context, alert *models.Alert, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND version = ?", alert.ID, expectedVersion).
		Updates(map[string]interface{}{
			"units_fulfilled":     alert.UnitsFulfilled,
			"status":              alert.Status,
			"redispatch_attempts": alert.RedispatchAttempts,
			"version":             expectedVersion + 1,
		})
	if res.Error != nil {
		return apperrors.Dependency(true, "update alert", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", alert.ID).Count(&count).Error; err != nil {
			return apperrors.Dependency(true, "update alert", err)
		}
		if count == 0 {
			return apperrors.NotFound("alert %d not found", alert.ID)
		}
		return apperrors.Conflict("alert %d was modified concurrently", alert.ID)
	}
	alert.Version = expectedVersion + 1
	return nil
}

func (s *Store) ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminalAlertStatuses, cutoff).
		Delete(&models.Alert{})
	if res.Error != nil {
		return 0, apperrors.Dependency(true, "archive alerts", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) CreateIntent(ctx context.Context, intent *models.NotificationIntent) error {
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("intent already exists for alert %d donor %d", intent.AlertID, intent.DonorID)
		}
		return apperrors.Dependency(true, "create intent", err)
	}
	return nil
}

func (s *Store) GetIntent(ctx context.Context, id uint) (*models.NotificationIntent, error) {
	var intent models.NotificationIntent
	if err := s.db.WithContext(ctx).First(&intent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("intent %d not found", id)
		}
		return nil, apperrors.Dependency(true, "get intent", err)
	}
	return &intent, nil
}

func (s *Store) UpdateIntentStatus(ctx context.Context, id uint, from, to models.IntentStatus, failReason string) error {
	res := s.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "fail_reason": failReason})
	if res.Error != nil {
		return apperrors.Dependency(true, "update intent", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.NotificationIntent{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return apperrors.Dependency(true, "update intent", err)
		}
		if count == 0 {
			return apperrors.NotFound("intent %d not found", id)
		}
		return apperrors.Conflict("intent %d is no longer %s", id, from)
	}
	return nil
}

func (s *Store) CountActiveIntents(ctx context.Context, alertID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("alert_id = ? AND status IN ?", alertID, activeIntentStatuses).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Dependency(true, "count active intents", err)
	}
	return int(count), nil
}

func (s *Store) ListIntentsByAlert(ctx context.Context, alertID uint) ([]models.NotificationIntent, error) {
	var intents []models.NotificationIntent
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("dispatched_at ASC").
		Find(&intents).Error
	if err != nil {
		return nil, apperrors.Dependency(true, "list intents", err)
	}
	return intents, nil
}

func (s *Store) CreateResponse(ctx context.Context, resp *models.DonorResponse) error {
	if err := s.db.WithContext(ctx).Create(resp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("response already exists for intent %d", resp.IntentID)
		}
		return apperrors.Dependency(true, "create response", err)
	}
	return nil
}

func (s *Store) GetResponse(ctx context.Context, id uint) (*models.DonorResponse, error) {
	var resp models.DonorResponse
	if err := s.db.WithContext(ctx).First(&resp, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("response %d not found", id)
		}
		return nil, apperrors.Dependency(true, "get response", err)
	}
	return &resp, nil
}

func (s *Store) GetResponseByIntent(ctx context.Context, intentID uint) (*models.DonorResponse, error) {
	var resp models.DonorResponse
	if err := s.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&resp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("no response for intent %d", intentID)
		}
		return nil, apperrors.Dependency(true, "get response by intent", err)
	}
	return &resp, nil
}

func (s *Store) ListResponsesByAlert(ctx context.Context, alertID uint) ([]models.DonorResponse, error) {
	var resps []models.DonorResponse
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("responded_at ASC").
		Find(&resps).Error
	if err != nil {
		return nil, apperrors.Dependency(true, "list responses", err)
	}
	return resps, nil
}

func (s *Store) UpdateResponseCAS(ctx context.Context, resp *models.DonorResponse, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.DonorResponse{}).
		Where("id = ? AND version = ?", resp.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":       resp.Status,
			"responded_at": resp.RespondedAt,
			"version":      expectedVersion + 1,
		})
	if res.Error != nil {
		return apperrors.Dependency(true, "update response", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.DonorResponse{}).Where("id = ?", resp.ID).Count(&count).Error; err != nil {
			return apperrors.Dependency(true, "update response", err)
		}
		if count == 0 {
			return apperrors.NotFound("response %d not found", resp.ID)
		}
		return apperrors.Conflict("response %d was modified concurrently", resp.ID)
	}
	resp.Version = expectedVersion + 1
	return nil
}

// FindCandidates narrows donors with a bounding-box query, then computes the
// exact Haversine distance and applies the ordering in memory. The box keeps
// the SQL portable across postgres and the sqlite test driver.
func (s *Store) FindCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if q.Limit <= 0 || q.RadiusKm <= 0 || len(q.Groups) == 0 {
		return nil, nil
	}

	groups := make([]string, len(q.Groups))
	for i, g := range q.Groups {
		groups[i] = g.String()
	}

	latDelta := q.RadiusKm / kmPerDegreeLat
	lonScale := math.Cos(q.Latitude * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01
	}
	lonDelta := q.RadiusKm / (kmPerDegreeLat * lonScale)

	cooldownCutoff := q.Now.Add(-q.Cooldown)

	// Any intent for the alert excludes the donor: the unique (alert, donor)
	// index forbids a second attempt, so re-dispatch moves on to fresh donors.
	notifiedForAlert := s.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Select("donor_id").
		Where("alert_id = ?", q.AlertID)

	tx := s.db.WithContext(ctx).
		Where("blood_group IN ?", groups).
		Where("available = ?", true).
		Where("last_donation_at IS NULL OR last_donation_at <= ?", cooldownCutoff).
		Where("latitude BETWEEN ? AND ?", q.Latitude-latDelta, q.Latitude+latDelta).
		Where("longitude BETWEEN ? AND ?", q.Longitude-lonDelta, q.Longitude+lonDelta).
		Where("id NOT IN (?)", notifiedForAlert)

	if len(q.ExcludeIDs) > 0 {
		tx = tx.Where("id NOT IN ?", q.ExcludeIDs)
	}

	var donors []models.Donor
	if err := tx.Find(&donors).Error; err != nil {
		return nil, apperrors.Dependency(true, "query donor index", err)
	}

	candidates := make([]Candidate, 0, len(donors))
	for _, d := range donors {
		dist := haversineKm(q.Latitude, q.Longitude, d.Latitude, d.Longitude)
		if dist > q.RadiusKm {
			continue
		}
		candidates = append(candidates, Candidate{Donor: d, DistanceKm: dist})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return lessRecentlyDonated(candidates[i].Donor, candidates[j].Donor)
	})

	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

// lessRecentlyDonated prioritizes the donor whose cooldown elapsed longest
// ago; donors who never donated come first.
func lessRecentlyDonated(a, b models.Donor) bool {
	switch {
	case a.LastDonationAt == nil && b.LastDonationAt == nil:
		return a.ID < b.ID
	case a.LastDonationAt == nil:
		return true
	case b.LastDonationAt == nil:
		return false
	default:
		return a.LastDonationAt.Before(*b.LastDonationAt)
	}
}

const (
	kmPerDegreeLat = 111.0
	earthRadiusKm  = 6371.0
)

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
