package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bloodlink-dev/bloodlink/internal/apperrors"
	"github.com/bloodlink-dev/bloodlink/internal/models"
)

func (s *Store) GetHospital(ctx context.Context, id uint) (*models.Hospital, error) {
	var hospital models.Hospital
	if err := s.db.WithContext(ctx).First(&hospital, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("hospital %d not found", id)
		}
		return nil, apperrors.Dependency(true, "get hospital", err)
	}
	return &hospital, nil
}

func (s *Store) GetDonor(ctx context.Context, id uint) (*models.Donor, error) {
	var donor models.Donor
	if err := s.db.WithContext(ctx).First(&donor, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("donor %d not found", id)
		}
		return nil, apperrors.Dependency(true, "get donor", err)
	}
	return &donor, nil
}
