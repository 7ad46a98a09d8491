package persistence

import (
	"context"
	"errors"

	"github.com/erp/docledger/internal/domain/duplicate"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOverrideRepository implements duplicate.OverrideRepository using GORM
type GormOverrideRepository struct {
	db *gorm.DB
}

// NewGormOverrideRepository creates a new GormOverrideRepository
func NewGormOverrideRepository(db *gorm.DB) *GormOverrideRepository {
	return &GormOverrideRepository{db: db}
}

// Save persists an override. Overrides are immutable audit records.
func (r *GormOverrideRepository) Save(ctx context.Context, o *duplicate.Override) error {
	return r.db.WithContext(ctx).Create(o).Error
}

// FindByPair returns the override for an (original, new) job pair, or nil
func (r *GormOverrideRepository) FindByPair(ctx context.Context, originalJobID, newJobID uuid.UUID) (*duplicate.Override, error) {
	var o duplicate.Override
	if err := r.db.WithContext(ctx).
		Where("original_job_id = ? AND new_job_id = ?", originalJobID, newJobID).
		Order("created_at DESC").
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// FindByOriginalJob returns all overrides recorded against an original job
func (r *GormOverrideRepository) FindByOriginalJob(ctx context.Context, companyID, originalJobID uuid.UUID) ([]duplicate.Override, error) {
	var overrides []duplicate.Override
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND original_job_id = ?", companyID, originalJobID).
		Order("created_at ASC").
		Find(&overrides).Error; err != nil {
		return nil, err
	}
	return overrides, nil
}

// Ensure GormOverrideRepository implements duplicate.OverrideRepository
var _ duplicate.OverrideRepository = (*GormOverrideRepository)(nil)
