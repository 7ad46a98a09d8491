package persistence

import (
	"context"
	"errors"

	"github.com/erp/docledger/internal/domain/duplicate"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFingerprintRepository implements duplicate.FingerprintRepository using GORM
type GormFingerprintRepository struct {
	db *gorm.DB
}

// NewGormFingerprintRepository creates a new GormFingerprintRepository
func NewGormFingerprintRepository(db *gorm.DB) *GormFingerprintRepository {
	return &GormFingerprintRepository{db: db}
}

// FindByInvoiceKey returns the fingerprint with the exact invoice key, or nil
func (r *GormFingerprintRepository) FindByInvoiceKey(ctx context.Context, companyID uuid.UUID, key string) (*duplicate.Fingerprint, error) {
	if key == "" {
		return nil, nil
	}
	var fp duplicate.Fingerprint
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND invoice_key = ?", companyID, key).
		First(&fp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fp, nil
}

// FindByFileHash returns the fingerprint with the exact file hash, or nil
func (r *GormFingerprintRepository) FindByFileHash(ctx context.Context, companyID uuid.UUID, hash string) (*duplicate.Fingerprint, error) {
	if hash == "" {
		return nil, nil
	}
	var fp duplicate.Fingerprint
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND file_hash = ?", companyID, hash).
		First(&fp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fp, nil
}

// FindByCounterparty returns all fingerprints for a normalized counterparty name
func (r *GormFingerprintRepository) FindByCounterparty(ctx context.Context, companyID uuid.UUID, normalizedName string) ([]duplicate.Fingerprint, error) {
	if normalizedName == "" {
		return nil, nil
	}
	var fps []duplicate.Fingerprint
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND counterparty = ?", companyID, normalizedName).
		Order("invoice_date DESC").
		Find(&fps).Error; err != nil {
		return nil, err
	}
	return fps, nil
}

// Save persists a fingerprint. The partial unique indexes on invoice key and
// file hash enforce first-writer-wins; a losing concurrent writer gets
// shared.ErrAlreadyExists.
func (r *GormFingerprintRepository) Save(ctx context.Context, fp *duplicate.Fingerprint) error {
	return saveFingerprint(r.db.WithContext(ctx), fp)
}

func saveFingerprint(tx *gorm.DB, fp *duplicate.Fingerprint) error {
	if err := tx.Create(fp).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// DeleteForJob removes the fingerprints owned by a deleted job
func (r *GormFingerprintRepository) DeleteForJob(ctx context.Context, companyID, jobID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&duplicate.Fingerprint{}, "company_id = ? AND job_id = ?", companyID, jobID).Error
}

// Ensure GormFingerprintRepository implements duplicate.FingerprintRepository
var _ duplicate.FingerprintRepository = (*GormFingerprintRepository)(nil)
