package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormVoucherRepository implements document.VoucherRepository using GORM.
// It also serves as the sequence validator's minted-number source, since the
// voucher table is the ground truth for which sequence values were assigned.
type GormVoucherRepository struct {
	db *gorm.DB
}

// NewGormVoucherRepository creates a new GormVoucherRepository
func NewGormVoucherRepository(db *gorm.DB) *GormVoucherRepository {
	return &GormVoucherRepository{db: db}
}

// FindByJob returns the voucher posted for a job, or nil
func (r *GormVoucherRepository) FindByJob(ctx context.Context, jobID uuid.UUID) (*document.Voucher, error) {
	var voucher document.Voucher
	if err := r.db.WithContext(ctx).First(&voucher, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

// FindInWindow lists vouchers dated inside [start, end)
func (r *GormVoucherRepository) FindInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]document.Voucher, error) {
	var vouchers []document.Voucher
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND date >= ? AND date < ?", companyID, start, end).
		Order("series ASC, sequence ASC").
		Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

// Save persists a voucher. A second voucher for the same job returns
// shared.ErrAlreadyExists.
func (r *GormVoucherRepository) Save(ctx context.Context, v *document.Voucher) error {
	return saveVoucher(r.db.WithContext(ctx), v)
}

func saveVoucher(tx *gorm.DB, v *document.Voucher) error {
	if err := tx.Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListSequences returns all minted sequence values for the series/year, in
// ascending order, duplicates included
func (r *GormVoucherRepository) ListSequences(ctx context.Context, companyID uuid.UUID, series string, year int) ([]int64, error) {
	var seqs []int64
	if err := r.db.WithContext(ctx).
		Model(&document.Voucher{}).
		Where("company_id = ? AND series = ? AND year = ?", companyID, series, year).
		Order("sequence ASC").
		Pluck("sequence", &seqs).Error; err != nil {
		return nil, err
	}
	return seqs, nil
}

// Ensure GormVoucherRepository implements both consumer interfaces
var (
	_ document.VoucherRepository  = (*GormVoucherRepository)(nil)
	_ sequence.MintedNumberSource = (*GormVoucherRepository)(nil)
)
