package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VoucherCounter is the persistence row backing gap-free voucher numbering.
// It never appears in the domain; only its atomically incremented value does.
type VoucherCounter struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Series    string    `gorm:"type:varchar(1);primaryKey"`
	Year      int       `gorm:"primaryKey"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (VoucherCounter) TableName() string {
	return "voucher_counters"
}

// GormCounterRepository implements sequence.CounterRepository with a single
// atomic upsert per increment. The RETURNING value is the counter after the
// increment, so concurrent callers each observe a distinct value and no value
// is ever skipped or reused.
type GormCounterRepository struct {
	db *gorm.DB
}

// NewGormCounterRepository creates a new GormCounterRepository
func NewGormCounterRepository(db *gorm.DB) *GormCounterRepository {
	return &GormCounterRepository{db: db}
}

const incrementCounterSQL = `
INSERT INTO voucher_counters (company_id, series, year, value, updated_at)
VALUES (?, ?, ?, ?, NOW())
ON CONFLICT (company_id, series, year)
DO UPDATE SET value = voucher_counters.value + ?, updated_at = NOW()
RETURNING value`

// Increment advances the counter by one and returns the new value
func (r *GormCounterRepository) Increment(ctx context.Context, companyID uuid.UUID, series string, year int) (int64, error) {
	return incrementCounter(r.db.WithContext(ctx), companyID, series, year, 1)
}

// IncrementBy advances the counter by count in one atomic operation and
// returns the new value
func (r *GormCounterRepository) IncrementBy(ctx context.Context, companyID uuid.UUID, series string, year int, count int64) (int64, error) {
	return incrementCounter(r.db.WithContext(ctx), companyID, series, year, count)
}

func incrementCounter(tx *gorm.DB, companyID uuid.UUID, series string, year int, count int64) (int64, error) {
	var value int64
	if err := tx.Raw(incrementCounterSQL, companyID, series, year, count, count).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

// Current returns the counter value without advancing it (0 when absent)
func (r *GormCounterRepository) Current(ctx context.Context, companyID uuid.UUID, series string, year int) (int64, error) {
	var counter VoucherCounter
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND series = ? AND year = ?", companyID, series, year).
		First(&counter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return counter.Value, nil
}

// Ensure GormCounterRepository implements sequence.CounterRepository
var _ sequence.CounterRepository = (*GormCounterRepository)(nil)
