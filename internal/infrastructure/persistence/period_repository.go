package persistence

import (
	"context"
	"errors"

	"github.com/erp/docledger/internal/domain/period"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPeriodRepository implements period.Repository using GORM
type GormPeriodRepository struct {
	db *gorm.DB
}

// NewGormPeriodRepository creates a new GormPeriodRepository
func NewGormPeriodRepository(db *gorm.DB) *GormPeriodRepository {
	return &GormPeriodRepository{db: db}
}

// FindByMonth returns the period row for a company month, or nil
func (r *GormPeriodRepository) FindByMonth(ctx context.Context, companyID uuid.UUID, year, month int) (*period.Period, error) {
	return findPeriod(r.db.WithContext(ctx), companyID, year, month)
}

func findPeriod(tx *gorm.DB, companyID uuid.UUID, year, month int) (*period.Period, error) {
	var p period.Period
	if err := tx.
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("company_id = ? AND year = ? AND month = ?", companyID, year, month).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// FindOrCreate returns the period for a company month, creating an OPEN one
// if absent. The unique index on (company, year, month) makes concurrent
// creators converge on a single row.
func (r *GormPeriodRepository) FindOrCreate(ctx context.Context, companyID uuid.UUID, year, month int) (*period.Period, error) {
	return findOrCreatePeriod(r.db.WithContext(ctx), companyID, year, month)
}

func findOrCreatePeriod(tx *gorm.DB, companyID uuid.UUID, year, month int) (*period.Period, error) {
	p, err := findPeriod(tx, companyID, year, month)
	if err != nil || p != nil {
		return p, err
	}

	fresh, err := period.NewPeriod(companyID, year, month)
	if err != nil {
		return nil, err
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Omit("History").Create(fresh).Error; err != nil {
		return nil, err
	}
	// Re-read: a concurrent creator may have won the insert
	return findPeriod(tx, companyID, year, month)
}

// Save persists the period and appends new history entries. It returns
// shared.ErrConcurrencyConflict when the stored version moved.
func (r *GormPeriodRepository) Save(ctx context.Context, p *period.Period) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return savePeriod(tx, p)
	})
}

func savePeriod(tx *gorm.DB, p *period.Period) error {
	result := tx.Model(&period.Period{}).
		Where("id = ? AND version < ?", p.ID, p.Version).
		Select("*").Omit("created_at", "History").
		Updates(p)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&period.Period{}).Where("id = ?", p.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrConcurrencyConflict
		}
		if err := tx.Omit("History").Create(p).Error; err != nil {
			return err
		}
	}

	if len(p.History) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p.History).Error
}

// Ensure GormPeriodRepository implements period.Repository
var _ period.Repository = (*GormPeriodRepository)(nil)
