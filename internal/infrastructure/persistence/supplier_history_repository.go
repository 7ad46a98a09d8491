package persistence

import (
	"context"
	"errors"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSupplierHistoryRepository implements document.SupplierHistoryRepository
// using GORM
type GormSupplierHistoryRepository struct {
	db *gorm.DB
}

// NewGormSupplierHistoryRepository creates a new GormSupplierHistoryRepository
func NewGormSupplierHistoryRepository(db *gorm.DB) *GormSupplierHistoryRepository {
	return &GormSupplierHistoryRepository{db: db}
}

// FindByName returns the history row for a normalized supplier name, or nil
// for a first-ever supplier
func (r *GormSupplierHistoryRepository) FindByName(ctx context.Context, companyID uuid.UUID, normalizedName string) (*document.SupplierHistory, error) {
	return findSupplierHistory(r.db.WithContext(ctx), companyID, normalizedName)
}

func findSupplierHistory(tx *gorm.DB, companyID uuid.UUID, normalizedName string) (*document.SupplierHistory, error) {
	var history document.SupplierHistory
	if err := tx.
		Where("company_id = ? AND normalized_name = ?", companyID, normalizedName).
		First(&history).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &history, nil
}

// Save upserts the history row. Concurrent first-invoice writers converge on
// the (company, normalized name) unique index.
func (r *GormSupplierHistoryRepository) Save(ctx context.Context, h *document.SupplierHistory) error {
	return saveSupplierHistory(r.db.WithContext(ctx), h)
}

func saveSupplierHistory(tx *gorm.DB, h *document.SupplierHistory) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "normalized_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "invoice_count", "total_amount", "known_accounts", "last_invoice_date", "updated_at",
		}),
	}).Create(h).Error
}

// Ensure GormSupplierHistoryRepository implements document.SupplierHistoryRepository
var _ document.SupplierHistoryRepository = (*GormSupplierHistoryRepository)(nil)
