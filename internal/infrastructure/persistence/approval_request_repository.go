package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docledger/internal/domain/approval"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// awaitingStatuses are the statuses in which a request still accepts decisions
var awaitingStatuses = []approval.Status{approval.StatusPending, approval.StatusDelegated}

// GormApprovalRequestRepository implements approval.Repository using GORM
type GormApprovalRequestRepository struct {
	db *gorm.DB
}

// NewGormApprovalRequestRepository creates a new GormApprovalRequestRepository
func NewGormApprovalRequestRepository(db *gorm.DB) *GormApprovalRequestRepository {
	return &GormApprovalRequestRepository{db: db}
}

// FindByID returns a request with its actions, or nil
func (r *GormApprovalRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*approval.Request, error) {
	var request approval.Request
	if err := r.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

// FindActiveByJob returns the request currently awaiting decision for a job,
// or nil
func (r *GormApprovalRequestRepository) FindActiveByJob(ctx context.Context, companyID, jobID uuid.UUID) (*approval.Request, error) {
	var request approval.Request
	if err := r.db.WithContext(ctx).
		Preload("Actions").
		Where("company_id = ? AND job_id = ? AND status IN ?", companyID, jobID, awaitingStatuses).
		Order("created_at DESC").
		First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

// FindOverdue returns requests awaiting decision whose deadline passed before
// the cutoff
func (r *GormApprovalRequestRepository) FindOverdue(ctx context.Context, cutoff time.Time) ([]approval.Request, error) {
	var requests []approval.Request
	if err := r.db.WithContext(ctx).
		Preload("Actions").
		Where("status IN ? AND due_at < ?", awaitingStatuses, cutoff).
		Order("due_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// CountPendingForCompany counts requests awaiting decision for a company
func (r *GormApprovalRequestRepository) CountPendingForCompany(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&approval.Request{}).
		Where("company_id = ? AND status IN ?", companyID, awaitingStatuses).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountPendingByCompany counts requests awaiting decision grouped by company.
// Feeds the pending-approvals gauge.
func (r *GormApprovalRequestRepository) CountPendingByCompany(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		CompanyID uuid.UUID
		Count     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&approval.Request{}).
		Select("company_id, COUNT(*) AS count").
		Where("status IN ?", awaitingStatuses).
		Group("company_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	backlog := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		backlog[row.CompanyID] = row.Count
	}
	return backlog, nil
}

// Save persists a request and appends any new actions
func (r *GormApprovalRequestRepository) Save(ctx context.Context, request *approval.Request) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveRequest(tx, request)
	})
}

// SaveAll persists several requests in one transaction
func (r *GormApprovalRequestRepository) SaveAll(ctx context.Context, requests ...*approval.Request) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, request := range requests {
			if err := saveRequest(tx, request); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveRequest writes the request row guarded by the aggregate version and
// appends action-log entries. Actions are append-only; re-inserting an
// existing entry is a no-op.
func saveRequest(tx *gorm.DB, request *approval.Request) error {
	result := tx.Model(&approval.Request{}).
		Where("id = ? AND version < ?", request.ID, request.Version).
		Select("*").Omit("created_at", "Actions").
		Updates(request)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&approval.Request{}).Where("id = ?", request.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return shared.ErrConcurrencyConflict
		}
		if err := tx.Omit("Actions").Create(request).Error; err != nil {
			return err
		}
	}

	if len(request.Actions) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&request.Actions).Error
}

// Ensure GormApprovalRequestRepository implements approval.Repository
var _ approval.Repository = (*GormApprovalRequestRepository)(nil)
