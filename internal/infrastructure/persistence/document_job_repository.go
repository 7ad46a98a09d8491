package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJobRepository implements document.JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// FindByID finds a job by its ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*document.Job, error) {
	var job document.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindByCompany lists a company's jobs, newest first
func (r *GormJobRepository) FindByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]document.Job, error) {
	var jobs []document.Job
	query := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindProcessing returns jobs stuck mid-pipeline, oldest first
func (r *GormJobRepository) FindProcessing(ctx context.Context, olderThan time.Time) ([]document.Job, error) {
	var jobs []document.Job
	statuses := []document.Status{
		document.StatusQueued,
		document.StatusUploading,
		document.StatusScanning,
		document.StatusOCR,
		document.StatusAnalyzing,
	}
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, olderThan).
		Order("updated_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountUnapprovedInWindow counts jobs with a document date inside [start, end)
// that are neither approved nor failed nor split
func (r *GormJobRepository) CountUnapprovedInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int64, error) {
	var count int64
	excluded := []document.Status{document.StatusApproved, document.StatusError, document.StatusSplit}
	if err := r.db.WithContext(ctx).
		Model(&document.Job{}).
		Where("company_id = ? AND doc_date >= ? AND doc_date < ? AND status NOT IN ?", companyID, start, end, excluded).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindInWindow lists jobs with a document date inside [start, end)
func (r *GormJobRepository) FindInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]document.Job, error) {
	var jobs []document.Job
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND doc_date >= ? AND doc_date < ?", companyID, start, end).
		Order("doc_date ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Save persists the job with optimistic concurrency on the version
func (r *GormJobRepository) Save(ctx context.Context, j *document.Job) error {
	return saveJob(r.db.WithContext(ctx), j)
}

// saveJob writes a job row guarded by the aggregate version. Used by both the
// repository and the posting transaction.
func saveJob(tx *gorm.DB, j *document.Job) error {
	result := tx.Model(&document.Job{}).
		Where("id = ? AND version < ?", j.ID, j.Version).
		Select("*").Omit("created_at").
		Updates(j)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var stored struct{ Version int }
	err := tx.Model(&document.Job{}).
		Select("version").
		Where("id = ?", j.ID).
		Take(&stored).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(j).Error
	case err != nil:
		return err
	case stored.Version == j.Version:
		// This exact aggregate state is already on disk. The posting
		// transaction persists the job itself, so the pipeline's follow-up
		// checkpoint save must land as a no-op, not a conflict.
		return nil
	default:
		return shared.ErrConcurrencyConflict
	}
}

// Ensure GormJobRepository implements document.JobRepository
var _ document.JobRepository = (*GormJobRepository)(nil)
