package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists approval requests and their action logs
type Repository interface {
	// FindByID returns a request with its actions, or nil
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// FindActiveByJob returns the request currently awaiting decision for a
	// job, or nil
	FindActiveByJob(ctx context.Context, companyID, jobID uuid.UUID) (*Request, error)

	// FindOverdue returns requests awaiting decision whose deadline passed
	// before the cutoff
	FindOverdue(ctx context.Context, cutoff time.Time) ([]Request, error)

	// CountPendingForCompany counts requests awaiting decision for a company
	CountPendingForCompany(ctx context.Context, companyID uuid.UUID) (int64, error)

	// Save persists a request and appends any new actions. The write uses
	// optimistic concurrency on the aggregate version.
	Save(ctx context.Context, r *Request) error

	// SaveAll persists several requests in one transaction (used when an
	// escalation supersedes a request with its successor)
	SaveAll(ctx context.Context, requests ...*Request) error
}

// ThresholdProvider resolves the per-company threshold table
type ThresholdProvider interface {
	ThresholdsFor(ctx context.Context, companyID uuid.UUID) (Thresholds, error)
}

// StaticThresholds is a ThresholdProvider that always returns the same table
type StaticThresholds struct {
	Table Thresholds
}

// ThresholdsFor returns the static table for any company
func (s StaticThresholds) ThresholdsFor(context.Context, uuid.UUID) (Thresholds, error) {
	return s.Table, nil
}
