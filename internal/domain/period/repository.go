package period

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists accounting periods. Save uses optimistic concurrency
// on the aggregate version so a late posting and a concurrent close cannot
// both win.
type Repository interface {
	// FindByMonth returns the period row for a company month, or nil
	FindByMonth(ctx context.Context, companyID uuid.UUID, year, month int) (*Period, error)

	// FindOrCreate returns the period for a company month, creating an OPEN
	// one if absent. Concurrent creators must converge on a single row.
	FindOrCreate(ctx context.Context, companyID uuid.UUID, year, month int) (*Period, error)

	// Save persists the period and appends new history entries. It returns
	// shared.ErrConcurrencyConflict when the stored version moved.
	Save(ctx context.Context, p *Period) error
}
