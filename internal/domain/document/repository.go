package document

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobRepository persists document jobs
type JobRepository interface {
	// FindByID returns a job or nil
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindByCompany lists a company's jobs, newest first
	FindByCompany(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]Job, error)

	// FindProcessing returns jobs stuck mid-pipeline, oldest first. Used by
	// the resume sweep after a restart.
	FindProcessing(ctx context.Context, olderThan time.Time) ([]Job, error)

	// CountUnapprovedInWindow counts jobs with a document date inside
	// [start, end) that are neither approved nor failed nor split
	CountUnapprovedInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int64, error)

	// FindInWindow lists jobs with a document date inside [start, end)
	FindInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]Job, error)

	// Save persists the job with optimistic concurrency on the version
	Save(ctx context.Context, j *Job) error
}

// VoucherRepository persists posted vouchers
type VoucherRepository interface {
	// FindByJob returns the voucher posted for a job, or nil
	FindByJob(ctx context.Context, jobID uuid.UUID) (*Voucher, error)

	// FindInWindow lists vouchers dated inside [start, end)
	FindInWindow(ctx context.Context, companyID uuid.UUID, start, end time.Time) ([]Voucher, error)

	// Save persists a voucher. A second voucher for the same job returns
	// shared.ErrAlreadyExists.
	Save(ctx context.Context, v *Voucher) error
}

// SupplierHistoryRepository persists per-supplier invoice statistics
type SupplierHistoryRepository interface {
	// FindByName returns the history row for a normalized supplier name,
	// or nil for a first-ever supplier
	FindByName(ctx context.Context, companyID uuid.UUID, normalizedName string) (*SupplierHistory, error)

	// Save upserts the history row
	Save(ctx context.Context, h *SupplierHistory) error
}

// BankReconciliationSource reports the reconciliation state feeding the
// pre-close checks. The matching itself happens outside this system.
type BankReconciliationSource interface {
	// UnmatchedCount returns the number of bank transactions in [start, end)
	// not yet matched to a ledger entry
	UnmatchedCount(ctx context.Context, companyID uuid.UUID, start, end time.Time) (int, error)
}

// VATTotals is the in-period VAT aggregate used by the reconciliation check
type VATTotals struct {
	InputVAT  decimal.Decimal `json:"input_vat"`
	OutputVAT decimal.Decimal `json:"output_vat"`
}
