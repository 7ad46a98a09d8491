package pipeline

import (
	"context"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObjectStorage stores the raw scanned files
type ObjectStorage interface {
	// Upload stores the file and returns a durable reference
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get fetches the file bytes for a reference
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the stored file
	Delete(ctx context.Context, ref string) error
}

// OCRService extracts raw text from a scanned document
type OCRService interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}

// Classifier turns OCR text plus the original image into extracted
// financial facts
type Classifier interface {
	Classify(ctx context.Context, text string, image []byte) (*document.Classification, error)
}

// Segment is one receipt detected inside a multi-receipt scan
type Segment struct {
	FileName string
	Data     []byte
}

// ReceiptSplitter detects scans containing several receipts. A single-receipt
// file returns no segments. Splitter failures are skippable: the pipeline
// proceeds as if the file held one document.
type ReceiptSplitter interface {
	Detect(ctx context.Context, fileName string, data []byte, contentType string) ([]Segment, error)
}

// Rate is one resolved exchange rate
type Rate struct {
	Value  decimal.Decimal
	Source string
	Date   time.Time
}

// RateProvider resolves an exchange rate for a value date. Implementations
// retry up to seven days around the date for the nearest business day.
type RateProvider interface {
	Rate(ctx context.Context, from, to valueobject.Currency, date time.Time) (Rate, error)
}

// SupplierRef identifies a supplier in the downstream ERP
type SupplierRef struct {
	ID   string
	Name string
}

// ERPClient is the downstream accounting system. Supplier sync failures are
// skippable; voucher export failures are logged and retried out of band.
type ERPClient interface {
	FindOrCreateSupplier(ctx context.Context, companyID uuid.UUID, name string) (SupplierRef, error)
	PostVoucher(ctx context.Context, v *document.Voucher) error
}

// Poster executes the posting stage in one transaction: assert the period is
// writable, mint the next voucher number, persist the voucher, mark the job
// posted, register the fingerprint, and fold the invoice into supplier
// history. A job posts at most once; a second call returns
// shared.ErrAlreadyPosted.
type Poster interface {
	Post(ctx context.Context, job *document.Job, series string) (*document.Voucher, error)
}

// MetricsRecorder records pipeline business metrics. Satisfied by
// telemetry.PipelineMetrics; the interface keeps the meter off the
// application layer.
type MetricsRecorder interface {
	RecordSubmitted(ctx context.Context, companyID uuid.UUID)
	RecordSettled(ctx context.Context, companyID uuid.UUID, status string)
	RecordDuplicate(ctx context.Context, companyID uuid.UUID)
	RecordVoucherPosted(ctx context.Context, companyID uuid.UUID, series string)
	RecordRiskScore(ctx context.Context, companyID uuid.UUID, score int)
	RecordApprovalOpened(ctx context.Context, companyID uuid.UUID, level string)
}
