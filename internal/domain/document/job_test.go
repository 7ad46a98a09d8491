package document

import (
	"testing"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedJob(t *testing.T) *Job {
	t.Helper()
	j, err := NewJob(uuid.New(), "invoice.pdf", "application/pdf", 2048, "req-1")
	require.NoError(t, err)
	return j
}

func advanceTo(t *testing.T, j *Job, target Status) {
	t.Helper()
	path := []Status{StatusUploading, StatusScanning, StatusOCR, StatusAnalyzing, StatusReady, StatusApproved}
	for _, s := range path {
		require.NoError(t, j.Transition(s))
		if s == target {
			return
		}
	}
	t.Fatalf("status %s not on the main path", target)
}

func TestNewJob(t *testing.T) {
	t.Run("starts queued", func(t *testing.T) {
		j := newQueuedJob(t)

		assert.Equal(t, StatusQueued, j.Status)
		assert.True(t, j.Status.Processing())
		require.Len(t, j.GetDomainEvents(), 1)
		assert.Equal(t, EventJobSubmitted, j.GetDomainEvents()[0].EventType())
	})

	t.Run("rejects empty file", func(t *testing.T) {
		_, err := NewJob(uuid.New(), "empty.pdf", "application/pdf", 0, "")
		assert.Error(t, err)
	})

	t.Run("child job references parent", func(t *testing.T) {
		parent := newQueuedJob(t)

		child, err := NewChildJob(parent, "invoice-p2.png", 512)

		require.NoError(t, err)
		assert.Equal(t, StatusQueued, child.Status)
		assert.Equal(t, parent.CompanyID, child.CompanyID)
		require.NotNil(t, child.ParentID)
		assert.Equal(t, parent.ID, *child.ParentID)
	})
}

func TestJobTransitions(t *testing.T) {
	t.Run("walks the full pipeline", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusApproved)
		assert.True(t, j.Status.Terminal())
	})

	t.Run("cannot skip stages", func(t *testing.T) {
		j := newQueuedJob(t)
		assert.Error(t, j.Transition(StatusOCR))
		assert.Error(t, j.Transition(StatusReady))
		assert.Equal(t, StatusQueued, j.Status)
	})

	t.Run("cannot move backwards", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusScanning)
		assert.Error(t, j.Transition(StatusUploading))
	})

	t.Run("split only from scanning", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusScanning)

		require.NoError(t, j.Transition(StatusSplit))
		assert.True(t, j.Status.Terminal())
	})

	t.Run("analyzing may settle directly as approved", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusAnalyzing)

		require.NoError(t, j.Transition(StatusApproved))
	})

	t.Run("error reachable from any processing stage", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusOCR)

		require.NoError(t, j.Fail("ocr provider unavailable"))

		assert.Equal(t, StatusError, j.Status)
		assert.Equal(t, "ocr provider unavailable", j.Error)
	})

	t.Run("terminal job cannot fail", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusScanning)
		require.NoError(t, j.Transition(StatusSplit))

		assert.Error(t, j.Fail("late failure"))
	})
}

func TestJobClassification(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	t.Run("accepts balanced lines", func(t *testing.T) {
		j := newQueuedJob(t)
		c := &Classification{
			DocumentType: TypeInvoice,
			Counterparty: "Nordic Office AB",
			Currency:     valueobject.SEK,
			TotalAmount:  decimal.NewFromInt(1250),
			VATAmount:    decimal.NewFromInt(250),
			InvoiceDate:  &date,
			Confidence:   0.92,
			Lines: []LineItem{
				{Description: "Paper", NetAmount: decimal.NewFromInt(1000), VATAmount: decimal.NewFromInt(250), Account: "4010"},
			},
		}

		require.NoError(t, j.SetClassification(c))
		require.NotNil(t, j.DocDate)
		assert.True(t, j.DocDate.Equal(date))
	})

	t.Run("rejects unbalanced lines", func(t *testing.T) {
		j := newQueuedJob(t)
		c := &Classification{
			TotalAmount: decimal.NewFromInt(1250),
			Lines: []LineItem{
				{NetAmount: decimal.NewFromInt(900), VATAmount: decimal.NewFromInt(250)},
			},
		}

		assert.Error(t, j.SetClassification(c))
		assert.Nil(t, j.Class)
	})
}

func TestJobPosting(t *testing.T) {
	t.Run("records voucher number once", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusApproved)

		require.NoError(t, j.MarkPosted("A2024-0001"))

		assert.True(t, j.Posted)
		assert.Equal(t, "A2024-0001", j.VoucherNo)
		assert.NotNil(t, j.PostedAt)
	})

	t.Run("second posting attempt is refused", func(t *testing.T) {
		j := newQueuedJob(t)
		advanceTo(t, j, StatusApproved)
		require.NoError(t, j.MarkPosted("A2024-0001"))

		err := j.MarkPosted("A2024-0002")

		assert.ErrorIs(t, err, shared.ErrAlreadyPosted)
		assert.Equal(t, "A2024-0001", j.VoucherNo)
	})
}
