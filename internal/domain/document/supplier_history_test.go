package document

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupplierHistoryRecord(t *testing.T) {
	h := NewSupplierHistory(uuid.New(), "nordic office", "Nordic Office AB")

	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)

	h.Record(decimal.NewFromInt(800), "4010", d1)
	h.Record(decimal.NewFromInt(1200), "4010", d2)
	h.Record(decimal.NewFromInt(1000), "5810", d1)

	assert.Equal(t, 3, h.InvoiceCount)
	assert.True(t, h.AverageAmount().Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{"4010", "5810"}, h.KnownAccounts, "accounts deduplicated in order")
	require.NotNil(t, h.LastInvoiceDate)
	assert.True(t, h.LastInvoiceDate.Equal(d2), "earlier invoice does not move the latest date back")
}

func TestSupplierHistoryScoring(t *testing.T) {
	t.Run("nil history means first-ever supplier", func(t *testing.T) {
		var h *SupplierHistory

		s := h.Scoring()

		assert.Zero(t, s.InvoiceCount)
		assert.True(t, s.AverageAmount.IsZero())
		assert.Nil(t, s.LastInvoiceDate)
	})

	t.Run("projects running stats", func(t *testing.T) {
		h := NewSupplierHistory(uuid.New(), "nordic office", "Nordic Office AB")
		h.Record(decimal.NewFromInt(900), "4010", time.Now())

		s := h.Scoring()

		assert.Equal(t, 1, s.InvoiceCount)
		assert.True(t, s.AverageAmount.Equal(decimal.NewFromInt(900)))
		assert.Equal(t, []string{"4010"}, s.KnownAccounts)
	})
}
