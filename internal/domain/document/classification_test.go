package document

import (
	"testing"
	"time"

	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestClassificationBalance(t *testing.T) {
	t.Run("exact match balances", func(t *testing.T) {
		c := &Classification{
			TotalAmount: dec("1250.00"),
			Lines: []LineItem{
				{NetAmount: dec("1000.00"), VATAmount: dec("250.00")},
			},
		}
		assert.True(t, c.Balanced())
	})

	t.Run("one minor unit off still balances", func(t *testing.T) {
		c := &Classification{
			TotalAmount: dec("1250.00"),
			Lines: []LineItem{
				{NetAmount: dec("999.99"), VATAmount: dec("250.00")},
			},
		}
		assert.True(t, c.Balanced())
	})

	t.Run("two minor units off does not", func(t *testing.T) {
		c := &Classification{
			TotalAmount: dec("1250.00"),
			Lines: []LineItem{
				{NetAmount: dec("999.98"), VATAmount: dec("250.00")},
			},
		}
		assert.False(t, c.Balanced())
	})

	t.Run("no lines is trivially balanced", func(t *testing.T) {
		c := &Classification{TotalAmount: dec("1250.00")}
		assert.True(t, c.Balanced())
	})
}

func TestClassificationFoldResidue(t *testing.T) {
	c := &Classification{
		TotalAmount: dec("300.00"),
		Lines: []LineItem{
			{Description: "small", NetAmount: dec("79.99"), VATAmount: dec("20.00")},
			{Description: "large", NetAmount: dec("160.00"), VATAmount: dec("40.00")},
		},
	}

	c.FoldResidue()

	assert.True(t, c.LineSum().Equal(c.TotalAmount))
	assert.True(t, c.Lines[1].NetAmount.Equal(dec("160.01")), "residue lands on the largest line")
	assert.True(t, c.Lines[0].NetAmount.Equal(dec("79.99")))
}

func TestClassificationConvert(t *testing.T) {
	t.Run("converts totals and lines and stays balanced", func(t *testing.T) {
		c := &Classification{
			Currency:    valueobject.EUR,
			TotalAmount: dec("100.00"),
			VATAmount:   dec("20.00"),
			Lines: []LineItem{
				{NetAmount: dec("33.33"), VATAmount: dec("6.67")},
				{NetAmount: dec("46.67"), VATAmount: dec("13.33")},
			},
		}

		require.NoError(t, c.Convert(valueobject.SEK, dec("11.37")))

		assert.Equal(t, valueobject.SEK, c.Currency)
		assert.True(t, c.TotalAmount.Equal(dec("1137.00")))
		assert.True(t, c.Balanced())
		assert.True(t, c.LineSum().Sub(c.TotalAmount).Abs().LessThanOrEqual(valueobject.MinorUnit))
	})

	t.Run("same currency is a no-op", func(t *testing.T) {
		c := &Classification{Currency: valueobject.SEK, TotalAmount: dec("100.00")}
		require.NoError(t, c.Convert(valueobject.SEK, dec("11.37")))
		assert.True(t, c.TotalAmount.Equal(dec("100.00")))
	})

	t.Run("non positive rate is refused", func(t *testing.T) {
		c := &Classification{Currency: valueobject.EUR, TotalAmount: dec("100.00")}
		assert.Error(t, c.Convert(valueobject.SEK, decimal.Zero))
	})
}

func TestClassificationMissingFields(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	t.Run("complete invoice has none", func(t *testing.T) {
		c := &Classification{
			DocumentType:  TypeInvoice,
			Counterparty:  "Nordic Office AB",
			InvoiceNumber: "F-1001",
			TotalAmount:   dec("1250.00"),
			InvoiceDate:   &date,
		}
		assert.Empty(t, c.MissingFields())
	})

	t.Run("invoice without number is flagged", func(t *testing.T) {
		c := &Classification{
			DocumentType: TypeInvoice,
			Counterparty: "Nordic Office AB",
			TotalAmount:  dec("1250.00"),
			InvoiceDate:  &date,
		}
		assert.Equal(t, []string{"invoice_number"}, c.MissingFields())
	})

	t.Run("receipt without number is fine", func(t *testing.T) {
		c := &Classification{
			DocumentType: TypeReceipt,
			Counterparty: "Espresso House",
			TotalAmount:  dec("85.00"),
			InvoiceDate:  &date,
		}
		assert.Empty(t, c.MissingFields())
	})

	t.Run("empty extraction flags everything", func(t *testing.T) {
		c := &Classification{DocumentType: TypeInvoice}
		assert.ElementsMatch(t,
			[]string{"counterparty", "total_amount", "invoice_date", "invoice_number"},
			c.MissingFields())
	})
}

func TestClassificationFacts(t *testing.T) {
	date := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	c := &Classification{
		Counterparty:  "Nordic Office AB",
		InvoiceNumber: "F-1001",
		TotalAmount:   dec("1250.00"),
		VATAmount:     dec("250.00"),
		InvoiceDate:   &date,
		Confidence:    0.92,
		Lines: []LineItem{
			{NetAmount: dec("200.00"), VATAmount: dec("50.00"), Account: "5810"},
			{NetAmount: dec("800.00"), VATAmount: dec("200.00"), Account: "4010"},
		},
	}

	f := c.Facts()

	assert.Equal(t, "Nordic Office AB", f.SupplierName)
	assert.Equal(t, "4010", f.SuggestedAccount, "largest line wins")
	assert.True(t, f.Amount.Equal(dec("1250.00")))
	assert.True(t, f.InvoiceDate.Equal(date))
}
