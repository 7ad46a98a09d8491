package document

import (
	"time"

	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Type is the recognized kind of a scanned document
type Type string

const (
	TypeInvoice       Type = "INVOICE"
	TypeReceipt       Type = "RECEIPT"
	TypeCreditNote    Type = "CREDIT_NOTE"
	TypeBankStatement Type = "BANK_STATEMENT"
	TypeUnknown       Type = "UNKNOWN"
)

// LineItem is one extracted booking line
type LineItem struct {
	Description string          `json:"description"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Account     string          `json:"account,omitempty"`
	Confidence  float64         `json:"confidence"`
}

// Gross returns net plus VAT for the line
func (l LineItem) Gross() decimal.Decimal {
	return l.NetAmount.Add(l.VATAmount)
}

// Classification holds the financial facts extracted from a document. It is
// replaced wholesale on re-classification or currency conversion, never
// patched field by field.
type Classification struct {
	DocumentType  Type                 `json:"document_type"`
	Counterparty  string               `json:"counterparty"`
	InvoiceNumber string               `json:"invoice_number,omitempty"`
	Currency      valueobject.Currency `json:"currency"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	VATAmount     decimal.Decimal      `json:"vat_amount"`
	InvoiceDate   *time.Time           `json:"invoice_date,omitempty"`
	DueDate       *time.Time           `json:"due_date,omitempty"`
	Confidence    float64              `json:"confidence"`
	Lines         []LineItem           `json:"lines,omitempty"`
}

// LineSum returns the gross sum of all lines
func (c *Classification) LineSum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.Gross())
	}
	return sum
}

// Balanced reports whether the line sum matches the total within one
// currency minor unit. A classification without lines is trivially balanced.
func (c *Classification) Balanced() bool {
	if len(c.Lines) == 0 {
		return true
	}
	return c.LineSum().Sub(c.TotalAmount).Abs().LessThanOrEqual(valueobject.MinorUnit)
}

// FoldResidue absorbs any sub-minor-unit rounding residue between the line
// sum and the total into the net amount of the largest line
func (c *Classification) FoldResidue() {
	if len(c.Lines) == 0 {
		return
	}
	residue := c.TotalAmount.Sub(c.LineSum())
	if residue.IsZero() {
		return
	}

	largest := 0
	for i, l := range c.Lines {
		if l.Gross().Abs().GreaterThan(c.Lines[largest].Gross().Abs()) {
			largest = i
		}
	}
	c.Lines[largest].NetAmount = c.Lines[largest].NetAmount.Add(residue)
}

// Convert rewrites every amount into the target currency at the given rate,
// rounded to two decimals, folding the rounding residue back into the largest
// line so the balance invariant survives conversion.
func (c *Classification) Convert(target valueobject.Currency, rate decimal.Decimal) error {
	if c.Currency == target {
		return nil
	}

	total, err := valueobject.NewMoney(c.TotalAmount, c.Currency)
	if err != nil {
		return err
	}
	converted, err := total.Convert(target, rate)
	if err != nil {
		return err
	}
	c.TotalAmount = converted.Amount()
	c.VATAmount = c.VATAmount.Mul(rate).Round(2)

	for i := range c.Lines {
		c.Lines[i].NetAmount = c.Lines[i].NetAmount.Mul(rate).Round(2)
		c.Lines[i].VATAmount = c.Lines[i].VATAmount.Mul(rate).Round(2)
	}
	c.Currency = target
	c.FoldResidue()

	if !c.Balanced() {
		return shared.NewDomainError("UNBALANCED_LINES", "Line sum diverged from total after conversion")
	}
	return nil
}

// MissingFields returns the required fields the extraction failed to fill.
// Invoice numbers are only required for invoices and credit notes.
func (c *Classification) MissingFields() []string {
	var missing []string
	if c.Counterparty == "" {
		missing = append(missing, "counterparty")
	}
	if c.TotalAmount.IsZero() {
		missing = append(missing, "total_amount")
	}
	if c.InvoiceDate == nil {
		missing = append(missing, "invoice_date")
	}
	if c.InvoiceNumber == "" && (c.DocumentType == TypeInvoice || c.DocumentType == TypeCreditNote) {
		missing = append(missing, "invoice_number")
	}
	return missing
}

// SuggestedAccount returns the account of the largest line, if any
func (c *Classification) SuggestedAccount() string {
	if len(c.Lines) == 0 {
		return ""
	}
	largest := 0
	for i, l := range c.Lines {
		if l.Gross().Abs().GreaterThan(c.Lines[largest].Gross().Abs()) {
			largest = i
		}
	}
	return c.Lines[largest].Account
}

// Facts projects the classification into the shape the anomaly scorer reads
func (c *Classification) Facts() anomaly.Facts {
	f := anomaly.Facts{
		SupplierName:     c.Counterparty,
		InvoiceNumber:    c.InvoiceNumber,
		Amount:           c.TotalAmount,
		VATAmount:        c.VATAmount,
		SuggestedAccount: c.SuggestedAccount(),
		Confidence:       c.Confidence,
	}
	if c.InvoiceDate != nil {
		f.InvoiceDate = *c.InvoiceDate
	}
	return f
}
