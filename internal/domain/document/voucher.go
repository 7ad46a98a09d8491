package document

import (
	"fmt"
	"regexp"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// accountPattern is the four-digit BAS chart account format
var accountPattern = regexp.MustCompile(`^[1-8][0-9]{3}$`)

// Default BAS accounts used when the extraction did not suggest one
const (
	DefaultExpenseAccount  = "4010"
	InputVATAccount        = "2641"
	AccountsPayableAccount = "2440"
	CashAccount            = "1930"
)

// VoucherLine is one side of a double-entry booking. Exactly one of Debit
// and Credit is non-zero.
type VoucherLine struct {
	Account     string          `json:"account"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Voucher is the posted ledger entry produced from an approved document
type Voucher struct {
	shared.CompanyAggregateRoot
	JobID    uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex" json:"job_id"`
	Number   string               `gorm:"type:varchar(20);not null;index" json:"number"`
	Series   string               `gorm:"type:varchar(1);not null;index:idx_voucher_series" json:"series"`
	Year     int                  `gorm:"not null;index:idx_voucher_series" json:"year"`
	Sequence int64                `gorm:"not null" json:"sequence"`
	Date     time.Time            `gorm:"not null;index" json:"date"`
	Text     string               `gorm:"type:varchar(255)" json:"text"`
	Currency valueobject.Currency `gorm:"type:varchar(3);not null" json:"currency"`
	Lines    []VoucherLine        `gorm:"serializer:json" json:"lines"`
}

// TableName returns the table name for GORM
func (Voucher) TableName() string {
	return "vouchers"
}

// NewVoucher creates a voucher and validates it structurally
func NewVoucher(companyID, jobID uuid.UUID, number, series string, year int, sequence int64, date time.Time, text string, currency valueobject.Currency, lines []VoucherLine) (*Voucher, error) {
	v := &Voucher{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		JobID:                jobID,
		Number:               number,
		Series:               series,
		Year:                 year,
		Sequence:             sequence,
		Date:                 date,
		Text:                 text,
		Currency:             currency,
		Lines:                lines,
	}
	if problems := v.Validate(); len(problems) > 0 {
		return nil, shared.NewDomainError("INVALID_VOUCHER", problems[0])
	}
	return v, nil
}

// TotalDebit returns the sum of all debit amounts
func (v *Voucher) TotalDebit() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range v.Lines {
		sum = sum.Add(l.Debit)
	}
	return sum
}

// TotalCredit returns the sum of all credit amounts
func (v *Voucher) TotalCredit() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range v.Lines {
		sum = sum.Add(l.Credit)
	}
	return sum
}

// Balanced reports whether debits equal credits exactly
func (v *Voucher) Balanced() bool {
	return v.TotalDebit().Equal(v.TotalCredit())
}

// PostingLines derives the double-entry lines for a classified document:
// each extracted line's net on its expense account, the VAT on the input VAT
// account, and the gross total on the counterparty account. Receipts book
// against cash instead of accounts payable; credit notes book with the sides
// reversed. The lines balance exactly because the credit side is derived from
// the debit side, not from the extracted total.
func PostingLines(c *Classification) []VoucherLine {
	counterAccount := AccountsPayableAccount
	if c.DocumentType == TypeReceipt {
		counterAccount = CashAccount
	}

	type booking struct {
		account     string
		description string
		amount      decimal.Decimal
	}
	var nets []booking
	vat := c.VATAmount

	if len(c.Lines) == 0 {
		nets = append(nets, booking{DefaultExpenseAccount, c.Counterparty, c.TotalAmount.Sub(c.VATAmount)})
	} else {
		vat = decimal.Zero
		for _, l := range c.Lines {
			vat = vat.Add(l.VATAmount)
			if l.NetAmount.IsZero() {
				continue
			}
			account := l.Account
			if !accountPattern.MatchString(account) {
				account = DefaultExpenseAccount
			}
			nets = append(nets, booking{account, l.Description, l.NetAmount})
		}
	}

	gross := vat
	for _, n := range nets {
		gross = gross.Add(n.amount)
	}

	reversed := c.DocumentType == TypeCreditNote
	line := func(account, description string, amount decimal.Decimal, debitSide bool) VoucherLine {
		if reversed {
			debitSide = !debitSide
		}
		if debitSide {
			return VoucherLine{Account: account, Description: description, Debit: amount}
		}
		return VoucherLine{Account: account, Description: description, Credit: amount}
	}

	lines := make([]VoucherLine, 0, len(nets)+2)
	for _, n := range nets {
		lines = append(lines, line(n.account, n.description, n.amount, true))
	}
	if vat.IsPositive() {
		lines = append(lines, line(InputVATAccount, "VAT", vat, true))
	}
	lines = append(lines, line(counterAccount, c.Counterparty, gross, false))
	return lines
}

// Validate returns every structural problem with the voucher. An empty slice
// means the voucher is postable.
func (v *Voucher) Validate() []string {
	var problems []string

	if v.JobID == uuid.Nil {
		problems = append(problems, "Voucher must reference a document job")
	}
	if v.Number == "" {
		problems = append(problems, "Voucher number is required")
	}
	if len(v.Lines) < 2 {
		problems = append(problems, "Voucher needs at least two lines")
	}
	if v.Date.IsZero() {
		problems = append(problems, "Voucher date is required")
	} else if v.Date.Year() != v.Year {
		problems = append(problems, fmt.Sprintf("Voucher date %s falls outside series year %d", v.Date.Format("2006-01-02"), v.Year))
	}

	for i, l := range v.Lines {
		if !accountPattern.MatchString(l.Account) {
			problems = append(problems, fmt.Sprintf("Line %d has invalid account %q", i+1, l.Account))
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			problems = append(problems, fmt.Sprintf("Line %d has a negative amount", i+1))
		}
		if l.Debit.IsZero() == l.Credit.IsZero() {
			problems = append(problems, fmt.Sprintf("Line %d must carry exactly one of debit or credit", i+1))
		}
	}

	if len(v.Lines) >= 2 && !v.Balanced() {
		problems = append(problems, fmt.Sprintf("Voucher is unbalanced: debit %s, credit %s", v.TotalDebit(), v.TotalCredit()))
	}
	return problems
}
