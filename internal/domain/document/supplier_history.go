package document

import (
	"time"

	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SupplierHistory accumulates per-supplier invoice statistics for anomaly
// scoring. One row per (company, normalized supplier name), updated at
// posting time.
type SupplierHistory struct {
	shared.BaseEntity
	CompanyID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_supplier_company_name,priority:1" json:"company_id"`
	NormalizedName  string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_supplier_company_name,priority:2" json:"normalized_name"`
	DisplayName     string          `gorm:"type:varchar(255);not null" json:"display_name"`
	InvoiceCount    int             `gorm:"not null;default:0" json:"invoice_count"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	KnownAccounts   []string        `gorm:"serializer:json" json:"known_accounts,omitempty"`
	LastInvoiceDate *time.Time      `json:"last_invoice_date,omitempty"`
}

// TableName returns the table name for GORM
func (SupplierHistory) TableName() string {
	return "supplier_histories"
}

// NewSupplierHistory creates an empty history row for a first-seen supplier
func NewSupplierHistory(companyID uuid.UUID, normalizedName, displayName string) *SupplierHistory {
	return &SupplierHistory{
		BaseEntity:     shared.NewBaseEntity(),
		CompanyID:      companyID,
		NormalizedName: normalizedName,
		DisplayName:    displayName,
		KnownAccounts:  make([]string, 0),
	}
}

// AverageAmount returns the mean invoice amount, zero when no invoices exist
func (h *SupplierHistory) AverageAmount() decimal.Decimal {
	if h.InvoiceCount == 0 {
		return decimal.Zero
	}
	return h.TotalAmount.Div(decimal.NewFromInt(int64(h.InvoiceCount))).Round(2)
}

// Record folds one posted invoice into the running statistics
func (h *SupplierHistory) Record(amount decimal.Decimal, account string, invoiceDate time.Time) {
	h.InvoiceCount++
	h.TotalAmount = h.TotalAmount.Add(amount)
	if account != "" && !h.knowsAccount(account) {
		h.KnownAccounts = append(h.KnownAccounts, account)
	}
	if h.LastInvoiceDate == nil || invoiceDate.After(*h.LastInvoiceDate) {
		d := invoiceDate
		h.LastInvoiceDate = &d
	}
	h.UpdatedAt = time.Now()
}

func (h *SupplierHistory) knowsAccount(account string) bool {
	for _, a := range h.KnownAccounts {
		if a == account {
			return true
		}
	}
	return false
}

// Scoring projects the row into the shape the anomaly scorer reads. A nil
// receiver means a first-ever supplier and projects to an empty history.
func (h *SupplierHistory) Scoring() anomaly.SupplierHistory {
	if h == nil {
		return anomaly.SupplierHistory{}
	}
	return anomaly.SupplierHistory{
		InvoiceCount:    h.InvoiceCount,
		AverageAmount:   h.AverageAmount(),
		KnownAccounts:   h.KnownAccounts,
		LastInvoiceDate: h.LastInvoiceDate,
	}
}
