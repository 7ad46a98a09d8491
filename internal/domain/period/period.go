package period

import (
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an accounting period
type Status string

const (
	StatusOpen    Status = "OPEN"
	StatusClosing Status = "CLOSING"
	StatusClosed  Status = "CLOSED"
	StatusLocked  Status = "LOCKED"
)

// HistoryAction names an entry in the period's audit history
type HistoryAction string

const (
	HistoryClosed      HistoryAction = "CLOSED"
	HistoryForceClosed HistoryAction = "FORCE_CLOSED"
	HistoryLocked      HistoryAction = "LOCKED"
	HistoryReopened    HistoryAction = "REOPENED"
)

// HistoryEntry is one append-only record in the period's audit trail.
// Forced closes keep their failing checks here for later audit.
type HistoryEntry struct {
	ID           uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	PeriodID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"period_id"`
	Action       HistoryAction `gorm:"type:varchar(20);not null" json:"action"`
	Actor        uuid.UUID     `gorm:"type:uuid;not null" json:"actor"`
	Reason       string        `gorm:"type:varchar(500)" json:"reason,omitempty"`
	FailedChecks []CheckResult `gorm:"serializer:json" json:"failed_checks,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
}

// TableName returns the table name for GORM
func (HistoryEntry) TableName() string {
	return "period_history"
}

// Summary is the aggregate snapshot persisted when a period closes
type Summary struct {
	DocumentCount        int               `json:"document_count"`
	TotalAmount          decimal.Decimal   `json:"total_amount"`
	TotalVAT             decimal.Decimal   `json:"total_vat"`
	Currency             string            `json:"currency"`
	VoucherRanges        map[string]string `json:"voucher_ranges,omitempty"`
	UnmatchedBankEntries int               `json:"unmatched_bank_entries"`
}

// Period is the accounting period aggregate. Only OPEN periods accept new
// postings; CLOSED periods may be reopened, LOCKED ones may not.
type Period struct {
	shared.CompanyAggregateRoot
	Year     int            `gorm:"not null;uniqueIndex:idx_period_company_ym,priority:2" json:"year"`
	Month    int            `gorm:"not null;uniqueIndex:idx_period_company_ym,priority:3" json:"month"`
	Status   Status         `gorm:"type:varchar(10);not null;default:'OPEN'" json:"status"`
	ClosedAt *time.Time     `json:"closed_at,omitempty"`
	ClosedBy *uuid.UUID     `gorm:"type:uuid" json:"closed_by,omitempty"`
	LockedAt *time.Time     `json:"locked_at,omitempty"`
	LockedBy *uuid.UUID     `gorm:"type:uuid" json:"locked_by,omitempty"`
	Summary  *Summary       `gorm:"serializer:json" json:"summary,omitempty"`
	Checks   []CheckResult  `gorm:"serializer:json" json:"checks,omitempty"`
	History  []HistoryEntry `gorm:"foreignKey:PeriodID;references:ID" json:"history,omitempty"`
}

// TableName returns the table name for GORM
func (Period) TableName() string {
	return "accounting_periods"
}

// NewPeriod creates an open period for a company month
func NewPeriod(companyID uuid.UUID, year, month int) (*Period, error) {
	if companyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COMPANY", "Company ID is required")
	}
	if year < 2000 || year > 2999 {
		return nil, shared.NewDomainError("INVALID_YEAR", fmt.Sprintf("Year %d is out of range", year))
	}
	if month < 1 || month > 12 {
		return nil, shared.NewDomainError("INVALID_MONTH", fmt.Sprintf("Month %d is out of range", month))
	}

	return &Period{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		Year:                 year,
		Month:                month,
		Status:               StatusOpen,
		History:              make([]HistoryEntry, 0),
	}, nil
}

// Key returns the period's display key, e.g. "2024-06"
func (p *Period) Key() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}

// Window returns the half-open UTC interval [start, end) the period covers
func (p *Period) Window() (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether a document date falls inside the period window
func (p *Period) Contains(date time.Time) bool {
	start, end := p.Window()
	d := date.UTC()
	return !d.Before(start) && d.Before(end)
}

// AssertWritable returns an error unless the period accepts new postings.
// Posting paths must call this inside the same transaction that writes
// ledger data.
func (p *Period) AssertWritable() error {
	if p.Status != StatusOpen {
		return shared.ErrPeriodNotWritable
	}
	return nil
}

// BeginClose moves an open period into the transient CLOSING state while the
// pre-close checks execute
func (p *Period) BeginClose() error {
	if p.Status != StatusOpen {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot close a %s period", p.Status))
	}
	p.Status = StatusClosing
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// AbortClose returns a period to OPEN after a failed close attempt. The check
// results stay on the aggregate so callers can see what failed.
func (p *Period) AbortClose(checks []CheckResult) error {
	if p.Status != StatusClosing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot abort close of a %s period", p.Status))
	}
	p.Status = StatusOpen
	p.Checks = checks
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// CompleteClose settles a CLOSING period as CLOSED, persisting the summary
// and an audit entry. A forced close records its failing checks in history.
func (p *Period) CompleteClose(actor uuid.UUID, summary Summary, checks []CheckResult, forced bool) error {
	if p.Status != StatusClosing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete close of a %s period", p.Status))
	}
	if actor == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Actor ID is required")
	}

	now := time.Now()
	action := HistoryClosed
	var failed []CheckResult
	if forced {
		action = HistoryForceClosed
		failed = FailedBlocking(checks)
	}

	p.Status = StatusClosed
	p.ClosedAt = &now
	p.ClosedBy = &actor
	p.Summary = &summary
	p.Checks = checks
	p.History = append(p.History, HistoryEntry{
		ID:           uuid.New(),
		PeriodID:     p.ID,
		Action:       action,
		Actor:        actor,
		FailedChecks: failed,
		CreatedAt:    now,
	})
	p.UpdatedAt = now
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodClosedEvent(p, actor, forced))
	return nil
}

// Lock makes a closed period immutable. There is no ordinary path back.
func (p *Period) Lock(actor uuid.UUID) error {
	if p.Status != StatusClosed {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot lock a %s period", p.Status))
	}
	if actor == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Actor ID is required")
	}

	now := time.Now()
	p.Status = StatusLocked
	p.LockedAt = &now
	p.LockedBy = &actor
	p.History = append(p.History, HistoryEntry{
		ID:        uuid.New(),
		PeriodID:  p.ID,
		Action:    HistoryLocked,
		Actor:     actor,
		CreatedAt: now,
	})
	p.UpdatedAt = now
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodLockedEvent(p, actor))
	return nil
}

// Reopen restores a closed period to OPEN with a recorded reason. Locked
// periods cannot be reopened.
func (p *Period) Reopen(actor uuid.UUID, reason string) error {
	if p.Status != StatusClosed {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot reopen a %s period", p.Status))
	}
	if actor == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Actor ID is required")
	}
	if reason == "" {
		return shared.NewDomainError("REASON_REQUIRED", "Reopening a period requires a reason")
	}

	now := time.Now()
	p.Status = StatusOpen
	p.ClosedAt = nil
	p.ClosedBy = nil
	p.History = append(p.History, HistoryEntry{
		ID:        uuid.New(),
		PeriodID:  p.ID,
		Action:    HistoryReopened,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: now,
	})
	p.UpdatedAt = now
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodReopenedEvent(p, actor, reason))
	return nil
}
