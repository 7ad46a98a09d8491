package period

import (
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types for accounting periods
const (
	EventPeriodClosed   = "period.closed"
	EventPeriodLocked   = "period.locked"
	EventPeriodReopened = "period.reopened"
)

const aggregateType = "AccountingPeriod"

// PeriodClosedEvent is raised when a period transitions to CLOSED
type PeriodClosedEvent struct {
	shared.BaseDomainEvent
	Year   int       `json:"year"`
	Month  int       `json:"month"`
	Actor  uuid.UUID `json:"actor"`
	Forced bool      `json:"forced"`
}

// NewPeriodClosedEvent creates a PeriodClosedEvent
func NewPeriodClosedEvent(p *Period, actor uuid.UUID, forced bool) *PeriodClosedEvent {
	return &PeriodClosedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPeriodClosed, aggregateType, p.ID, p.CompanyID),
		Year:            p.Year,
		Month:           p.Month,
		Actor:           actor,
		Forced:          forced,
	}
}

// PeriodLockedEvent is raised when a closed period is locked
type PeriodLockedEvent struct {
	shared.BaseDomainEvent
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Actor uuid.UUID `json:"actor"`
}

// NewPeriodLockedEvent creates a PeriodLockedEvent
func NewPeriodLockedEvent(p *Period, actor uuid.UUID) *PeriodLockedEvent {
	return &PeriodLockedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPeriodLocked, aggregateType, p.ID, p.CompanyID),
		Year:            p.Year,
		Month:           p.Month,
		Actor:           actor,
	}
}

// PeriodReopenedEvent is raised when a closed period returns to OPEN
type PeriodReopenedEvent struct {
	shared.BaseDomainEvent
	Year   int       `json:"year"`
	Month  int       `json:"month"`
	Actor  uuid.UUID `json:"actor"`
	Reason string    `json:"reason"`
}

// NewPeriodReopenedEvent creates a PeriodReopenedEvent
func NewPeriodReopenedEvent(p *Period, actor uuid.UUID, reason string) *PeriodReopenedEvent {
	return &PeriodReopenedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPeriodReopened, aggregateType, p.ID, p.CompanyID),
		Year:            p.Year,
		Month:           p.Month,
		Actor:           actor,
		Reason:          reason,
	}
}
