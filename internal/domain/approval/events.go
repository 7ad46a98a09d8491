package approval

import (
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types for approval requests
const (
	EventRequestCreated   = "approval.request.created"
	EventRequestApproved  = "approval.request.approved"
	EventRequestRejected  = "approval.request.rejected"
	EventRequestEscalated = "approval.request.escalated"
)

const aggregateType = "ApprovalRequest"

// RequestCreatedEvent is raised when an approval request is opened
type RequestCreatedEvent struct {
	shared.BaseDomainEvent
	JobID  uuid.UUID `json:"job_id"`
	Level  Level     `json:"level"`
	Amount string    `json:"amount"`
}

// NewRequestCreatedEvent creates a RequestCreatedEvent
func NewRequestCreatedEvent(r *Request) *RequestCreatedEvent {
	return &RequestCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventRequestCreated, aggregateType, r.ID, r.CompanyID),
		JobID:           r.JobID,
		Level:           r.Level,
		Amount:          r.Amount.String(),
	}
}

// RequestApprovedEvent is raised when a request settles as approved
type RequestApprovedEvent struct {
	shared.BaseDomainEvent
	JobID      uuid.UUID `json:"job_id"`
	ApprovedBy uuid.UUID `json:"approved_by"`
}

// NewRequestApprovedEvent creates a RequestApprovedEvent
func NewRequestApprovedEvent(r *Request, approvedBy uuid.UUID) *RequestApprovedEvent {
	return &RequestApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventRequestApproved, aggregateType, r.ID, r.CompanyID),
		JobID:           r.JobID,
		ApprovedBy:      approvedBy,
	}
}

// RequestRejectedEvent is raised when a request settles as rejected
type RequestRejectedEvent struct {
	shared.BaseDomainEvent
	JobID      uuid.UUID `json:"job_id"`
	RejectedBy uuid.UUID `json:"rejected_by"`
}

// NewRequestRejectedEvent creates a RequestRejectedEvent
func NewRequestRejectedEvent(r *Request, rejectedBy uuid.UUID) *RequestRejectedEvent {
	return &RequestRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventRequestRejected, aggregateType, r.ID, r.CompanyID),
		JobID:           r.JobID,
		RejectedBy:      rejectedBy,
	}
}

// RequestEscalatedEvent is raised when a request is superseded one tier up
type RequestEscalatedEvent struct {
	shared.BaseDomainEvent
	JobID       uuid.UUID `json:"job_id"`
	SuccessorID uuid.UUID `json:"successor_id"`
	NewLevel    Level     `json:"new_level"`
}

// NewRequestEscalatedEvent creates a RequestEscalatedEvent
func NewRequestEscalatedEvent(r *Request, successor *Request) *RequestEscalatedEvent {
	return &RequestEscalatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventRequestEscalated, aggregateType, r.ID, r.CompanyID),
		JobID:           r.JobID,
		SuccessorID:     successor.ID,
		NewLevel:        successor.Level,
	}
}
