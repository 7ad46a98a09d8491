package approval

import (
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an approval request
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusEscalated Status = "ESCALATED"
	StatusDelegated Status = "DELEGATED"
)

// AwaitingDecision reports whether the request still accepts approval actions.
// A delegated request is still pending decision.
func (s Status) AwaitingDecision() bool {
	return s == StatusPending || s == StatusDelegated
}

// ActionType names an entry in the request's action log
type ActionType string

const (
	ActionApproved  ActionType = "APPROVED"
	ActionRejected  ActionType = "REJECTED"
	ActionEscalated ActionType = "ESCALATED"
	ActionDelegated ActionType = "DELEGATED"
)

// Action is one append-only entry in the approval trail
type Action struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key"`
	RequestID uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type      ActionType `gorm:"type:varchar(20);not null"`
	Actor     uuid.UUID  `gorm:"type:uuid;not null"`
	ActorRole Role       `gorm:"type:varchar(20);not null"`
	Comment   string     `gorm:"type:varchar(500)"`
	CreatedAt time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (Action) TableName() string {
	return "approval_actions"
}

func newAction(requestID uuid.UUID, actionType ActionType, actor uuid.UUID, role Role, comment string) Action {
	return Action{
		ID:        uuid.New(),
		RequestID: requestID,
		Type:      actionType,
		Actor:     actor,
		ActorRole: role,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
}

// Request is the approval request aggregate. One request is active per job;
// escalation supersedes it with a new request one tier up rather than
// mutating the old one.
type Request struct {
	shared.CompanyAggregateRoot
	JobID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Level        Level           `gorm:"type:varchar(20);not null"`
	Status       Status          `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	RequiresDual bool            `gorm:"not null;default:false"`
	Delegate     *uuid.UUID      `gorm:"type:uuid"`
	SupersededBy *uuid.UUID      `gorm:"type:uuid"`
	DueAt        time.Time       `gorm:"not null;index"`
	Actions      []Action        `gorm:"foreignKey:RequestID;references:ID"`
}

// TableName returns the table name for GORM
func (Request) TableName() string {
	return "approval_requests"
}

// NewRequest creates a pending approval request for a document job
func NewRequest(companyID, jobID uuid.UUID, amount decimal.Decimal, level Level, requiresDual bool, dueAt time.Time) (*Request, error) {
	if jobID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_JOB", "Job ID is required")
	}
	if !level.IsValid() || level == LevelAuto {
		return nil, shared.NewDomainError("INVALID_LEVEL", fmt.Sprintf("Level %q cannot carry an approval request", level))
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Amount must be positive")
	}
	if dueAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Escalation deadline is required")
	}

	r := &Request{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		JobID:                jobID,
		Amount:               amount,
		Level:                level,
		Status:               StatusPending,
		RequiresDual:         requiresDual,
		DueAt:                dueAt,
		Actions:              make([]Action, 0),
	}
	r.AddDomainEvent(NewRequestCreatedEvent(r))
	return r, nil
}

// authorize checks the fixed role hierarchy against the request's tier.
// A failed check leaves the request untouched.
func (r *Request) authorize(actor uuid.UUID, role Role) error {
	if actor == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Actor ID is required")
	}
	if !role.IsValid() {
		return shared.NewDomainError("INVALID_ROLE", fmt.Sprintf("Unknown role %q", role))
	}
	if !role.AtLeast(RequiredRole(r.Level)) {
		return shared.NewDomainError("INSUFFICIENT_ROLE",
			fmt.Sprintf("Role %s cannot act on a %s-level request", role, r.Level))
	}
	return nil
}

// approvalsSoFar counts distinct approvers already recorded
func (r *Request) approvalsSoFar() map[uuid.UUID]bool {
	approvers := make(map[uuid.UUID]bool)
	for _, a := range r.Actions {
		if a.Type == ActionApproved {
			approvers[a.Actor] = true
		}
	}
	return approvers
}

// Approve records an approval. With dual approval enabled the first approval
// keeps the request pending; the second, from a different approver, settles it.
func (r *Request) Approve(actor uuid.UUID, role Role, comment string) error {
	if !r.Status.AwaitingDecision() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot approve a %s request", r.Status))
	}
	if err := r.authorize(actor, role); err != nil {
		return err
	}

	approvers := r.approvalsSoFar()
	if approvers[actor] {
		return shared.NewDomainError("DUPLICATE_APPROVAL", "Actor has already approved this request")
	}

	r.Actions = append(r.Actions, newAction(r.ID, ActionApproved, actor, role, comment))
	approvers[actor] = true

	if !r.RequiresDual || len(approvers) >= 2 {
		r.Status = StatusApproved
		r.AddDomainEvent(NewRequestApprovedEvent(r, actor))
	}

	r.UpdatedAt = time.Now()
	r.IncrementVersion()
	return nil
}

// Reject settles the request as rejected. One rejection is final regardless
// of the dual-approval setting.
func (r *Request) Reject(actor uuid.UUID, role Role, comment string) error {
	if !r.Status.AwaitingDecision() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot reject a %s request", r.Status))
	}
	if err := r.authorize(actor, role); err != nil {
		return err
	}

	r.Actions = append(r.Actions, newAction(r.ID, ActionRejected, actor, role, comment))
	r.Status = StatusRejected
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
	r.AddDomainEvent(NewRequestRejectedEvent(r, actor))
	return nil
}

// Escalate supersedes the request with a new pending request one tier up.
// The system role may escalate (the overdue sweep); human actors need the
// tier's required role.
func (r *Request) Escalate(actor uuid.UUID, role Role, reason string, dueAt time.Time) (*Request, error) {
	if !r.Status.AwaitingDecision() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot escalate a %s request", r.Status))
	}
	if role != RoleSystem {
		if err := r.authorize(actor, role); err != nil {
			return nil, err
		}
	} else if actor == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "Actor ID is required")
	}
	if r.Level == LevelExecutive {
		return nil, shared.NewDomainError("INVALID_STATE", "Executive requests have no higher tier")
	}

	successor := &Request{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(r.CompanyID),
		JobID:                r.JobID,
		Amount:               r.Amount,
		Level:                r.Level.Next(),
		Status:               StatusPending,
		RequiresDual:         r.RequiresDual,
		DueAt:                dueAt,
		Actions:              make([]Action, 0),
	}

	r.Actions = append(r.Actions, newAction(r.ID, ActionEscalated, actor, role, reason))
	r.Status = StatusEscalated
	r.SupersededBy = &successor.ID
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
	r.AddDomainEvent(NewRequestEscalatedEvent(r, successor))
	return successor, nil
}

// DelegateTo reassigns the request to a named delegate. The tier does not
// change and the request still awaits a decision.
func (r *Request) DelegateTo(actor uuid.UUID, role Role, delegate uuid.UUID, comment string) error {
	if !r.Status.AwaitingDecision() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot delegate a %s request", r.Status))
	}
	if err := r.authorize(actor, role); err != nil {
		return err
	}
	if delegate == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Delegate ID is required")
	}
	if delegate == actor {
		return shared.NewDomainError("INVALID_USER", "Cannot delegate to yourself")
	}

	r.Actions = append(r.Actions, newAction(r.ID, ActionDelegated, actor, role, comment))
	r.Delegate = &delegate
	r.Status = StatusDelegated
	r.UpdatedAt = time.Now()
	r.IncrementVersion()
	return nil
}

// IsOverdue reports whether the request has been awaiting a decision past
// its escalation deadline
func (r *Request) IsOverdue(now time.Time) bool {
	return r.Status.AwaitingDecision() && now.After(r.DueAt)
}

// ApprovalCount returns the number of distinct approvers recorded
func (r *Request) ApprovalCount() int {
	return len(r.approvalsSoFar())
}
