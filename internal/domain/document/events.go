package document

import (
	"github.com/erp/docledger/internal/domain/shared"
)

// Event types for document jobs
const (
	EventJobSubmitted = "document.job.submitted"
	EventJobSettled   = "document.job.settled"
	EventJobPosted    = "document.job.posted"
)

const aggregateType = "DocumentJob"

// JobSubmittedEvent is raised when a new file enters the pipeline
type JobSubmittedEvent struct {
	shared.BaseDomainEvent
	FileName string `json:"file_name"`
}

// NewJobSubmittedEvent creates a JobSubmittedEvent
func NewJobSubmittedEvent(j *Job) *JobSubmittedEvent {
	return &JobSubmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventJobSubmitted, aggregateType, j.ID, j.CompanyID),
		FileName:        j.FileName,
	}
}

// JobSettledEvent is raised when a job reaches ready or a terminal status
type JobSettledEvent struct {
	shared.BaseDomainEvent
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewJobSettledEvent creates a JobSettledEvent
func NewJobSettledEvent(j *Job) *JobSettledEvent {
	return &JobSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventJobSettled, aggregateType, j.ID, j.CompanyID),
		Status:          j.Status,
		Error:           j.Error,
	}
}

// JobPostedEvent is raised exactly once, when a job's voucher is minted
type JobPostedEvent struct {
	shared.BaseDomainEvent
	VoucherNumber string `json:"voucher_number"`
}

// NewJobPostedEvent creates a JobPostedEvent
func NewJobPostedEvent(j *Job) *JobPostedEvent {
	return &JobPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventJobPosted, aggregateType, j.ID, j.CompanyID),
		VoucherNumber:   j.VoucherNo,
	}
}
