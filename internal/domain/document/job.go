package document

import (
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Status is a document job's position in the processing pipeline
type Status string

const (
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusScanning  Status = "scanning"
	StatusOCR       Status = "ocr"
	StatusAnalyzing Status = "analyzing"
	StatusReady     Status = "ready"
	StatusApproved  Status = "approved"
	StatusError     Status = "error"
	StatusSplit     Status = "split"
)

// transitions is the one-directional status machine. Error is reachable from
// any non-terminal state and is handled separately in Transition.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusUploading},
	StatusUploading: {StatusScanning},
	StatusScanning:  {StatusOCR, StatusSplit},
	StatusOCR:       {StatusAnalyzing},
	StatusAnalyzing: {StatusReady, StatusApproved},
	StatusReady:     {StatusApproved},
}

// Terminal reports whether no further pipeline stage runs for this status.
// Ready is not terminal: an approval action may still move it to approved.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusError || s == StatusSplit
}

// Processing reports whether the job is mid-pipeline
func (s Status) Processing() bool {
	switch s {
	case StatusQueued, StatusUploading, StatusScanning, StatusOCR, StatusAnalyzing:
		return true
	}
	return false
}

// Job is one file's processing lifecycle. Each stage persists its output on
// the job before the status advances, so a crashed pipeline resumes from the
// last durable checkpoint.
type Job struct {
	shared.CompanyAggregateRoot
	FileName    string          `gorm:"type:varchar(255);not null" json:"file_name"`
	ContentType string          `gorm:"type:varchar(100)" json:"content_type"`
	SizeBytes   int64           `json:"size_bytes"`
	RequestID   string          `gorm:"type:varchar(100);index" json:"request_id,omitempty"`
	ParentID    *uuid.UUID      `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Status      Status          `gorm:"type:varchar(20);not null;default:'queued';index" json:"status"`
	FileHash    string          `gorm:"type:varchar(64);index" json:"file_hash,omitempty"`
	FileRef     string          `gorm:"type:varchar(500)" json:"file_ref,omitempty"`
	OCRText     string          `gorm:"type:text" json:"-"`
	Class       *Classification `gorm:"serializer:json" json:"classification,omitempty"`
	Risk        *anomaly.Result `gorm:"serializer:json" json:"risk,omitempty"`
	Error       string          `gorm:"type:varchar(1000)" json:"error,omitempty"`
	Posted      bool            `gorm:"not null;default:false" json:"posted"`
	VoucherNo   string          `gorm:"type:varchar(20)" json:"voucher_number,omitempty"`
	PostedAt    *time.Time      `json:"posted_at,omitempty"`
	DocDate     *time.Time      `gorm:"index" json:"document_date,omitempty"`
}

// TableName returns the table name for GORM
func (Job) TableName() string {
	return "document_jobs"
}

// NewJob creates a queued job for a submitted file
func NewJob(companyID uuid.UUID, fileName, contentType string, sizeBytes int64, requestID string) (*Job, error) {
	if companyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COMPANY", "Company ID is required")
	}
	if fileName == "" {
		return nil, shared.NewDomainError("INVALID_FILE", "File name is required")
	}
	if sizeBytes <= 0 {
		return nil, shared.NewDomainError("INVALID_FILE", "File is empty")
	}

	j := &Job{
		CompanyAggregateRoot: shared.NewCompanyAggregateRoot(companyID),
		FileName:             fileName,
		ContentType:          contentType,
		SizeBytes:            sizeBytes,
		RequestID:            requestID,
		Status:               StatusQueued,
	}
	j.AddDomainEvent(NewJobSubmittedEvent(j))
	return j, nil
}

// NewChildJob creates a queued job for one receipt detected inside a split
// parent. The child re-enters the pipeline from the start.
func NewChildJob(parent *Job, fileName string, sizeBytes int64) (*Job, error) {
	child, err := NewJob(parent.CompanyID, fileName, parent.ContentType, sizeBytes, "")
	if err != nil {
		return nil, err
	}
	child.ParentID = &parent.ID
	return child, nil
}

// Transition advances the status. Error is reachable from any non-terminal
// state; everything else follows the one-directional machine.
func (j *Job) Transition(to Status) error {
	if to == StatusError {
		if j.Status.Terminal() {
			return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail a %s job", j.Status))
		}
		j.setStatus(to)
		return nil
	}
	for _, allowed := range transitions[j.Status] {
		if allowed == to {
			j.setStatus(to)
			return nil
		}
	}
	return shared.NewDomainError("INVALID_TRANSITION", fmt.Sprintf("Cannot move job from %s to %s", j.Status, to))
}

func (j *Job) setStatus(to Status) {
	j.Status = to
	j.UpdatedAt = time.Now()
	j.IncrementVersion()
	if to.Terminal() || to == StatusReady {
		j.AddDomainEvent(NewJobSettledEvent(j))
	}
}

// SetFileHash records the content hash computed during upload
func (j *Job) SetFileHash(hash string) {
	j.FileHash = hash
	j.UpdatedAt = time.Now()
}

// SetFileRef records the object store reference after a durable upload
func (j *Job) SetFileRef(ref string) {
	j.FileRef = ref
	j.UpdatedAt = time.Now()
}

// SetOCRText records the raw extracted text
func (j *Job) SetOCRText(text string) {
	j.OCRText = text
	j.UpdatedAt = time.Now()
}

// SetClassification replaces the extracted facts wholesale. The line/total
// balance invariant must already hold.
func (j *Job) SetClassification(c *Classification) error {
	if c == nil {
		return shared.NewDomainError("INVALID_CLASSIFICATION", "Classification is required")
	}
	if !c.Balanced() {
		return shared.NewDomainError("UNBALANCED_LINES",
			fmt.Sprintf("Line sum %s does not match total %s", c.LineSum(), c.TotalAmount))
	}
	j.Class = c
	j.DocDate = c.InvoiceDate
	j.UpdatedAt = time.Now()
	return nil
}

// SetRisk records the anomaly scoring outcome
func (j *Job) SetRisk(r anomaly.Result) {
	j.Risk = &r
	j.UpdatedAt = time.Now()
}

// Fail marks the job failed with a human-readable message and halts further
// stages
func (j *Job) Fail(message string) error {
	if err := j.Transition(StatusError); err != nil {
		return err
	}
	j.Error = message
	return nil
}

// Approve moves a ready job to approved
func (j *Job) Approve() error {
	return j.Transition(StatusApproved)
}

// MarkPosted records the minted voucher number. A job posts at most once;
// the flag must be written in the same transaction as the counter increment.
func (j *Job) MarkPosted(voucherNumber string) error {
	if j.Posted {
		return shared.ErrAlreadyPosted
	}
	if voucherNumber == "" {
		return shared.NewDomainError("INVALID_VOUCHER", "Voucher number is required")
	}
	now := time.Now()
	j.Posted = true
	j.VoucherNo = voucherNumber
	j.PostedAt = &now
	j.UpdatedAt = now
	j.IncrementVersion()
	j.AddDomainEvent(NewJobPostedEvent(j))
	return nil
}
