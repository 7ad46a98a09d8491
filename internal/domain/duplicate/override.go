package duplicate

import (
	"strings"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
)

// minOverrideReasonLength is the shortest accepted override justification
const minOverrideReasonLength = 10

// Override is the audit record that lets a flagged duplicate proceed.
// It is immutable once created. When NewFileHash is set, the override only
// suppresses the duplicate warning for that exact resubmitted file; later
// unrelated resubmissions against the same original job are still flagged.
type Override struct {
	shared.BaseEntity
	CompanyID     uuid.UUID `gorm:"type:uuid;not null;index"`
	OriginalJobID uuid.UUID `gorm:"type:uuid;not null;index:idx_override_pair,priority:1"`
	NewJobID      uuid.UUID `gorm:"type:uuid;not null;index:idx_override_pair,priority:2"`
	NewFileHash   string    `gorm:"type:varchar(64)"`
	Reason        string    `gorm:"type:varchar(500);not null"`
	ApprovedBy    uuid.UUID `gorm:"type:uuid;not null"`
}

// TableName returns the table name for GORM
func (Override) TableName() string {
	return "duplicate_overrides"
}

// NewOverride creates a duplicate override after validating the justification
func NewOverride(companyID, originalJobID, newJobID uuid.UUID, reason string, approvedBy uuid.UUID, newFileHash string) (*Override, error) {
	if originalJobID == uuid.Nil || newJobID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_JOB", "Original and new job IDs are required")
	}
	if originalJobID == newJobID {
		return nil, shared.NewDomainError("INVALID_JOB", "Cannot override a job against itself")
	}
	if approvedBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "Approving user ID is required")
	}
	if len(strings.TrimSpace(reason)) < minOverrideReasonLength {
		return nil, shared.NewDomainError("INVALID_REASON", "Override reason must be at least 10 characters")
	}

	return &Override{
		BaseEntity:    shared.NewBaseEntity(),
		CompanyID:     companyID,
		OriginalJobID: originalJobID,
		NewJobID:      newJobID,
		NewFileHash:   newFileHash,
		Reason:        strings.TrimSpace(reason),
		ApprovedBy:    approvedBy,
	}, nil
}

// Covers reports whether this override suppresses a duplicate warning for
// the given new job and file hash
func (o *Override) Covers(newJobID uuid.UUID, fileHash string) bool {
	if o.NewJobID != newJobID {
		return false
	}
	if o.NewFileHash != "" && o.NewFileHash != fileHash {
		return false
	}
	return true
}
