package duplicate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Confidence grades a duplicate verdict
type Confidence string

const (
	ConfidenceExact    Confidence = "exact"
	ConfidenceLikely   Confidence = "likely"
	ConfidencePossible Confidence = "possible"
	ConfidenceNone     Confidence = "none"
)

// MatchType names the lookup that produced a duplicate verdict
type MatchType string

const (
	MatchInvoiceNumber MatchType = "invoice_number"
	MatchFileHash      MatchType = "file_hash"
	MatchFuzzy         MatchType = "fuzzy"
)

const (
	// fuzzyAmountTolerance is the relative amount difference still treated
	// as the same financial event (1%)
	fuzzyAmountTolerancePct = 1

	// fuzzyDateWindow is the maximum invoice-date distance for fuzzy matches
	fuzzyDateWindow = 7 * 24 * time.Hour

	// likelyDateWindow: fuzzy matches this close in time are graded likely
	// rather than possible
	likelyDateWindow = 2 * 24 * time.Hour
)

// CheckInput carries the facts of a submission being checked
type CheckInput struct {
	CompanyID     uuid.UUID
	JobID         uuid.UUID
	Counterparty  string
	InvoiceNumber string
	FileHash      string
	Amount        decimal.Decimal
	InvoiceDate   time.Time
}

// CheckResult is the verdict of one duplicate check.
// Results are cacheable by request ID; a replayed request returns the
// identical result, CheckID included.
type CheckResult struct {
	CheckID       uuid.UUID  `json:"check_id"`
	IsDuplicate   bool       `json:"is_duplicate"`
	Confidence    Confidence `json:"confidence"`
	MatchType     MatchType  `json:"match_type,omitempty"`
	CanOverride   bool       `json:"can_override"`
	ConflictJobID *uuid.UUID `json:"conflict_job_id,omitempty"`
	Overridden    bool       `json:"overridden"`
	Message       string     `json:"message,omitempty"`
}

// FingerprintRepository stores and queries fingerprint rows
type FingerprintRepository interface {
	// FindByInvoiceKey returns the fingerprint with the exact invoice key, or nil
	FindByInvoiceKey(ctx context.Context, companyID uuid.UUID, key string) (*Fingerprint, error)

	// FindByFileHash returns the fingerprint with the exact file hash, or nil
	FindByFileHash(ctx context.Context, companyID uuid.UUID, hash string) (*Fingerprint, error)

	// FindByCounterparty returns all fingerprints for a normalized counterparty name
	FindByCounterparty(ctx context.Context, companyID uuid.UUID, normalizedName string) ([]Fingerprint, error)

	// Save persists a fingerprint. Returns shared.ErrAlreadyExists when an
	// equivalent key has been written by a concurrent job (first writer wins).
	Save(ctx context.Context, fp *Fingerprint) error

	// DeleteForJob removes the fingerprints owned by a deleted job
	DeleteForJob(ctx context.Context, companyID, jobID uuid.UUID) error
}

// OverrideRepository stores duplicate overrides
type OverrideRepository interface {
	Save(ctx context.Context, o *Override) error
	FindByPair(ctx context.Context, originalJobID, newJobID uuid.UUID) (*Override, error)
	FindByOriginalJob(ctx context.Context, companyID, originalJobID uuid.UUID) ([]Override, error)
}

// Detector runs duplicate checks and manages overrides
type Detector struct {
	fingerprints FingerprintRepository
	overrides    OverrideRepository
	cache        shared.ResultCache
	cacheTTL     time.Duration
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithCacheTTL overrides the request-ID replay window
func WithCacheTTL(ttl time.Duration) DetectorOption {
	return func(d *Detector) {
		d.cacheTTL = ttl
	}
}

// NewDetector creates a Detector. The cache may be nil, which disables
// request-ID replay protection.
func NewDetector(fingerprints FingerprintRepository, overrides OverrideRepository, cache shared.ResultCache, opts ...DetectorOption) *Detector {
	d := &Detector{
		fingerprints: fingerprints,
		overrides:    overrides,
		cache:        cache,
		cacheTTL:     shared.DefaultResultCacheConfig().TTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check evaluates whether a submission duplicates an already processed
// document. Lookup order: exact invoice key, exact file hash, fuzzy match.
// A caller-supplied requestID makes the check idempotent: replays within the
// cache window return the original result unchanged.
func (d *Detector) Check(ctx context.Context, input CheckInput, requestID string) (CheckResult, error) {
	cacheKey := ""
	if requestID != "" && d.cache != nil {
		cacheKey = fmt.Sprintf("dupcheck:%s:%s", input.CompanyID, requestID)
		if cached, err := d.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			var result CheckResult
			if err := json.Unmarshal(cached, &result); err == nil {
				return result, nil
			}
		}
	}

	result, err := d.evaluate(ctx, input)
	if err != nil {
		return CheckResult{}, err
	}

	if cacheKey != "" {
		payload, err := json.Marshal(result)
		if err == nil {
			stored, putErr := d.cache.Put(ctx, cacheKey, payload, d.cacheTTL)
			if putErr == nil && !stored {
				// Lost the race to a concurrent identical request; its
				// result is authoritative.
				if cached, getErr := d.cache.Get(ctx, cacheKey); getErr == nil && cached != nil {
					var winner CheckResult
					if err := json.Unmarshal(cached, &winner); err == nil {
						return winner, nil
					}
				}
			}
		}
	}
	return result, nil
}

func (d *Detector) evaluate(ctx context.Context, input CheckInput) (CheckResult, error) {
	checkID := uuid.New()

	// Exact invoice-number + counterparty match
	if input.Counterparty != "" && input.InvoiceNumber != "" {
		fp, err := d.fingerprints.FindByInvoiceKey(ctx, input.CompanyID, InvoiceKey(input.Counterparty, input.InvoiceNumber))
		if err != nil {
			return CheckResult{}, fmt.Errorf("invoice key lookup: %w", err)
		}
		if fp != nil && fp.JobID != input.JobID {
			return d.verdict(ctx, checkID, input, fp, MatchInvoiceNumber, ConfidenceExact, true,
				fmt.Sprintf("Invoice %s from %s already processed as job %s", input.InvoiceNumber, input.Counterparty, fp.JobID))
		}
	}

	// Exact file-hash match: a bit-identical resubmission, never overridable
	if input.FileHash != "" {
		fp, err := d.fingerprints.FindByFileHash(ctx, input.CompanyID, input.FileHash)
		if err != nil {
			return CheckResult{}, fmt.Errorf("file hash lookup: %w", err)
		}
		if fp != nil && fp.JobID != input.JobID {
			return CheckResult{
				CheckID:       checkID,
				IsDuplicate:   true,
				Confidence:    ConfidenceExact,
				MatchType:     MatchFileHash,
				CanOverride:   false,
				ConflictJobID: &fp.JobID,
				Message:       fmt.Sprintf("Identical file already processed as job %s", fp.JobID),
			}, nil
		}
	}

	// Fuzzy match: same counterparty, amount within 1%, date within 7 days
	if input.Counterparty != "" && input.Amount.IsPositive() && !input.InvoiceDate.IsZero() {
		candidates, err := d.fingerprints.FindByCounterparty(ctx, input.CompanyID, NormalizeCounterparty(input.Counterparty))
		if err != nil {
			return CheckResult{}, fmt.Errorf("counterparty lookup: %w", err)
		}
		for i := range candidates {
			fp := &candidates[i]
			if fp.JobID == input.JobID {
				continue
			}
			dateDiff := absDuration(input.InvoiceDate.Sub(fp.InvoiceDate))
			if !amountsWithinTolerance(input.Amount, fp.Amount) || dateDiff > fuzzyDateWindow {
				continue
			}
			confidence := ConfidencePossible
			if dateDiff <= likelyDateWindow {
				confidence = ConfidenceLikely
			}
			return d.verdict(ctx, checkID, input, fp, MatchFuzzy, confidence, true,
				fmt.Sprintf("Amount %s from %s on %s closely matches job %s",
					input.Amount.StringFixed(2), input.Counterparty, input.InvoiceDate.Format("2006-01-02"), fp.JobID))
		}
	}

	return CheckResult{
		CheckID:    checkID,
		Confidence: ConfidenceNone,
	}, nil
}

// verdict builds a duplicate result for an overridable match, consulting the
// override registry first
func (d *Detector) verdict(ctx context.Context, checkID uuid.UUID, input CheckInput, fp *Fingerprint, matchType MatchType, confidence Confidence, canOverride bool, message string) (CheckResult, error) {
	if canOverride && input.JobID != uuid.Nil {
		override, err := d.overrides.FindByPair(ctx, fp.JobID, input.JobID)
		if err != nil {
			return CheckResult{}, fmt.Errorf("override lookup: %w", err)
		}
		if override != nil && override.Covers(input.JobID, input.FileHash) {
			return CheckResult{
				CheckID:       checkID,
				IsDuplicate:   false,
				Confidence:    ConfidenceNone,
				MatchType:     matchType,
				ConflictJobID: &fp.JobID,
				Overridden:    true,
				Message:       fmt.Sprintf("Duplicate warning suppressed by override %s", override.ID),
			}, nil
		}
	}

	return CheckResult{
		CheckID:       checkID,
		IsDuplicate:   true,
		Confidence:    confidence,
		MatchType:     matchType,
		CanOverride:   canOverride,
		ConflictJobID: &fp.JobID,
		Message:       message,
	}, nil
}

// RegisterOverride records an auditable duplicate override
func (d *Detector) RegisterOverride(ctx context.Context, companyID, originalJobID, newJobID uuid.UUID, reason string, approvedBy uuid.UUID, newFileHash string) (*Override, error) {
	override, err := NewOverride(companyID, originalJobID, newJobID, reason, approvedBy, newFileHash)
	if err != nil {
		return nil, err
	}
	if err := d.overrides.Save(ctx, override); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	return override, nil
}

// RegisterFingerprint writes the fingerprint for a posted document.
// On a key conflict the earlier writer wins and shared.ErrAlreadyExists is
// returned; the caller treats the job as a flagged duplicate.
func (d *Detector) RegisterFingerprint(ctx context.Context, fp *Fingerprint) error {
	return d.fingerprints.Save(ctx, fp)
}

func amountsWithinTolerance(a, b decimal.Decimal) bool {
	if !a.IsPositive() || !b.IsPositive() {
		return false
	}
	reference := decimal.Max(a, b)
	tolerance := reference.Mul(decimal.NewFromInt(fuzzyAmountTolerancePct)).Div(decimal.NewFromInt(100))
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
