package approval

import (
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/shopspring/decimal"
)

// RuleType identifies an evaluation rule in the audit trail
type RuleType string

const (
	RuleAmountTier    RuleType = "AMOUNT_TIER"
	RuleNewSupplier   RuleType = "NEW_SUPPLIER"
	RuleHighRiskScore RuleType = "HIGH_RISK_SCORE"
	RuleHighSeverity  RuleType = "HIGH_SEVERITY"
	RuleLowConfidence RuleType = "LOW_CONFIDENCE"
)

// MatchedRule records one rule that fired during evaluation
type MatchedRule struct {
	Rule   RuleType `json:"rule"`
	Detail string   `json:"detail"`
}

// Evaluation is the outcome of running the threshold policy over a document
type Evaluation struct {
	RequiresApproval bool          `json:"requires_approval"`
	RequiredLevel    Level         `json:"required_level"`
	DualApproval     bool          `json:"dual_approval"`
	MatchedRules     []MatchedRule `json:"matched_rules"`
}

// Thresholds is the per-company amount tier table plus workflow knobs.
// Each bound is the inclusive lower limit of its tier.
type Thresholds struct {
	Standard  decimal.Decimal `json:"standard"`
	Manager   decimal.Decimal `json:"manager"`
	Executive decimal.Decimal `json:"executive"`

	// DualApproval is the amount at or above which two independent
	// approvals are required
	DualApproval decimal.Decimal `json:"dual_approval"`

	// NewSupplierFloor is the amount above which a first-time supplier
	// forces approval
	NewSupplierFloor decimal.Decimal `json:"new_supplier_floor"`

	// EscalationTimeout is how long a request may stay pending before the
	// sweep escalates it one tier up
	EscalationTimeout time.Duration `json:"escalation_timeout"`
}

// DefaultThresholds returns the standard tier table
func DefaultThresholds() Thresholds {
	return Thresholds{
		Standard:          decimal.NewFromInt(5000),
		Manager:           decimal.NewFromInt(50000),
		Executive:         decimal.NewFromInt(200000),
		DualApproval:      decimal.NewFromInt(100000),
		NewSupplierFloor:  decimal.NewFromInt(1000),
		EscalationTimeout: 72 * time.Hour,
	}
}

// LevelFor returns the amount tier for the given amount
func (t Thresholds) LevelFor(amount decimal.Decimal) Level {
	switch {
	case amount.GreaterThanOrEqual(t.Executive):
		return LevelExecutive
	case amount.GreaterThanOrEqual(t.Manager):
		return LevelManager
	case amount.GreaterThanOrEqual(t.Standard):
		return LevelStandard
	default:
		return LevelAuto
	}
}

const lowConfidenceThreshold = 0.7

// Evaluate runs every approval rule over the document. Rules are independent
// and all matches are recorded for the audit trail; the required level comes
// from the amount tier, lifted to STANDARD when a non-tier rule fires on an
// otherwise auto-approvable amount.
func (t Thresholds) Evaluate(amount decimal.Decimal, isNewSupplier bool, risk anomaly.Result, confidence float64) Evaluation {
	var matched []MatchedRule

	level := t.LevelFor(amount)
	if level != LevelAuto {
		matched = append(matched, MatchedRule{
			Rule:   RuleAmountTier,
			Detail: fmt.Sprintf("Amount %s falls in the %s tier", amount.StringFixed(2), level),
		})
	}

	if isNewSupplier && amount.GreaterThan(t.NewSupplierFloor) {
		matched = append(matched, MatchedRule{
			Rule:   RuleNewSupplier,
			Detail: fmt.Sprintf("New supplier with amount %s above %s", amount.StringFixed(2), t.NewSupplierFloor.StringFixed(2)),
		})
	}

	if risk.RiskScore >= 50 {
		matched = append(matched, MatchedRule{
			Rule:   RuleHighRiskScore,
			Detail: fmt.Sprintf("Anomaly risk score %d", risk.RiskScore),
		})
	}

	if risk.HasSeverityAtLeast(anomaly.SeverityHigh) {
		matched = append(matched, MatchedRule{
			Rule:   RuleHighSeverity,
			Detail: fmt.Sprintf("Highest anomaly severity %s", risk.HighestSeverity),
		})
	}

	if confidence < lowConfidenceThreshold {
		matched = append(matched, MatchedRule{
			Rule:   RuleLowConfidence,
			Detail: fmt.Sprintf("Classification confidence %.2f below %.1f", confidence, lowConfidenceThreshold),
		})
	}

	requires := len(matched) > 0
	if requires && level == LevelAuto {
		level = LevelStandard
	}

	return Evaluation{
		RequiresApproval: requires,
		RequiredLevel:    level,
		DualApproval:     requires && amount.GreaterThanOrEqual(t.DualApproval),
		MatchedRules:     matched,
	}
}
