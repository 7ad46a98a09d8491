package anomaly

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Severity grades how strongly an anomaly deviates from the expected pattern
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// weight returns the risk-score contribution of the severity
func (s Severity) weight() int {
	switch s {
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 15
	case SeverityHigh:
		return 30
	case SeverityCritical:
		return 50
	default:
		return 0
	}
}

// rank orders severities for comparison
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Type identifies the detector that produced an anomaly
type Type string

const (
	TypeAmountAboveAverage Type = "AMOUNT_ABOVE_AVERAGE"
	TypeAmountBelowAverage Type = "AMOUNT_BELOW_AVERAGE"
	TypeNewSupplier        Type = "NEW_SUPPLIER"
	TypeUnusualAccount     Type = "UNUSUAL_ACCOUNT"
	TypeUnusualVATRate     Type = "UNUSUAL_VAT_RATE"
	TypeWeekendDate        Type = "WEEKEND_DATE"
	TypeFutureDate         Type = "FUTURE_DATE"
	TypeStaleDate          Type = "STALE_DATE"
	TypeRoundAmount        Type = "ROUND_AMOUNT"
	TypeLowConfidence      Type = "LOW_CONFIDENCE"
	TypeMissingField       Type = "MISSING_FIELD"
	TypeRapidResubmission  Type = "RAPID_RESUBMISSION"
)

// Recommendation is the scorer's verdict on how the document should proceed
type Recommendation string

const (
	RecommendAutoApprove  Recommendation = "AUTO_APPROVE"
	RecommendManualReview Recommendation = "MANUAL_REVIEW"
	RecommendEscalate     Recommendation = "ESCALATE"
)

// Anomaly is one flagged deviation
type Anomaly struct {
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Facts are the extracted document facts the scorer evaluates
type Facts struct {
	SupplierName     string
	InvoiceNumber    string
	Amount           decimal.Decimal // gross total, in booking currency
	VATAmount        decimal.Decimal
	InvoiceDate      time.Time
	SuggestedAccount string
	Confidence       float64
}

// SupplierHistory summarizes prior invoices from the same supplier
type SupplierHistory struct {
	InvoiceCount    int
	AverageAmount   decimal.Decimal
	KnownAccounts   []string
	LastInvoiceDate *time.Time
}

// Result is the aggregate outcome of a scoring run
type Result struct {
	Anomalies           []Anomaly      `json:"anomalies"`
	RiskScore           int            `json:"risk_score"`
	HighestSeverity     Severity       `json:"highest_severity,omitempty"`
	Recommendation      Recommendation `json:"recommendation"`
	AutoApprovalBlocked bool           `json:"auto_approval_blocked"`
}

// HasSeverityAtLeast reports whether any anomaly reaches the given severity
func (r Result) HasSeverityAtLeast(s Severity) bool {
	return r.HighestSeverity.rank() >= s.rank()
}

const (
	// minHistoryForAverage is the prior-invoice count required before
	// average-based detectors fire
	minHistoryForAverage = 3

	maxRiskScore = 100

	lowConfidenceThreshold = 0.7

	staleInvoiceAge = 60 * 24 * time.Hour

	rapidResubmissionWindow = 3 * 24 * time.Hour
)

// validVATRates are the Swedish VAT rates in percent
var validVATRates = []decimal.Decimal{
	decimal.NewFromInt(0),
	decimal.NewFromInt(6),
	decimal.NewFromInt(12),
	decimal.NewFromInt(25),
}

// vatRateTolerance absorbs rounding noise in extracted amounts
var vatRateTolerance = decimal.NewFromFloat(0.5)

// roundAmountFloor is the minimum amount at which an exact round-thousand
// value is considered suspicious
var roundAmountFloor = decimal.NewFromInt(5000)

// Scorer evaluates document facts against supplier history.
// It is stateless; the clock is injectable for tests.
type Scorer struct {
	now func() time.Time
}

// ScorerOption configures a Scorer
type ScorerOption func(*Scorer)

// WithClock overrides the scorer's time source
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		s.now = now
	}
}

// NewScorer creates a Scorer
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score runs every detector and aggregates the findings into a risk score
// and recommendation. Detectors are independent; all findings are reported.
func (s *Scorer) Score(facts Facts, history SupplierHistory) Result {
	var anomalies []Anomaly

	anomalies = append(anomalies, s.detectMissingFields(facts)...)
	anomalies = append(anomalies, s.detectAmountDeviations(facts, history)...)
	anomalies = append(anomalies, s.detectNewSupplier(history)...)
	anomalies = append(anomalies, s.detectUnusualAccount(facts, history)...)
	anomalies = append(anomalies, s.detectVATRate(facts)...)
	anomalies = append(anomalies, s.detectDates(facts)...)
	anomalies = append(anomalies, s.detectRoundAmount(facts)...)
	anomalies = append(anomalies, s.detectLowConfidence(facts)...)
	anomalies = append(anomalies, s.detectRapidResubmission(facts, history)...)

	return aggregate(anomalies)
}

func aggregate(anomalies []Anomaly) Result {
	score := 0
	var highest Severity
	for _, a := range anomalies {
		score += a.Severity.weight()
		if a.Severity.rank() > highest.rank() {
			highest = a.Severity
		}
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}

	var recommendation Recommendation
	switch {
	case score >= 60:
		recommendation = RecommendEscalate
	case score >= 30 || highest.rank() >= SeverityHigh.rank():
		recommendation = RecommendManualReview
	case score >= 10:
		recommendation = RecommendManualReview
	default:
		recommendation = RecommendAutoApprove
	}

	return Result{
		Anomalies:           anomalies,
		RiskScore:           score,
		HighestSeverity:     highest,
		Recommendation:      recommendation,
		AutoApprovalBlocked: score >= 30 || highest.rank() >= SeverityHigh.rank(),
	}
}

func (s *Scorer) detectMissingFields(facts Facts) []Anomaly {
	var missing []string
	if facts.SupplierName == "" {
		missing = append(missing, "supplier name")
	}
	if facts.InvoiceNumber == "" {
		missing = append(missing, "invoice number")
	}
	if facts.InvoiceDate.IsZero() {
		missing = append(missing, "invoice date")
	}
	if !facts.Amount.IsPositive() {
		missing = append(missing, "total amount")
	}

	anomalies := make([]Anomaly, 0, len(missing))
	for _, field := range missing {
		anomalies = append(anomalies, Anomaly{
			Type:     TypeMissingField,
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("Required field missing: %s", field),
		})
	}
	return anomalies
}

func (s *Scorer) detectAmountDeviations(facts Facts, history SupplierHistory) []Anomaly {
	if history.InvoiceCount < minHistoryForAverage || !history.AverageAmount.IsPositive() {
		return nil
	}

	var anomalies []Anomaly
	if facts.Amount.GreaterThan(history.AverageAmount.Mul(decimal.NewFromInt(2))) {
		anomalies = append(anomalies, Anomaly{
			Type:     TypeAmountAboveAverage,
			Severity: SeverityHigh,
			Message: fmt.Sprintf("Amount %s is more than twice the supplier average %s over %d invoices",
				facts.Amount.StringFixed(2), history.AverageAmount.StringFixed(2), history.InvoiceCount),
		})
	}
	if facts.Amount.IsPositive() && facts.Amount.LessThan(history.AverageAmount.Mul(decimal.NewFromFloat(0.3))) {
		anomalies = append(anomalies, Anomaly{
			Type:     TypeAmountBelowAverage,
			Severity: SeverityMedium,
			Message: fmt.Sprintf("Amount %s is below 30%% of the supplier average %s",
				facts.Amount.StringFixed(2), history.AverageAmount.StringFixed(2)),
		})
	}
	return anomalies
}

func (s *Scorer) detectNewSupplier(history SupplierHistory) []Anomaly {
	if history.InvoiceCount > 0 {
		return nil
	}
	return []Anomaly{{
		Type:     TypeNewSupplier,
		Severity: SeverityMedium,
		Message:  "First invoice from this supplier",
	}}
}

func (s *Scorer) detectUnusualAccount(facts Facts, history SupplierHistory) []Anomaly {
	if facts.SuggestedAccount == "" || len(history.KnownAccounts) == 0 {
		return nil
	}
	for _, acc := range history.KnownAccounts {
		if acc == facts.SuggestedAccount {
			return nil
		}
	}
	return []Anomaly{{
		Type:     TypeUnusualAccount,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("Account %s has never been used for this supplier", facts.SuggestedAccount),
	}}
}

func (s *Scorer) detectVATRate(facts Facts) []Anomaly {
	net := facts.Amount.Sub(facts.VATAmount)
	if !net.IsPositive() {
		return nil
	}
	rate := facts.VATAmount.Div(net).Mul(decimal.NewFromInt(100))
	for _, valid := range validVATRates {
		if rate.Sub(valid).Abs().LessThanOrEqual(vatRateTolerance) {
			return nil
		}
	}
	return []Anomaly{{
		Type:     TypeUnusualVATRate,
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("Effective VAT rate %s%% matches no valid rate (0, 6, 12, 25)", rate.StringFixed(1)),
	}}
}

func (s *Scorer) detectDates(facts Facts) []Anomaly {
	if facts.InvoiceDate.IsZero() {
		return nil
	}

	var anomalies []Anomaly
	now := s.now()

	switch facts.InvoiceDate.Weekday() {
	case time.Saturday, time.Sunday:
		anomalies = append(anomalies, Anomaly{
			Type:     TypeWeekendDate,
			Severity: SeverityLow,
			Message:  fmt.Sprintf("Invoice dated on a %s", facts.InvoiceDate.Weekday()),
		})
	}

	if facts.InvoiceDate.After(now) {
		anomalies = append(anomalies, Anomaly{
			Type:     TypeFutureDate,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Invoice dated in the future: %s", facts.InvoiceDate.Format("2006-01-02")),
		})
	} else if now.Sub(facts.InvoiceDate) > staleInvoiceAge {
		anomalies = append(anomalies, Anomaly{
			Type:     TypeStaleDate,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Invoice is older than 60 days: %s", facts.InvoiceDate.Format("2006-01-02")),
		})
	}
	return anomalies
}

func (s *Scorer) detectRoundAmount(facts Facts) []Anomaly {
	if facts.Amount.LessThan(roundAmountFloor) {
		return nil
	}
	if !facts.Amount.Mod(decimal.NewFromInt(1000)).IsZero() {
		return nil
	}
	return []Anomaly{{
		Type:     TypeRoundAmount,
		Severity: SeverityLow,
		Message:  fmt.Sprintf("Suspiciously round amount: %s", facts.Amount.StringFixed(2)),
	}}
}

func (s *Scorer) detectLowConfidence(facts Facts) []Anomaly {
	if facts.Confidence >= lowConfidenceThreshold {
		return nil
	}
	return []Anomaly{{
		Type:     TypeLowConfidence,
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("Classification confidence %.2f is below %.1f", facts.Confidence, lowConfidenceThreshold),
	}}
}

func (s *Scorer) detectRapidResubmission(facts Facts, history SupplierHistory) []Anomaly {
	if history.LastInvoiceDate == nil || facts.InvoiceDate.IsZero() {
		return nil
	}
	gap := facts.InvoiceDate.Sub(*history.LastInvoiceDate)
	if gap < 0 {
		gap = -gap
	}
	if gap >= rapidResubmissionWindow {
		return nil
	}
	return []Anomaly{{
		Type:     TypeRapidResubmission,
		Severity: SeverityMedium,
		Message: fmt.Sprintf("Previous invoice from the same supplier is dated %s, less than 3 days apart",
			history.LastInvoiceDate.Format("2006-01-02")),
	}}
}
