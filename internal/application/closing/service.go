package closing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/period"
	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result is the outcome of a close, lock, or reopen operation
type Result struct {
	Success bool                 `json:"success"`
	Status  period.Status        `json:"status"`
	Checks  []period.CheckResult `json:"checks,omitempty"`
	Summary *period.Summary      `json:"summary,omitempty"`
}

// Service runs the pre-close check suite and drives the period lifecycle
type Service struct {
	periods  period.Repository
	jobs     document.JobRepository
	vouchers document.VoucherRepository
	seq      *sequence.Service
	bank     document.BankReconciliationSource

	publisher shared.EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	largeAmountThreshold decimal.Decimal
}

// Option configures the Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPublisher sets the domain event publisher
func WithPublisher(p shared.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLargeAmountThreshold sets the warning floor for the large-amount check
func WithLargeAmountThreshold(threshold decimal.Decimal) Option {
	return func(s *Service) { s.largeAmountThreshold = threshold }
}

// NewService creates a closing Service
func NewService(periods period.Repository, jobs document.JobRepository, vouchers document.VoucherRepository, seq *sequence.Service, bank document.BankReconciliationSource, opts ...Option) *Service {
	s := &Service{
		periods:              periods,
		jobs:                 jobs,
		vouchers:             vouchers,
		seq:                  seq,
		bank:                 bank,
		logger:               zap.NewNop(),
		now:                  time.Now,
		largeAmountThreshold: decimal.NewFromInt(100000),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunChecks executes the full pre-close suite without touching period state.
// The checks read documents and vouchers only and may run concurrently with
// ordinary posting.
func (s *Service) RunChecks(ctx context.Context, companyID uuid.UUID, year, month int) ([]period.CheckResult, bool, error) {
	p, err := period.NewPeriod(companyID, year, month)
	if err != nil {
		return nil, false, err
	}
	checks, err := s.runChecks(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return checks, period.AllPassed(checks), nil
}

func (s *Service) runChecks(ctx context.Context, p *period.Period) ([]period.CheckResult, error) {
	start, end := p.Window()

	jobs, err := s.jobs.FindInWindow(ctx, p.CompanyID, start, end)
	if err != nil {
		return nil, err
	}
	vouchers, err := s.vouchers.FindInWindow(ctx, p.CompanyID, start, end)
	if err != nil {
		return nil, err
	}

	checks := []period.CheckResult{
		s.checkUnapproved(ctx, p, start, end),
		s.checkSequences(ctx, p, vouchers),
		s.checkVAT(jobs, vouchers),
		s.checkBank(ctx, p, start, end),
		s.checkVoucherValidity(vouchers),
		s.checkFutureDated(jobs),
		s.checkLargeAmounts(jobs),
	}
	return checks, nil
}

func (s *Service) checkUnapproved(ctx context.Context, p *period.Period, start, end time.Time) period.CheckResult {
	count, err := s.jobs.CountUnapprovedInWindow(ctx, p.CompanyID, start, end)
	if err != nil {
		return failed(period.CheckUnapprovedDocuments, true, fmt.Sprintf("check could not run: %v", err))
	}
	if count > 0 {
		return failed(period.CheckUnapprovedDocuments, true, fmt.Sprintf("%d documents still pending approval", count))
	}
	return passed(period.CheckUnapprovedDocuments, true, "no unapproved documents in the period")
}

// checkSequences validates every voucher series minted in the period. Gaps
// are reported, never repaired.
func (s *Service) checkSequences(ctx context.Context, p *period.Period, vouchers []document.Voucher) period.CheckResult {
	type seriesYear struct {
		series string
		year   int
	}
	seen := make(map[seriesYear]bool)
	var keys []seriesYear
	for _, v := range vouchers {
		key := seriesYear{v.Series, v.Year}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].series != keys[j].series {
			return keys[i].series < keys[j].series
		}
		return keys[i].year < keys[j].year
	})

	var problems []string
	for _, key := range keys {
		result, err := s.seq.ValidateSequence(ctx, p.CompanyID, key.series, key.year)
		if err != nil {
			return failed(period.CheckSequenceGaps, true, fmt.Sprintf("series %s%d could not be validated: %v", key.series, key.year, err))
		}
		if !result.Clean() {
			problems = append(problems, fmt.Sprintf("series %s%d gaps %v duplicates %v", key.series, key.year, result.Gaps, result.Duplicates))
		}
	}

	if len(problems) > 0 {
		return failed(period.CheckSequenceGaps, true, strings.Join(problems, "; "))
	}
	return passed(period.CheckSequenceGaps, true, "all voucher series are contiguous")
}

// checkVAT reconciles document VAT against the VAT actually booked on
// VAT accounts (BAS 26xx)
func (s *Service) checkVAT(jobs []document.Job, vouchers []document.Voucher) period.CheckResult {
	docVAT := decimal.Zero
	for _, j := range jobs {
		if j.Class != nil {
			docVAT = docVAT.Add(j.Class.VATAmount)
		}
	}
	if docVAT.IsZero() {
		return passed(period.CheckVATReconciliation, true, "no VAT-carrying documents in the period")
	}

	bookedVAT := decimal.Zero
	for _, v := range vouchers {
		for _, l := range v.Lines {
			if strings.HasPrefix(l.Account, "26") {
				bookedVAT = bookedVAT.Add(l.Debit).Add(l.Credit)
			}
		}
	}
	if bookedVAT.IsZero() {
		return failed(period.CheckVATReconciliation, true,
			fmt.Sprintf("documents carry %s VAT but no VAT is booked", docVAT.StringFixed(2)))
	}
	return passed(period.CheckVATReconciliation, true,
		fmt.Sprintf("document VAT %s, booked VAT %s", docVAT.StringFixed(2), bookedVAT.StringFixed(2)))
}

func (s *Service) checkBank(ctx context.Context, p *period.Period, start, end time.Time) period.CheckResult {
	unmatched, err := s.bank.UnmatchedCount(ctx, p.CompanyID, start, end)
	if err != nil {
		return failed(period.CheckBankReconciliation, true, fmt.Sprintf("check could not run: %v", err))
	}
	if unmatched > 0 {
		return failed(period.CheckBankReconciliation, true, fmt.Sprintf("%d bank transactions unmatched", unmatched))
	}
	return passed(period.CheckBankReconciliation, true, "bank reconciliation complete")
}

func (s *Service) checkVoucherValidity(vouchers []document.Voucher) period.CheckResult {
	var bad []string
	for i := range vouchers {
		if problems := vouchers[i].Validate(); len(problems) > 0 {
			bad = append(bad, fmt.Sprintf("%s: %s", vouchers[i].Number, problems[0]))
		}
	}
	if len(bad) > 0 {
		return failed(period.CheckDocumentValidation, true, strings.Join(bad, "; "))
	}
	return passed(period.CheckDocumentValidation, true, fmt.Sprintf("%d vouchers structurally valid", len(vouchers)))
}

func (s *Service) checkFutureDated(jobs []document.Job) period.CheckResult {
	now := s.now()
	count := 0
	for _, j := range jobs {
		if j.DocDate != nil && j.DocDate.After(now) {
			count++
		}
	}
	if count > 0 {
		return warning(period.CheckFutureDated, fmt.Sprintf("%d documents dated in the future", count))
	}
	return passed(period.CheckFutureDated, false, "no future-dated documents")
}

func (s *Service) checkLargeAmounts(jobs []document.Job) period.CheckResult {
	count := 0
	for _, j := range jobs {
		if j.Class != nil && j.Class.TotalAmount.GreaterThanOrEqual(s.largeAmountThreshold) {
			count++
		}
	}
	if count > 0 {
		return warning(period.CheckLargeAmounts,
			fmt.Sprintf("%d documents at or above %s", count, s.largeAmountThreshold.StringFixed(0)))
	}
	return passed(period.CheckLargeAmounts, false, "no unusually large documents")
}

// Close runs the pre-close suite and transitions the period to CLOSED. With
// force false a blocking failure aborts without state change; with force true
// the period closes anyway and the failures stay recorded in history.
func (s *Service) Close(ctx context.Context, companyID uuid.UUID, year, month int, actor uuid.UUID, force bool) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "closing", "close")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, companyID.String(),
		telemetry.SpanAttrYear, year,
		telemetry.SpanAttrMonth, month,
		"force", force,
	)

	p, err := s.periods.FindOrCreate(ctx, companyID, year, month)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := p.BeginClose(); err != nil {
		return nil, err
	}
	if err := s.periods.Save(ctx, p); err != nil {
		return nil, err
	}

	checks, err := s.runChecks(ctx, p)
	if err != nil {
		s.abort(ctx, p, nil)
		return nil, err
	}

	if !period.AllBlockingPassed(checks) && !force {
		s.abort(ctx, p, checks)
		return &Result{Success: false, Status: p.Status, Checks: checks}, nil
	}

	summary, err := s.buildSummary(ctx, p)
	if err != nil {
		s.abort(ctx, p, checks)
		return nil, err
	}

	forced := !period.AllBlockingPassed(checks)
	if err := p.CompleteClose(actor, *summary, checks, forced); err != nil {
		return nil, err
	}
	if err := s.periods.Save(ctx, p); err != nil {
		return nil, err
	}
	s.flush(ctx, p)

	s.logger.Info("period closed",
		zap.String("company_id", companyID.String()),
		zap.String("period", p.Key()),
		zap.Bool("forced", forced))
	return &Result{Success: true, Status: p.Status, Checks: checks, Summary: summary}, nil
}

// Lock makes a closed period immutable
func (s *Service) Lock(ctx context.Context, companyID uuid.UUID, year, month int, actor uuid.UUID) (*Result, error) {
	p, err := s.findExisting(ctx, companyID, year, month)
	if err != nil {
		return nil, err
	}
	if err := p.Lock(actor); err != nil {
		return nil, err
	}
	if err := s.periods.Save(ctx, p); err != nil {
		return nil, err
	}
	s.flush(ctx, p)
	return &Result{Success: true, Status: p.Status}, nil
}

// Reopen restores a closed period to OPEN with a recorded reason
func (s *Service) Reopen(ctx context.Context, companyID uuid.UUID, year, month int, actor uuid.UUID, reason string) (*Result, error) {
	p, err := s.findExisting(ctx, companyID, year, month)
	if err != nil {
		return nil, err
	}
	if err := p.Reopen(actor, reason); err != nil {
		return nil, err
	}
	if err := s.periods.Save(ctx, p); err != nil {
		return nil, err
	}
	s.flush(ctx, p)

	s.logger.Info("period reopened",
		zap.String("company_id", companyID.String()),
		zap.String("period", p.Key()),
		zap.String("reason", reason))
	return &Result{Success: true, Status: p.Status}, nil
}

// GetPeriod returns the period row with its history, or the implicit OPEN
// period when none is stored yet
func (s *Service) GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (*period.Period, error) {
	p, err := s.periods.FindByMonth(ctx, companyID, year, month)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return period.NewPeriod(companyID, year, month)
	}
	return p, nil
}

func (s *Service) findExisting(ctx context.Context, companyID uuid.UUID, year, month int) (*period.Period, error) {
	p, err := s.periods.FindByMonth(ctx, companyID, year, month)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, shared.ErrNotFound
	}
	return p, nil
}

func (s *Service) buildSummary(ctx context.Context, p *period.Period) (*period.Summary, error) {
	start, end := p.Window()

	jobs, err := s.jobs.FindInWindow(ctx, p.CompanyID, start, end)
	if err != nil {
		return nil, err
	}
	vouchers, err := s.vouchers.FindInWindow(ctx, p.CompanyID, start, end)
	if err != nil {
		return nil, err
	}
	unmatched, err := s.bank.UnmatchedCount(ctx, p.CompanyID, start, end)
	if err != nil {
		return nil, err
	}

	summary := &period.Summary{
		DocumentCount:        len(jobs),
		TotalAmount:          decimal.Zero,
		TotalVAT:             decimal.Zero,
		Currency:             "SEK",
		VoucherRanges:        make(map[string]string),
		UnmatchedBankEntries: unmatched,
	}
	for _, j := range jobs {
		if j.Class != nil {
			summary.TotalAmount = summary.TotalAmount.Add(j.Class.TotalAmount)
			summary.TotalVAT = summary.TotalVAT.Add(j.Class.VATAmount)
			summary.Currency = string(j.Class.Currency)
		}
	}

	ranges := make(map[string][2]int64)
	for _, v := range vouchers {
		key := fmt.Sprintf("%s%d", v.Series, v.Year)
		r, ok := ranges[key]
		if !ok {
			ranges[key] = [2]int64{v.Sequence, v.Sequence}
			continue
		}
		if v.Sequence < r[0] {
			r[0] = v.Sequence
		}
		if v.Sequence > r[1] {
			r[1] = v.Sequence
		}
		ranges[key] = r
	}
	for key, r := range ranges {
		summary.VoucherRanges[key] = fmt.Sprintf("%d-%d", r[0], r[1])
	}
	return summary, nil
}

func (s *Service) abort(ctx context.Context, p *period.Period, checks []period.CheckResult) {
	if err := p.AbortClose(checks); err != nil {
		s.logger.Error("close abort failed",
			zap.String("period", p.Key()), zap.Error(err))
		return
	}
	if err := s.periods.Save(ctx, p); err != nil {
		s.logger.Error("close abort not persisted",
			zap.String("period", p.Key()), zap.Error(err))
	}
}

func (s *Service) flush(ctx context.Context, p *period.Period) {
	if s.publisher == nil {
		return
	}
	for _, event := range p.GetDomainEvents() {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}
	p.ClearDomainEvents()
}

func passed(name string, blocking bool, detail string) period.CheckResult {
	return period.CheckResult{Name: name, Status: period.CheckPassed, Blocking: blocking, Detail: detail}
}

func failed(name string, blocking bool, detail string) period.CheckResult {
	return period.CheckResult{Name: name, Status: period.CheckFailed, Blocking: blocking, Detail: detail}
}

func warning(name string, detail string) period.CheckResult {
	return period.CheckResult{Name: name, Status: period.CheckWarning, Blocking: false, Detail: detail}
}
