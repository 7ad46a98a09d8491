package workflow

import (
	"context"
	"time"

	"github.com/erp/docledger/internal/domain/approval"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobReleaser posts the underlying document once its approval request
// settles as approved
type JobReleaser interface {
	PostApproved(ctx context.Context, jobID uuid.UUID) error
}

// Actor is the identity performing an approval action
type Actor struct {
	ID   uuid.UUID
	Role approval.Role
}

// ApprovalMetrics records approval workflow metrics. Satisfied by
// telemetry.PipelineMetrics.
type ApprovalMetrics interface {
	RecordApprovalOpened(ctx context.Context, companyID uuid.UUID, level string)
}

// Service executes approval decisions and the overdue escalation sweep
type Service struct {
	requests   approval.Repository
	thresholds approval.ThresholdProvider
	releaser   JobReleaser
	publisher  shared.EventPublisher
	metrics    ApprovalMetrics
	logger     *zap.Logger
	now        func() time.Time
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

// WithMetrics sets the workflow metrics recorder
func WithMetrics(m ApprovalMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an approval workflow Service
func NewService(requests approval.Repository, thresholds approval.ThresholdProvider, releaser JobReleaser, opts ...Option) *Service {
	s := &Service{
		requests:   requests,
		thresholds: thresholds,
		releaser:   releaser,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) load(ctx context.Context, requestID uuid.UUID) (*approval.Request, error) {
	r, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

// Approve records an approval decision. When the request settles, the
// underlying document is posted.
func (s *Service) Approve(ctx context.Context, requestID uuid.UUID, actor Actor, comment string) (*approval.Request, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "workflow", "approve")
	defer span.End()
	telemetry.SetAttribute(span, telemetry.SpanAttrRequestID, requestID.String())

	r, err := s.load(ctx, requestID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := r.Approve(actor.ID, actor.Role, comment); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.requests.Save(ctx, r); err != nil {
		return nil, err
	}
	s.flush(ctx, r)

	if r.Status == approval.StatusApproved {
		if err := s.releaser.PostApproved(ctx, r.JobID); err != nil {
			s.logger.Error("approved document failed to post",
				zap.String("job_id", r.JobID.String()), zap.Error(err))
			return r, err
		}
	}
	return r, nil
}

// Reject settles the request as rejected
func (s *Service) Reject(ctx context.Context, requestID uuid.UUID, actor Actor, comment string) (*approval.Request, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.Reject(actor.ID, actor.Role, comment); err != nil {
		return nil, err
	}
	if err := s.requests.Save(ctx, r); err != nil {
		return nil, err
	}
	s.flush(ctx, r)
	return r, nil
}

// Escalate supersedes the request with a new one a tier up
func (s *Service) Escalate(ctx context.Context, requestID uuid.UUID, actor Actor, reason string) (*approval.Request, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	thresholds, err := s.thresholds.ThresholdsFor(ctx, r.CompanyID)
	if err != nil {
		return nil, err
	}

	successor, err := r.Escalate(actor.ID, actor.Role, reason, s.now().Add(thresholds.EscalationTimeout))
	if err != nil {
		return nil, err
	}
	if err := s.requests.SaveAll(ctx, r, successor); err != nil {
		return nil, err
	}
	s.flush(ctx, r)
	if s.metrics != nil {
		s.metrics.RecordApprovalOpened(ctx, successor.CompanyID, string(successor.Level))
	}
	return successor, nil
}

// Delegate reassigns the request to a named delegate at the same tier
func (s *Service) Delegate(ctx context.Context, requestID uuid.UUID, actor Actor, delegate uuid.UUID, comment string) (*approval.Request, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.DelegateTo(actor.ID, actor.Role, delegate, comment); err != nil {
		return nil, err
	}
	if err := s.requests.Save(ctx, r); err != nil {
		return nil, err
	}
	s.flush(ctx, r)
	return r, nil
}

// sweepActor marks system-authored escalations in the action log
var sweepActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// SweepOverdue escalates every request pending past its deadline one tier up.
// Executive requests have no higher tier and are left for a human; the sweep
// only logs them. Returns the number of requests escalated.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	overdue, err := s.requests.FindOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range overdue {
		r := &overdue[i]
		if r.Level == approval.LevelExecutive {
			s.logger.Warn("executive approval overdue",
				zap.String("request_id", r.ID.String()),
				zap.Time("due_at", r.DueAt))
			continue
		}

		thresholds, err := s.thresholds.ThresholdsFor(ctx, r.CompanyID)
		if err != nil {
			s.logger.Error("threshold lookup failed during sweep",
				zap.String("request_id", r.ID.String()), zap.Error(err))
			continue
		}

		successor, err := r.Escalate(sweepActor, approval.RoleSystem, "escalation deadline passed", s.now().Add(thresholds.EscalationTimeout))
		if err != nil {
			s.logger.Error("sweep escalation failed",
				zap.String("request_id", r.ID.String()), zap.Error(err))
			continue
		}
		if err := s.requests.SaveAll(ctx, r, successor); err != nil {
			s.logger.Error("sweep escalation not persisted",
				zap.String("request_id", r.ID.String()), zap.Error(err))
			continue
		}
		s.flush(ctx, r)
		if s.metrics != nil {
			s.metrics.RecordApprovalOpened(ctx, successor.CompanyID, string(successor.Level))
		}
		escalated++
	}

	if escalated > 0 {
		s.logger.Info("overdue approvals escalated", zap.Int("count", escalated))
	}
	return escalated, nil
}

func (s *Service) flush(ctx context.Context, r *approval.Request) {
	if s.publisher == nil {
		return
	}
	for _, event := range r.GetDomainEvents() {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}
	r.ClearDomainEvents()
}
