package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/docledger/internal/domain/anomaly"
	approvaldomain "github.com/erp/docledger/internal/domain/approval"
	"github.com/erp/docledger/internal/domain/document"
	"github.com/erp/docledger/internal/domain/duplicate"
	"github.com/erp/docledger/internal/domain/shared"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/erp/docledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator drives a document job through the processing pipeline. Each
// stage persists its output before the status advances, so a crashed run
// resumes from the last durable checkpoint.
type Orchestrator struct {
	jobs       document.JobRepository
	suppliers  document.SupplierHistoryRepository
	approvals  approvaldomain.Repository
	thresholds approvaldomain.ThresholdProvider
	detector   *duplicate.Detector
	scorer     *anomaly.Scorer

	storage    ObjectStorage
	ocr        OCRService
	classifier Classifier
	splitter   ReceiptSplitter
	rates      RateProvider
	erp        ERPClient
	poster     Poster

	publisher    shared.EventPublisher
	metrics      MetricsRecorder
	logger       *zap.Logger
	baseCurrency valueobject.Currency
	series       string
	synchronous  bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithBaseCurrency sets the company booking currency
func WithBaseCurrency(c valueobject.Currency) Option {
	return func(o *Orchestrator) { o.baseCurrency = c }
}

// WithSeries sets the voucher series documents post into
func WithSeries(series string) Option {
	return func(o *Orchestrator) { o.series = series }
}

// WithSplitter enables multi-receipt detection
func WithSplitter(s ReceiptSplitter) Option {
	return func(o *Orchestrator) { o.splitter = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPublisher sets the domain event publisher
func WithPublisher(p shared.EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics sets the business metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSynchronousProcessing makes Submit process inline instead of spawning
// a goroutine. Used in tests.
func WithSynchronousProcessing() Option {
	return func(o *Orchestrator) { o.synchronous = true }
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	jobs document.JobRepository,
	suppliers document.SupplierHistoryRepository,
	approvals approvaldomain.Repository,
	thresholds approvaldomain.ThresholdProvider,
	detector *duplicate.Detector,
	scorer *anomaly.Scorer,
	storage ObjectStorage,
	ocr OCRService,
	classifier Classifier,
	rates RateProvider,
	erp ERPClient,
	poster Poster,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		jobs:         jobs,
		suppliers:    suppliers,
		approvals:    approvals,
		thresholds:   thresholds,
		detector:     detector,
		scorer:       scorer,
		storage:      storage,
		ocr:          ocr,
		classifier:   classifier,
		rates:        rates,
		erp:          erp,
		poster:       poster,
		logger:       zap.NewNop(),
		baseCurrency: valueobject.DefaultCurrency,
		series:       "A",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit enqueues a file for processing and returns immediately. Processing
// runs in the background; the caller polls the job for progress.
func (o *Orchestrator) Submit(ctx context.Context, companyID uuid.UUID, fileName, contentType string, data []byte, requestID string) (*document.Job, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "submit")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCompanyID, companyID.String(),
		telemetry.SpanAttrFileName, fileName,
	)

	job, err := document.NewJob(companyID, fileName, contentType, int64(len(data)), requestID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	job.SetFileHash(duplicate.HashFile(data))

	if err := o.jobs.Save(ctx, job); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrJobID, job.ID.String())
	o.flush(ctx, job)
	if o.metrics != nil {
		o.metrics.RecordSubmitted(ctx, companyID)
	}

	o.logger.Info("document submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("company_id", companyID.String()),
		zap.String("file_name", fileName))

	if o.synchronous {
		o.process(ctx, job, data)
		return job, nil
	}

	// The pipeline goroutine owns the aggregate from here on; the caller
	// gets a snapshot so reading job.Status does not race the stages.
	snapshot := *job
	go o.process(context.Background(), job, data)
	return &snapshot, nil
}

// Resume re-enters the pipeline at the first incomplete stage. Stages whose
// output is already persisted are not re-executed.
func (o *Orchestrator) Resume(ctx context.Context, jobID uuid.UUID) (*document.Job, error) {
	job, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, shared.ErrNotFound
	}
	if !job.Status.Processing() {
		return job, nil
	}
	o.process(ctx, job, nil)
	return job, nil
}

// GetJob returns a job by id
func (o *Orchestrator) GetJob(ctx context.Context, jobID uuid.UUID) (*document.Job, error) {
	job, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, shared.ErrNotFound
	}
	return job, nil
}

// ListJobs returns a company's jobs, newest first
func (o *Orchestrator) ListJobs(ctx context.Context, companyID uuid.UUID, limit, offset int) ([]document.Job, error) {
	return o.jobs.FindByCompany(ctx, companyID, limit, offset)
}

// OverrideDuplicate records an auditable override for a duplicate-flagged
// job. The job stays held for approval; the override suppresses the verdict
// for this exact file so the approval can settle and the document can post.
func (o *Orchestrator) OverrideDuplicate(ctx context.Context, companyID, jobID, originalJobID uuid.UUID, reason string, approvedBy uuid.UUID) (*duplicate.Override, error) {
	job, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	if job.Status != document.StatusReady {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Job in status %s cannot take a duplicate override", job.Status))
	}
	return o.detector.RegisterOverride(ctx, companyID, originalJobID, jobID, reason, approvedBy, job.FileHash)
}

// process runs stages until the job settles. A stage error marks the job
// failed and halts; it never touches sibling jobs.
func (o *Orchestrator) process(ctx context.Context, job *document.Job, data []byte) {
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "process")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrJobID, job.ID.String(),
		telemetry.SpanAttrCompanyID, job.CompanyID.String(),
	)

	for job.Status.Processing() {
		telemetry.AddEvent(span, "stage", telemetry.SpanAttrJobStatus, string(job.Status))
		var err error
		switch job.Status {
		case document.StatusQueued:
			err = o.stagePrecheck(ctx, job)
		case document.StatusUploading:
			err = o.stageUpload(ctx, job, data)
		case document.StatusScanning:
			data, err = o.stageScan(ctx, job, data)
		case document.StatusOCR:
			data, err = o.stageOCR(ctx, job, data)
		case document.StatusAnalyzing:
			err = o.stageAnalyze(ctx, job, data)
		}

		if err != nil {
			telemetry.RecordError(span, err)
			o.failJob(ctx, job, err)
			return
		}
		if err := o.jobs.Save(ctx, job); err != nil {
			o.logger.Error("failed to persist job checkpoint",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		o.flush(ctx, job)
	}

	if o.metrics != nil {
		o.metrics.RecordSettled(ctx, job.CompanyID, string(job.Status))
	}
}

// stagePrecheck runs the cheap hash-only duplicate check before any upload.
// A bit-identical resubmission fails here; overridable matches are deferred
// to the full check after classification.
func (o *Orchestrator) stagePrecheck(ctx context.Context, job *document.Job) error {
	res, err := o.detector.Check(ctx, duplicate.CheckInput{
		CompanyID: job.CompanyID,
		JobID:     job.ID,
		FileHash:  job.FileHash,
	}, job.RequestID)
	if err != nil {
		return fmt.Errorf("duplicate pre-check failed: %w", err)
	}
	if res.IsDuplicate && !res.CanOverride && !res.Overridden {
		if o.metrics != nil {
			o.metrics.RecordDuplicate(ctx, job.CompanyID)
		}
		return shared.NewDomainError("DUPLICATE_DOCUMENT", res.Message)
	}
	return job.Transition(document.StatusUploading)
}

func (o *Orchestrator) stageUpload(ctx context.Context, job *document.Job, data []byte) error {
	if job.FileRef != "" {
		return job.Transition(document.StatusScanning)
	}
	if len(data) == 0 {
		return shared.NewDomainError("FILE_UNAVAILABLE", "File bytes are gone before upload completed; resubmit the document")
	}

	key := fmt.Sprintf("%s/%s/%s", job.CompanyID, job.ID, job.FileName)
	ref, err := o.storage.Upload(ctx, key, data, job.ContentType)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	job.SetFileRef(ref)
	return job.Transition(document.StatusScanning)
}

// stageScan detects multi-receipt scans. Splitter failures are skippable:
// the file proceeds as a single document.
func (o *Orchestrator) stageScan(ctx context.Context, job *document.Job, data []byte) ([]byte, error) {
	if o.splitter == nil {
		return data, job.Transition(document.StatusOCR)
	}

	data, err := o.fileBytes(ctx, job, data)
	if err != nil {
		return nil, err
	}

	segments, err := o.splitter.Detect(ctx, job.FileName, data, job.ContentType)
	if err != nil {
		o.logger.Warn("receipt split detection skipped",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return data, job.Transition(document.StatusOCR)
	}
	if len(segments) < 2 {
		return data, job.Transition(document.StatusOCR)
	}

	for _, seg := range segments {
		child, err := document.NewChildJob(job, seg.FileName, int64(len(seg.Data)))
		if err != nil {
			return nil, err
		}
		child.SetFileHash(duplicate.HashFile(seg.Data))
		if err := o.jobs.Save(ctx, child); err != nil {
			return nil, err
		}
		o.flush(ctx, child)
		segData := seg.Data
		if o.synchronous {
			o.process(ctx, child, segData)
		} else {
			go o.process(context.Background(), child, segData)
		}
	}
	o.logger.Info("scan split into child jobs",
		zap.String("job_id", job.ID.String()), zap.Int("children", len(segments)))
	return data, job.Transition(document.StatusSplit)
}

func (o *Orchestrator) stageOCR(ctx context.Context, job *document.Job, data []byte) ([]byte, error) {
	data, err := o.fileBytes(ctx, job, data)
	if err != nil {
		return nil, err
	}

	text, err := o.ocr.ExtractText(ctx, data, job.ContentType)
	if err != nil {
		return nil, fmt.Errorf("text extraction failed: %w", err)
	}
	job.SetOCRText(text)
	return data, job.Transition(document.StatusAnalyzing)
}

func (o *Orchestrator) stageAnalyze(ctx context.Context, job *document.Job, data []byte) error {
	image, err := o.fileBytes(ctx, job, data)
	if err != nil {
		image = nil
	}

	class, err := o.classifier.Classify(ctx, job.OCRText, image)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	// Supplier sync is skippable: the document books fine without an ERP
	// supplier reference.
	if class.Counterparty != "" {
		if _, err := o.erp.FindOrCreateSupplier(ctx, job.CompanyID, class.Counterparty); err != nil {
			o.logger.Warn("supplier sync skipped",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}

	if class.Currency != "" && class.Currency != o.baseCurrency {
		date := time.Now()
		if class.InvoiceDate != nil {
			date = *class.InvoiceDate
		}
		rate, err := o.rates.Rate(ctx, class.Currency, o.baseCurrency, date)
		if err != nil {
			return fmt.Errorf("exchange rate lookup failed for %s: %w", class.Currency, err)
		}
		if err := class.Convert(o.baseCurrency, rate.Value); err != nil {
			return err
		}
	}

	class.FoldResidue()
	if err := job.SetClassification(class); err != nil {
		return err
	}

	dupRes, err := o.detector.Check(ctx, duplicate.CheckInput{
		CompanyID:     job.CompanyID,
		JobID:         job.ID,
		Counterparty:  class.Counterparty,
		InvoiceNumber: class.InvoiceNumber,
		FileHash:      job.FileHash,
		Amount:        class.TotalAmount,
		InvoiceDate:   derefTime(class.InvoiceDate),
	}, "")
	if err != nil {
		return fmt.Errorf("duplicate check failed: %w", err)
	}

	history, err := o.suppliers.FindByName(ctx, job.CompanyID, duplicate.NormalizeCounterparty(class.Counterparty))
	if err != nil {
		return err
	}
	isNewSupplier := history == nil || history.InvoiceCount == 0

	risk := o.scorer.Score(class.Facts(), history.Scoring())
	job.SetRisk(risk)
	if o.metrics != nil {
		o.metrics.RecordRiskScore(ctx, job.CompanyID, risk.RiskScore)
	}

	thresholds, err := o.thresholds.ThresholdsFor(ctx, job.CompanyID)
	if err != nil {
		return err
	}
	eval := thresholds.Evaluate(class.TotalAmount, isNewSupplier, risk, class.Confidence)

	return o.settle(ctx, job, dupRes, risk, eval, thresholds)
}

// settle applies the final status policy. Conditions are ordered; only the
// first match applies.
func (o *Orchestrator) settle(ctx context.Context, job *document.Job, dup duplicate.CheckResult, risk anomaly.Result, eval approvaldomain.Evaluation, thresholds approvaldomain.Thresholds) error {
	validationProblems := job.Class.MissingFields()

	if dup.IsDuplicate && !dup.Overridden && o.metrics != nil {
		o.metrics.RecordDuplicate(ctx, job.CompanyID)
	}

	switch {
	case dup.IsDuplicate && !dup.CanOverride && !dup.Overridden:
		return shared.NewDomainError("DUPLICATE_DOCUMENT", dup.Message)

	case dup.IsDuplicate && !dup.Overridden:
		return o.requireApproval(ctx, job, eval, thresholds,
			fmt.Sprintf("flagged as %s duplicate: %s", dup.Confidence, dup.Message))

	case len(validationProblems) > 0:
		return o.requireApproval(ctx, job, eval, thresholds,
			fmt.Sprintf("missing required fields: %v", validationProblems))

	case risk.AutoApprovalBlocked:
		return o.requireApproval(ctx, job, eval, thresholds,
			fmt.Sprintf("anomaly risk %d blocks auto-approval", risk.RiskScore))

	case eval.RequiresApproval:
		return o.requireApproval(ctx, job, eval, thresholds, "approval policy matched")

	default:
		if err := job.Transition(document.StatusApproved); err != nil {
			return err
		}
		o.postJob(ctx, job)
		return nil
	}
}

// requireApproval parks the job as ready and opens an approval request
func (o *Orchestrator) requireApproval(ctx context.Context, job *document.Job, eval approvaldomain.Evaluation, thresholds approvaldomain.Thresholds, why string) error {
	level := eval.RequiredLevel
	if !level.AtOrAbove(approvaldomain.LevelStandard) {
		level = approvaldomain.LevelStandard
	}

	existing, err := o.approvals.FindActiveByJob(ctx, job.CompanyID, job.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		request, err := approvaldomain.NewRequest(job.CompanyID, job.ID, job.Class.TotalAmount, level, eval.DualApproval, time.Now().Add(thresholds.EscalationTimeout))
		if err != nil {
			return err
		}
		if err := o.approvals.Save(ctx, request); err != nil {
			return err
		}
		if o.metrics != nil {
			o.metrics.RecordApprovalOpened(ctx, job.CompanyID, string(level))
		}
	}

	o.logger.Info("document held for approval",
		zap.String("job_id", job.ID.String()),
		zap.String("level", string(level)),
		zap.String("reason", why))
	return job.Transition(document.StatusReady)
}

// postJob runs the exactly-once posting stage and exports the voucher.
// Export failure does not unwind the posting; it is retried out of band.
func (o *Orchestrator) postJob(ctx context.Context, job *document.Job) {
	voucher, err := o.poster.Post(ctx, job, o.series)
	if err != nil {
		if err == shared.ErrAlreadyPosted {
			return
		}
		o.logger.Error("posting failed",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}

	o.logger.Info("voucher posted",
		zap.String("job_id", job.ID.String()),
		zap.String("voucher_number", voucher.Number))
	if o.metrics != nil {
		o.metrics.RecordVoucherPosted(ctx, job.CompanyID, voucher.Series)
	}

	if err := o.erp.PostVoucher(ctx, voucher); err != nil {
		o.logger.Warn("voucher export deferred",
			zap.String("voucher_number", voucher.Number), zap.Error(err))
	}
}

// PostApproved posts a job that has just been approved. Called by the
// approval workflow after the releasing decision.
func (o *Orchestrator) PostApproved(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return shared.ErrNotFound
	}
	if err := job.Approve(); err != nil {
		return err
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		return err
	}
	o.flush(ctx, job)
	if o.metrics != nil {
		o.metrics.RecordSettled(ctx, job.CompanyID, string(job.Status))
	}
	o.postJob(ctx, job)
	return nil
}

func (o *Orchestrator) fileBytes(ctx context.Context, job *document.Job, data []byte) ([]byte, error) {
	if len(data) > 0 {
		return data, nil
	}
	if job.FileRef == "" {
		return nil, shared.NewDomainError("FILE_UNAVAILABLE", "No stored file to read")
	}
	return o.storage.Get(ctx, job.FileRef)
}

func (o *Orchestrator) failJob(ctx context.Context, job *document.Job, cause error) {
	o.logger.Error("pipeline stage failed",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Error(cause))

	if err := job.Fail(cause.Error()); err != nil {
		return
	}
	if err := o.jobs.Save(ctx, job); err != nil {
		o.logger.Error("failed to persist job failure",
			zap.String("job_id", job.ID.String()), zap.Error(err))
		return
	}
	o.flush(ctx, job)
	if o.metrics != nil {
		o.metrics.RecordSettled(ctx, job.CompanyID, string(job.Status))
	}
}

// flush publishes and clears the aggregate's pending domain events
func (o *Orchestrator) flush(ctx context.Context, job *document.Job) {
	if o.publisher == nil {
		return
	}
	for _, event := range job.GetDomainEvents() {
		if err := o.publisher.Publish(ctx, event); err != nil {
			o.logger.Warn("event publish failed",
				zap.String("event_type", event.EventType()), zap.Error(err))
		}
	}
	job.ClearDomainEvents()
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
