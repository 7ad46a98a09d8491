// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineMetrics tracks the document pipeline: intake volume, settlement
// outcomes, duplicate hits, posted vouchers, and the approval backlog.
type PipelineMetrics struct {
	logger *zap.Logger

	documentsSubmitted *Counter
	documentsSettled   *Counter
	duplicatesDetected *Counter
	vouchersPosted     *Counter
	approvalsOpened    *Counter

	stageDuration *Histogram
	riskScore     *Histogram

	pendingApprovals *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider ApprovalBacklogProvider
}

// ApprovalBacklogProvider reports the open approval backlog per company.
// The interface keeps the telemetry layer off the workflow domain.
type ApprovalBacklogProvider interface {
	CountPendingByCompany(ctx context.Context) (map[uuid.UUID]int64, error)
}

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Provider        *MeterProvider
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	BacklogProvider ApprovalBacklogProvider
}

// StageDurationBuckets are bucket boundaries for pipeline stage duration
// (seconds). OCR and classification calls run for seconds, not milliseconds.
var StageDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// RiskScoreBuckets are bucket boundaries for the anomaly risk score. The
// scorer caps at 100; the 30 and 60 edges match the review thresholds.
var RiskScoreBuckets = []float64{5, 10, 20, 30, 45, 60, 80, 100}

// NewPipelineMetrics creates a new PipelineMetrics instance.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Provider == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := cfg.Provider.Meter("docledger-pipeline")

	pm := &PipelineMetrics{
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error

	pm.documentsSubmitted, err = NewCounter(
		meter,
		"docledger_documents_submitted_total",
		"Total number of documents submitted for processing",
		"{documents}",
	)
	if err != nil {
		return nil, err
	}

	pm.documentsSettled, err = NewCounter(
		meter,
		"docledger_documents_settled_total",
		"Total number of documents that reached a terminal status",
		"{documents}",
	)
	if err != nil {
		return nil, err
	}

	pm.duplicatesDetected, err = NewCounter(
		meter,
		"docledger_duplicates_detected_total",
		"Total number of documents flagged as duplicates",
		"{documents}",
	)
	if err != nil {
		return nil, err
	}

	pm.vouchersPosted, err = NewCounter(
		meter,
		"docledger_vouchers_posted_total",
		"Total number of vouchers posted to the ledger",
		"{vouchers}",
	)
	if err != nil {
		return nil, err
	}

	pm.approvalsOpened, err = NewCounter(
		meter,
		"docledger_approvals_opened_total",
		"Total number of approval requests opened",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	pm.stageDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "docledger_stage_duration_seconds",
		Description: "Duration of individual pipeline stages",
		Unit:        "s",
		Boundaries:  StageDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.riskScore, err = NewHistogram(meter, HistogramOpts{
		Name:        "docledger_risk_score",
		Description: "Anomaly risk score assigned to analyzed documents",
		Unit:        "{score}",
		Boundaries:  RiskScoreBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.pendingApprovals, err = NewGauge(
		meter,
		"docledger_pending_approvals",
		"Approval requests currently awaiting a decision",
		"{requests}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordSubmitted records a document entering the pipeline.
func (pm *PipelineMetrics) RecordSubmitted(ctx context.Context, companyID uuid.UUID) {
	pm.documentsSubmitted.Inc(ctx,
		AttrCompanyID.String(companyID.String()),
	)
}

// RecordSettled records a document reaching a terminal status.
func (pm *PipelineMetrics) RecordSettled(ctx context.Context, companyID uuid.UUID, status string) {
	pm.documentsSettled.Inc(ctx,
		AttrCompanyID.String(companyID.String()),
		AttrJobStatus.String(status),
	)
}

// RecordDuplicate records a duplicate hit.
func (pm *PipelineMetrics) RecordDuplicate(ctx context.Context, companyID uuid.UUID) {
	pm.duplicatesDetected.Inc(ctx,
		AttrCompanyID.String(companyID.String()),
	)
}

// RecordVoucherPosted records a voucher landing in the ledger.
func (pm *PipelineMetrics) RecordVoucherPosted(ctx context.Context, companyID uuid.UUID, series string) {
	pm.vouchersPosted.Inc(ctx,
		AttrCompanyID.String(companyID.String()),
		AttrVoucherSeries.String(series),
	)
}

// RecordApprovalOpened records a new approval request.
func (pm *PipelineMetrics) RecordApprovalOpened(ctx context.Context, companyID uuid.UUID, level string) {
	pm.approvalsOpened.Inc(ctx,
		AttrCompanyID.String(companyID.String()),
		AttrApprovalLevel.String(level),
	)
}

// RecordRiskScore records the anomaly risk score of an analyzed document.
func (pm *PipelineMetrics) RecordRiskScore(ctx context.Context, companyID uuid.UUID, score int) {
	pm.riskScore.Record(ctx, float64(score),
		AttrCompanyID.String(companyID.String()),
	)
}

// RecordStageDuration records how long a pipeline stage took.
func (pm *PipelineMetrics) RecordStageDuration(ctx context.Context, stage string, d time.Duration) {
	pm.stageDuration.RecordDuration(ctx, d,
		AttrPipelineStage.String(stage),
	)
}

// RecordPendingApprovals records the open approval backlog for a company.
func (pm *PipelineMetrics) RecordPendingApprovals(ctx context.Context, companyID uuid.UUID, count int64) {
	pm.pendingApprovals.Record(ctx, count,
		AttrCompanyID.String(companyID.String()),
	)
}

// StartPeriodicCollection starts periodic collection of the approval backlog
// gauge. Non-blocking; use Stop() to stop collection.
func (pm *PipelineMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go pm.runPeriodicCollection(ctx, interval)
	})
}

func (pm *PipelineMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collectBacklog(ctx)

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic pipeline metrics collection")
			return
		case <-ctx.Done():
			pm.logger.Info("Context cancelled, stopping periodic pipeline metrics collection")
			return
		case <-ticker.C:
			pm.collectBacklog(ctx)
		}
	}
}

func (pm *PipelineMetrics) collectBacklog(ctx context.Context) {
	if pm.backlogProvider == nil {
		pm.logger.Debug("No backlog provider configured, skipping approval backlog collection")
		return
	}

	backlog, err := pm.backlogProvider.CountPendingByCompany(ctx)
	if err != nil {
		pm.logger.Error("Failed to collect approval backlog", zap.Error(err))
		return
	}

	for companyID, count := range backlog {
		pm.RecordPendingApprovals(ctx, companyID, count)
	}
}

// Stop stops the periodic collection.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// ErrMeterNil is returned when the meter provider is nil.
var ErrMeterNil = &MetricsError{Op: "NewPipelineMetrics", Err: "meter provider cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
