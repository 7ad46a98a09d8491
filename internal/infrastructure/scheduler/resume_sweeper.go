package scheduler

import (
	"context"
	"time"

	"github.com/erp/docledger/internal/domain/document"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StuckJobFinder lists jobs that have sat in a processing status too long
type StuckJobFinder interface {
	FindProcessing(ctx context.Context, olderThan time.Time) ([]document.Job, error)
}

// JobResumer re-enters the pipeline at a job's first incomplete stage
type JobResumer interface {
	Resume(ctx context.Context, jobID uuid.UUID) (*document.Job, error)
}

// NewResumeSweeper builds the sweeper that picks up jobs stranded by a crash
// or restart and drives them through their remaining stages. Only jobs older
// than olderThan are touched, so in-flight work is left alone.
func NewResumeSweeper(finder StuckJobFinder, resumer JobResumer, interval, olderThan time.Duration, logger *zap.Logger) *Sweeper {
	if olderThan <= 0 {
		olderThan = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewSweeper("pipeline-resume", interval, func(ctx context.Context) error {
		cutoff := time.Now().Add(-olderThan)
		jobs, err := finder.FindProcessing(ctx, cutoff)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		logger.Info("Resuming stuck jobs", zap.Int("count", len(jobs)))
		for i := range jobs {
			if _, err := resumer.Resume(ctx, jobs[i].ID); err != nil {
				logger.Error("Job resume failed",
					zap.String("job_id", jobs[i].ID.String()),
					zap.Error(err),
				)
			}
		}
		return nil
	}, logger)
}
