package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverdueEscalator escalates approval requests pending past their deadline
type OverdueEscalator interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// NewEscalationSweeper builds the sweeper that pushes overdue approval
// requests one tier up. The escalation itself lives in the workflow service;
// this only drives it on a schedule.
func NewEscalationSweeper(escalator OverdueEscalator, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewSweeper("approval-escalation", interval, func(ctx context.Context) error {
		count, err := escalator.SweepOverdue(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			logger.Info("Escalation sweep finished", zap.Int("escalated", count))
		}
		return nil
	}, logger)
}
