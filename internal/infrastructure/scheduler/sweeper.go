// Package scheduler runs the periodic background sweeps: escalating overdue
// approval requests and resuming jobs stuck mid-pipeline.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs a named task on a fixed interval
type Sweeper struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweeper creates a sweeper that runs task every interval
func NewSweeper(name string, interval time.Duration, task func(ctx context.Context) error, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
	}
}

// Start starts the sweep loop
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sweeper started",
		zap.String("sweeper", s.name),
		zap.Duration("interval", s.interval),
	)

	return nil
}

// Stop gracefully stops the sweep loop
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sweeper stopped", zap.String("sweeper", s.name))
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sweeper stop timed out", zap.String("sweeper", s.name))
		return ctx.Err()
	}
}

// RunNow runs one sweep outside the schedule
func (s *Sweeper) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSweeperNotRunning
	}
	s.mu.Unlock()

	return s.runOnce(ctx)
}

// runLoop runs the task on every tick until the context is cancelled
func (s *Sweeper) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil {
				s.logger.Error("Sweep failed",
					zap.String("sweeper", s.name),
					zap.Error(err),
				)
			}
		}
	}
}

// runOnce executes a single sweep. A panicking task is recovered so a bad
// sweep cannot kill the loop.
func (s *Sweeper) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sweep panicked",
				zap.String("sweeper", s.name),
				zap.Any("panic", r),
			)
		}
	}()
	return s.task(ctx)
}
