// Package scheduler decides when targets are checked, runs the checks on a
// worker pool, applies the notification policy and prunes old history.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type submitter interface {
	Submit(id domain.TargetID) bool
}

// Scheduler hands every due target to the runner once per tick.
type Scheduler struct {
	Selector *Selector
	Runner   submitter
	Interval time.Duration
	Log      *zap.Logger
}

// Run does an immediate pass, then one per Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Log.Info("scheduler_disabled")
		return
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler_stopped")
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick submits the current due set and returns how many jobs were queued.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.Selector.Due(ctx)
	if err != nil {
		s.Log.Warn("due_selection_error", zap.Error(err))
		return 0
	}
	queued := 0
	for _, t := range due {
		if s.Runner.Submit(t.ID) {
			queued++
		}
	}
	if len(due) > 0 {
		s.Log.Debug("targets_dispatched", zap.Int("due", len(due)), zap.Int("queued", queued))
	}
	return queued
}
