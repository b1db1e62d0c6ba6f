package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/metrics"
)

type historyPruner interface {
	DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper deletes check records older than Retention once a day at
// Hour:Minute UTC.
type Sweeper struct {
	Checks    historyPruner
	Clock     Clock
	Retention time.Duration
	Hour      int
	Minute    int
	Log       *zap.Logger
}

// NextRun is the first Hour:Minute UTC strictly after now.
func (s *Sweeper) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Sweeper) Run(ctx context.Context) {
	for ctx.Err() == nil {
		now := s.Clock.Now()
		next := s.NextRun(now)
		s.Log.Debug("retention_sweep_scheduled", zap.Time("at", next))
		select {
		case <-ctx.Done():
		case <-s.Clock.After(next.Sub(now)):
			// failures are logged inside and retried at the next occurrence
			_, _ = s.SweepOnce(ctx)
		}
	}
	s.Log.Info("sweeper_stopped")
}

// SweepOnce removes every record with checked_at < now - Retention.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.Clock.Now().Add(-s.Retention)
	n, err := s.Checks.DeleteChecksBefore(ctx, cutoff)
	if err != nil {
		s.Log.Error("retention_sweep_failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, err
	}
	metrics.HistoryDeleted.Add(float64(n))
	s.Log.Info("retention_sweep_done", zap.Time("cutoff", cutoff), zap.Int("deleted", n))
	return n, nil
}
