package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/metrics"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// ErrAborted means the attempt ran out of time after probing; nothing was
// recorded and the next tick will pick the target up again.
var ErrAborted = errors.New("check aborted")

type checkStore interface {
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	ApplyCheckResult(ctx context.Context, id domain.TargetID, observed *time.Time, o domain.Outcome, now time.Time) (*repo.Applied, error)
}

// Executor runs one check for one target: re-read, probe, record, notify.
type Executor struct {
	Store   checkStore
	Checker probe.Checker
	Alerter *Alerter
	Clock   Clock
	Log     *zap.Logger
}

// Check returns a non-nil error only for infrastructure failures (store
// unreachable) and for ErrAborted. A target that vanished, was deactivated, or
// was already checked by a concurrent attempt is a silent no-op.
func (e *Executor) Check(ctx context.Context, id domain.TargetID) error {
	start := time.Now()

	t, err := e.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load target %s: %w", id, err)
	}
	if !t.Monitored() {
		return nil
	}

	out := e.Checker.Check(ctx, t)
	if ctx.Err() != nil {
		return ErrAborted
	}

	applied, err := e.Store.ApplyCheckResult(ctx, id, t.LastCheck, out, e.Clock.Now())
	if errors.Is(err, repo.ErrStale) {
		e.Log.Debug("check_result_stale", zap.String("target_id", string(id)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("record check %s: %w", id, err)
	}

	metrics.RecordCheck(string(out.Status), time.Since(start))
	fields := []zap.Field{
		zap.String("target_id", string(id)),
		zap.String("url", t.URL),
		zap.String("status", string(out.Status)),
		zap.Int("consecutive_failures", applied.Target.ConsecutiveFailures),
	}
	if out.ResponseTimeMS != nil {
		fields = append(fields, zap.Float64("response_time_ms", *out.ResponseTimeMS))
	}
	if out.StatusCode != nil {
		fields = append(fields, zap.Int("status_code", *out.StatusCode))
	}
	if out.Error != "" {
		fields = append(fields, zap.String("error", out.Error))
	}
	e.Log.Info("check_completed", fields...)

	if e.Alerter != nil {
		e.Alerter.Handle(ctx, applied)
	}
	return nil
}
