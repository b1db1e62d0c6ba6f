package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/metrics"
)

// Task is one unit of work for one target.
type Task interface {
	Check(ctx context.Context, id domain.TargetID) error
}

type TaskFunc func(ctx context.Context, id domain.TargetID) error

func (f TaskFunc) Check(ctx context.Context, id domain.TargetID) error { return f(ctx, id) }

type RunnerConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	SoftLimit    time.Duration
	HardLimit    time.Duration
}

type job struct {
	id      domain.TargetID
	attempt int
}

// Runner is a fixed pool of workers pulling check jobs from a bounded queue.
type Runner struct {
	task     Task
	cfg      RunnerConfig
	log      *zap.Logger
	inflight *InFlight
	jobs     chan job
	wg       sync.WaitGroup

	// afterFunc schedules retries; replaced in tests.
	afterFunc func(d time.Duration, f func())
}

func NewRunner(task Task, cfg RunnerConfig, log *zap.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = 240 * time.Second
	}
	if cfg.HardLimit < cfg.SoftLimit {
		cfg.HardLimit = cfg.SoftLimit
	}
	return &Runner{
		task:      task,
		cfg:       cfg,
		log:       log,
		inflight:  NewInFlight(),
		jobs:      make(chan job, cfg.QueueSize),
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Start launches the workers. They exit when ctx is cancelled; Wait blocks
// until they have.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(r.cfg.Workers)
	for i := 0; i < r.cfg.Workers; i++ {
		go func() {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-r.jobs:
					r.process(ctx, j)
				}
			}
		}()
	}
}

func (r *Runner) Wait() { r.wg.Wait() }

// Submit queues a first attempt for id. It never blocks: when the queue is
// full the job is dropped and false is returned.
func (r *Runner) Submit(id domain.TargetID) bool {
	return r.enqueue(job{id: id})
}

func (r *Runner) enqueue(j job) bool {
	select {
	case r.jobs <- j:
		return true
	default:
		metrics.JobsDropped.Inc()
		r.log.Warn("job_queue_full", zap.String("target_id", string(j.id)), zap.Int("attempt", j.attempt))
		return false
	}
}

func (r *Runner) process(ctx context.Context, j job) {
	if !r.inflight.Acquire(j.id) {
		r.log.Debug("check_already_running", zap.String("target_id", string(j.id)))
		return
	}

	actx, cancel := context.WithTimeout(ctx, r.cfg.SoftLimit)
	done := make(chan error, 1)
	go func() {
		defer r.inflight.Release(j.id)
		defer cancel()
		done <- r.task.Check(actx, j.id)
	}()

	hard := time.NewTimer(r.cfg.HardLimit)
	defer hard.Stop()

	select {
	case err := <-done:
		r.finish(ctx, j, err)
	case <-hard.C:
		// the attempt keeps its in-flight slot until it actually returns
		metrics.TasksAbandoned.WithLabelValues("hard_limit").Inc()
		r.log.Error("task_abandoned",
			zap.String("target_id", string(j.id)),
			zap.String("reason", "hard_limit"),
			zap.Duration("limit", r.cfg.HardLimit),
		)
	}
}

func (r *Runner) finish(ctx context.Context, j job, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrAborted) {
		if ctx.Err() != nil {
			return
		}
		metrics.TasksAbandoned.WithLabelValues("soft_limit").Inc()
		r.log.Warn("task_abandoned",
			zap.String("target_id", string(j.id)),
			zap.String("reason", "soft_limit"),
			zap.Duration("limit", r.cfg.SoftLimit),
		)
		return
	}
	if j.attempt >= r.cfg.MaxRetries {
		metrics.TasksAbandoned.WithLabelValues("retries_exhausted").Inc()
		r.log.Error("task_abandoned",
			zap.String("target_id", string(j.id)),
			zap.String("reason", "retries_exhausted"),
			zap.Int("attempts", j.attempt+1),
			zap.Error(err),
		)
		return
	}

	next := job{id: j.id, attempt: j.attempt + 1}
	metrics.TaskRetries.Inc()
	r.log.Warn("task_retry_scheduled",
		zap.String("target_id", string(j.id)),
		zap.Int("attempt", next.attempt),
		zap.Duration("backoff", r.cfg.RetryBackoff),
		zap.Error(err),
	)
	r.afterFunc(r.cfg.RetryBackoff, func() {
		if ctx.Err() != nil {
			return
		}
		r.enqueue(next)
	})
}
