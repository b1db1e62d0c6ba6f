package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
)

type recordingSubmitter struct {
	ids  []domain.TargetID
	full bool
}

func (r *recordingSubmitter) Submit(id domain.TargetID) bool {
	if r.full {
		return false
	}
	r.ids = append(r.ids, id)
	return true
}

func TestSelector_DueBoundaries(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	now := clock.Now()

	never := newTarget("https://never.example")
	exact := newTarget("https://exact.example")
	early := newTarget("https://early.example")
	stopped := newTarget("https://stopped.example")
	inactive := newTarget("https://inactive.example")
	inactive.Active = false
	for _, tg := range []*domain.Target{never, exact, early, stopped, inactive} {
		require.NoError(t, store.Create(ctx, tg))
	}
	applyN(t, store, exact.ID, onlineOutcome(), now.Add(-300*time.Second))
	applyN(t, store, early.ID, onlineOutcome(), now.Add(-299*time.Second))
	require.NoError(t, store.Stop(ctx, stopped.ID))

	due, err := (&Selector{Store: store, Clock: clock}).Due(ctx)
	require.NoError(t, err)

	var ids []domain.TargetID
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []domain.TargetID{never.ID, exact.ID}, ids)
}

func TestScheduler_TickSubmitsDueTargets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	clock := newFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	a := newTarget("https://a.example")
	b := newTarget("https://b.example")
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))
	applyN(t, store, b.ID, onlineOutcome(), clock.Now())

	sub := &recordingSubmitter{}
	s := &Scheduler{Selector: &Selector{Store: store, Clock: clock}, Runner: sub, Interval: time.Minute, Log: zaptest.NewLogger(t)}

	assert.Equal(t, 1, s.Tick(ctx))
	assert.Equal(t, []domain.TargetID{a.ID}, sub.ids)

	// at-least-once: the same window is handed out again on the next tick
	assert.Equal(t, 1, s.Tick(ctx))
	assert.Equal(t, []domain.TargetID{a.ID, a.ID}, sub.ids)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 2, s.Tick(ctx))

	sub.full = true
	assert.Equal(t, 0, s.Tick(ctx))
}

type failingLister struct{}

func (failingLister) ListDueCandidates(context.Context, time.Time) ([]*domain.Target, error) {
	return nil, errors.New("connection reset")
}

func TestScheduler_TickToleratesStoreErrors(t *testing.T) {
	sub := &recordingSubmitter{}
	s := &Scheduler{
		Selector: &Selector{Store: failingLister{}, Clock: SystemClock{}},
		Runner:   sub,
		Interval: time.Minute,
		Log:      zaptest.NewLogger(t),
	}
	assert.Equal(t, 0, s.Tick(context.Background()))
	assert.Empty(t, sub.ids)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	store := memory.New()
	sub := &recordingSubmitter{}
	s := &Scheduler{
		Selector: &Selector{Store: store, Clock: SystemClock{}},
		Runner:   sub,
		Interval: 10 * time.Millisecond,
		Log:      zaptest.NewLogger(t),
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
