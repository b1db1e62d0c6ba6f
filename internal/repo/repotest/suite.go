// Package repotest holds the behaviour every repo.Store backend must share.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// NewTarget returns a valid, active target with a URL unique to this run.
func NewTarget(suffix string) *domain.Target {
	return &domain.Target{
		URL:              fmt.Sprintf("https://example.com/%s-%d", suffix, time.Now().UTC().UnixNano()),
		Name:             "example " + suffix,
		ValidWord:        "OK",
		TimeoutSec:       30,
		CheckIntervalSec: 300,
		FailureThreshold: 3,
		Active:           true,
		Status:           domain.StatusPending,
	}
}

// Run executes the conformance suite against a fresh store per subtest.
func Run(t *testing.T, open func(t *testing.T) repo.Store) {
	t.Run("CreateGetList", func(t *testing.T) { testCreateGetList(t, open(t)) })
	t.Run("DuplicateURL", func(t *testing.T) { testDuplicateURL(t, open(t)) })
	t.Run("UpdateKeepsCounters", func(t *testing.T) { testUpdateKeepsCounters(t, open(t)) })
	t.Run("ApplyCheckResult", func(t *testing.T) { testApply(t, open(t)) })
	t.Run("StaleGuard", func(t *testing.T) { testStale(t, open(t)) })
	t.Run("ConcurrentApplySameWindow", func(t *testing.T) { testConcurrentApply(t, open(t)) })
	t.Run("StopAndDue", func(t *testing.T) { testStopAndDue(t, open(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, open(t)) })
	t.Run("MarkNotified", func(t *testing.T) { testMarkNotified(t, open(t)) })
	t.Run("DeleteChecksBefore", func(t *testing.T) { testRetention(t, open(t)) })
}

func testCreateGetList(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("create")
	require.NoError(t, s.Create(ctx, tgt))
	require.NotEmpty(t, tgt.ID)

	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, tgt.URL, got.URL)
	assert.Equal(t, "OK", got.ValidWord)
	assert.Equal(t, 300, got.CheckIntervalSec)
	assert.Nil(t, got.LastCheck)

	byURL, err := s.GetByURL(ctx, tgt.URL)
	require.NoError(t, err)
	assert.Equal(t, tgt.ID, byURL.ID)

	list, err := s.List(ctx)
	require.NoError(t, err)
	found := false
	for _, x := range list {
		if x.ID == tgt.ID {
			found = true
		}
	}
	assert.True(t, found, "created target missing from list")

	_, err = s.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testDuplicateURL(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := NewTarget("dup")
	require.NoError(t, s.Create(ctx, a))
	b := NewTarget("other")
	b.URL = a.URL
	assert.ErrorIs(t, s.Create(ctx, b), repo.ErrDuplicate)
}

func testUpdateKeepsCounters(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("update")
	require.NoError(t, s.Create(ctx, tgt))
	now := time.Now().UTC().Truncate(time.Second)
	_, err := s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOffline, Error: "x"}, now)
	require.NoError(t, err)

	edit := tgt.Clone()
	edit.ValidWord = "Healthy"
	edit.CheckIntervalSec = 600
	edit.TotalChecks = 99
	require.NoError(t, s.Update(ctx, edit))

	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Healthy", got.ValidWord)
	assert.Equal(t, 600, got.CheckIntervalSec)
	assert.EqualValues(t, 1, got.TotalChecks, "update must not overwrite counters")
	assert.Equal(t, domain.StatusOffline, got.Status)

	missing := NewTarget("missing")
	missing.ID = "nope"
	assert.ErrorIs(t, s.Update(ctx, missing), repo.ErrNotFound)

	other := NewTarget("update-other")
	require.NoError(t, s.Create(ctx, other))
	clash := other.Clone()
	clash.URL = tgt.URL
	assert.ErrorIs(t, s.Update(ctx, clash), repo.ErrDuplicate)
}

func testApply(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("apply")
	require.NoError(t, s.Create(ctx, tgt))

	t0 := time.Now().UTC().Truncate(time.Second)
	ms := 42.0
	code := 200
	app, err := s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOnline, ResponseTimeMS: &ms, StatusCode: &code}, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, app.PreviousStatus)
	assert.Equal(t, domain.StatusOnline, app.Target.Status)
	assert.EqualValues(t, 1, app.Target.TotalChecks)
	require.NotNil(t, app.Target.LastCheck)
	assert.True(t, app.Target.LastCheck.Equal(t0))

	t1 := t0.Add(5 * time.Minute)
	app, err = s.ApplyCheckResult(ctx, tgt.ID, app.Target.LastCheck, domain.Outcome{Status: domain.StatusOffline, Error: "Timeout after 30s"}, t1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, app.PreviousStatus)
	assert.Equal(t, 1, app.Target.ConsecutiveFailures)
	assert.EqualValues(t, 2, app.Target.TotalChecks)
	assert.EqualValues(t, 1, app.Target.FailedChecks)

	recs, err := s.ListChecks(ctx, tgt.ID, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, domain.StatusOffline, recs[0].Status, "newest first")
	assert.Equal(t, "Timeout after 30s", recs[0].Error)
	assert.Nil(t, recs[0].ResponseTimeMS)
	assert.Equal(t, domain.StatusOnline, recs[1].Status)
	require.NotNil(t, recs[1].StatusCode)
	assert.Equal(t, 200, *recs[1].StatusCode)

	// total_checks == failed_checks + online records
	online := 0
	for _, r := range recs {
		if r.Status == domain.StatusOnline {
			online++
		}
	}
	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	assert.EqualValues(t, got.TotalChecks, got.FailedChecks+int64(online))

	recs, err = s.ListChecks(ctx, tgt.ID, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func testStale(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("stale")
	require.NoError(t, s.Create(ctx, tgt))
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.ApplyCheckResult(ctx, "missing", nil, domain.Outcome{Status: domain.StatusOnline}, now)
	assert.ErrorIs(t, err, repo.ErrStale)

	wrong := now.Add(-time.Hour)
	_, err = s.ApplyCheckResult(ctx, tgt.ID, &wrong, domain.Outcome{Status: domain.StatusOnline}, now)
	assert.ErrorIs(t, err, repo.ErrStale)

	edit := tgt.Clone()
	edit.Active = false
	require.NoError(t, s.Update(ctx, edit))
	_, err = s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOnline}, now)
	assert.ErrorIs(t, err, repo.ErrStale)

	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.TotalChecks)
	recs, err := s.ListChecks(ctx, tgt.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func testConcurrentApply(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("race")
	require.NoError(t, s.Create(ctx, tgt))
	now := time.Now().UTC().Truncate(time.Second)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOffline}, now)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok, "exactly one completion may win a due window")
	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalChecks)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func testStopAndDue(t *testing.T, s repo.Store) {
	ctx := context.Background()
	a := NewTarget("due-a")
	b := NewTarget("due-b")
	c := NewTarget("due-c")
	for _, x := range []*domain.Target{a, b, c} {
		require.NoError(t, s.Create(ctx, x))
	}
	now := time.Now().UTC().Truncate(time.Second)
	_, err := s.ApplyCheckResult(ctx, b.ID, nil, domain.Outcome{Status: domain.StatusOnline}, now.Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Stop(ctx, c.ID))

	due, err := s.ListDueCandidates(ctx, now)
	require.NoError(t, err)
	ids := map[domain.TargetID]bool{}
	for _, d := range due {
		ids[d.ID] = true
	}
	assert.True(t, ids[a.ID], "never-checked target is due")
	assert.False(t, ids[b.ID], "recently checked target is not due")
	assert.False(t, ids[c.ID], "stopped target is never due")

	stopped, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stopped.Status)
	assert.False(t, stopped.Active)

	assert.ErrorIs(t, s.Stop(ctx, "missing"), repo.ErrNotFound)
}

func testDeleteCascades(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("delete")
	require.NoError(t, s.Create(ctx, tgt))
	_, err := s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOnline}, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, tgt.ID))
	_, err = s.Get(ctx, tgt.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.ListChecks(ctx, tgt.ID, 0)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, tgt.ID), repo.ErrNotFound)
}

func testMarkNotified(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("notify")
	require.NoError(t, s.Create(ctx, tgt))
	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MarkNotified(ctx, tgt.ID, at))
	got, err := s.Get(ctx, tgt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastNotificationSent)
	assert.True(t, got.LastNotificationSent.Equal(at))
	assert.ErrorIs(t, s.MarkNotified(ctx, "missing", at), repo.ErrNotFound)
}

func testRetention(t *testing.T, s repo.Store) {
	ctx := context.Background()
	tgt := NewTarget("retention")
	require.NoError(t, s.Create(ctx, tgt))

	now := time.Now().UTC().Truncate(time.Second)
	old := now.Add(-31 * 24 * time.Hour)
	young := now.Add(-29 * 24 * time.Hour)

	app, err := s.ApplyCheckResult(ctx, tgt.ID, nil, domain.Outcome{Status: domain.StatusOffline}, old)
	require.NoError(t, err)
	_, err = s.ApplyCheckResult(ctx, tgt.ID, app.Target.LastCheck, domain.Outcome{Status: domain.StatusOnline}, young)
	require.NoError(t, err)

	cutoff := now.Add(-30 * 24 * time.Hour)
	n, err := s.DeleteChecksBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	recs, err := s.ListChecks(ctx, tgt.ID, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].CheckedAt.Equal(young))

	// records exactly at the cutoff survive
	_, err = s.DeleteChecksBefore(ctx, young)
	require.NoError(t, err)
	recs, err = s.ListChecks(ctx, tgt.ID, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
