package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Store keeps targets and check history in process memory. A single mutex
// serializes ApplyCheckResult, which gives per-target mutual exclusion.
type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*domain.Target
	checks  map[domain.TargetID][]domain.CheckRecord
	nextID  int64
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]*domain.Target),
		checks:  make(map[domain.TargetID][]domain.CheckRecord),
	}
}

func (m *Store) Close() error { return nil }

// ---- TargetStore ----

func (m *Store) Create(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.targets {
		if strings.EqualFold(cur.URL, t.URL) {
			return repo.ErrDuplicate
		}
	}
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	m.targets[t.ID] = t.Clone()
	return nil
}

// Update replaces configuration fields only; aggregate counters are owned by
// ApplyCheckResult and MarkNotified.
func (m *Store) Update(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.targets[t.ID]
	if !ok {
		return repo.ErrNotFound
	}
	for id, other := range m.targets {
		if id != t.ID && strings.EqualFold(other.URL, t.URL) {
			return repo.ErrDuplicate
		}
	}
	cur.URL = t.URL
	cur.Name = t.Name
	cur.ValidWord = t.ValidWord
	cur.TimeoutSec = t.TimeoutSec
	cur.CheckIntervalSec = t.CheckIntervalSec
	cur.FailureThreshold = t.FailureThreshold
	cur.Active = t.Active
	cur.AlertDestination = t.AlertDestination
	if t.Active && cur.Status == domain.StatusStopped {
		cur.Status = domain.StatusPending
	}
	cur.UpdatedAt = time.Now().UTC()
	*t = *cur.Clone()
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.targets {
		if strings.EqualFold(t.URL, url) {
			return t.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.targets, id)
	delete(m.checks, id)
	return nil
}

func (m *Store) Stop(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	t.Status = domain.StatusStopped
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Store) ListDueCandidates(ctx context.Context, now time.Time) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Target
	for _, t := range m.targets {
		if t.IsDue(now) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// ---- CheckStore ----

func (m *Store) ApplyCheckResult(ctx context.Context, id domain.TargetID, observed *time.Time, o domain.Outcome, now time.Time) (*repo.Applied, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok || !t.Monitored() || !repo.SameInstant(t.LastCheck, observed) {
		return nil, repo.ErrStale
	}
	next := t.Clone()
	prev, rec := domain.ApplyOutcome(next, o, now)
	m.nextID++
	rec.ID = m.nextID
	m.targets[id] = next
	m.checks[id] = append(m.checks[id], rec)
	return &repo.Applied{Target: next.Clone(), PreviousStatus: prev, Record: rec}, nil
}

func (m *Store) MarkNotified(ctx context.Context, id domain.TargetID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return repo.ErrNotFound
	}
	ts := at
	t.LastNotificationSent = &ts
	return nil
}

// ListChecks returns the newest records first.
func (m *Store) ListChecks(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.targets[id]; !ok {
		return nil, repo.ErrNotFound
	}
	recs := m.checks[id]
	out := make([]domain.CheckRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, recs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Store) DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, recs := range m.checks {
		kept := recs[:0]
		for _, r := range recs {
			if r.CheckedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		m.checks[id] = kept
	}
	return deleted, nil
}
