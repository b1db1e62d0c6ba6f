package scheduler

import (
	"context"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/metrics"
)

type dueLister interface {
	ListDueCandidates(ctx context.Context, now time.Time) ([]*domain.Target, error)
}

// Selector computes the set of targets that are due at a given instant.
type Selector struct {
	Store dueLister
	Clock Clock
}

// Due is read-only. The store narrows the candidates; IsDue is applied again
// here so every backend agrees on the boundary (elapsed >= interval).
func (s *Selector) Due(ctx context.Context) ([]*domain.Target, error) {
	now := s.Clock.Now()
	candidates, err := s.Store.ListDueCandidates(ctx, now)
	if err != nil {
		return nil, err
	}
	due := candidates[:0]
	for _, t := range candidates {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	metrics.DueTargets.Set(float64(len(due)))
	return due, nil
}
