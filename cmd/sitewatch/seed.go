package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// seedTargets creates targets from the seed file, or updates the
// configuration of ones already stored under the same URL. Counters and
// history of existing targets are left alone.
func seedTargets(ctx context.Context, store repo.TargetStore, targets []*domain.Target, logger *zap.Logger) error {
	created, updated := 0, 0
	for _, t := range targets {
		cur, err := store.GetByURL(ctx, t.URL)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			if err := store.Create(ctx, t); err != nil {
				return fmt.Errorf("seed %s: %w", t.URL, err)
			}
			created++
		case err != nil:
			return fmt.Errorf("seed %s: %w", t.URL, err)
		default:
			t.ID = cur.ID
			if err := store.Update(ctx, t); err != nil {
				return fmt.Errorf("seed %s: %w", t.URL, err)
			}
			updated++
		}
	}
	logger.Info("targets_seeded", zap.Int("created", created), zap.Int("updated", updated))
	return nil
}
