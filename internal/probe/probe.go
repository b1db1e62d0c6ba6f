package probe

import (
	"context"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Checker performs a single probe of a target and classifies the outcome.
// Probe failures are outcomes, never errors.
type Checker interface {
	Check(ctx context.Context, t *domain.Target) domain.Outcome
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, t *domain.Target) domain.Outcome

func (f CheckerFunc) Check(ctx context.Context, t *domain.Target) domain.Outcome {
	return f(ctx, t)
}
