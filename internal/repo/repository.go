package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var (
	ErrNotFound  = errors.New("target not found")
	ErrDuplicate = errors.New("target url already exists")
	// ErrStale is returned by ApplyCheckResult when the target was deleted,
	// deactivated or stopped after it was loaded, or when another check
	// already recorded a result for the same due window.
	ErrStale = errors.New("stale check result")
)

// TargetStore holds target configuration. The scheduling core only reads
// through ListDueCandidates and Get; the rest serves the configuration API.
type TargetStore interface {
	Create(ctx context.Context, t *domain.Target) error
	Update(ctx context.Context, t *domain.Target) error
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	GetByURL(ctx context.Context, url string) (*domain.Target, error)
	List(ctx context.Context) ([]*domain.Target, error)
	// Delete removes the target together with its check records.
	Delete(ctx context.Context, id domain.TargetID) error
	// Stop sets status=stopped and active=false.
	Stop(ctx context.Context, id domain.TargetID) error
	// ListDueCandidates returns active, non-stopped targets that are due at now.
	ListDueCandidates(ctx context.Context, now time.Time) ([]*domain.Target, error)
}

// Applied is the result of a successful ApplyCheckResult.
type Applied struct {
	Target         *domain.Target
	PreviousStatus domain.Status
	Record         domain.CheckRecord
}

// CheckStore is the persistence sink for check cycles.
type CheckStore interface {
	// ApplyCheckResult atomically updates the target's aggregate state and
	// appends one check record. observed is the last_check value seen when
	// the target was loaded for this cycle; a mismatch yields ErrStale.
	ApplyCheckResult(ctx context.Context, id domain.TargetID, observed *time.Time, o domain.Outcome, now time.Time) (*Applied, error)
	MarkNotified(ctx context.Context, id domain.TargetID, at time.Time) error
	ListChecks(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckRecord, error)
	DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is implemented by every backend.
type Store interface {
	TargetStore
	CheckStore
	Close() error
}

// SameInstant compares two nullable timestamps.
func SameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
