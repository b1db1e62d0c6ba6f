package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Schema is applied by Migrate. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS targets (
  id                     TEXT PRIMARY KEY,
  url                    TEXT NOT NULL,
  name                   TEXT NOT NULL DEFAULT '',
  valid_word             TEXT NOT NULL,
  timeout_sec            INTEGER NOT NULL,
  check_interval_sec     INTEGER NOT NULL,
  failure_threshold      INTEGER NOT NULL DEFAULT 3,
  is_active              BOOLEAN NOT NULL DEFAULT TRUE,
  status                 TEXT NOT NULL DEFAULT 'pending',
  last_check             TIMESTAMPTZ NULL,
  response_time_ms       DOUBLE PRECISION NULL,
  error_message          TEXT NOT NULL DEFAULT '',
  total_checks           BIGINT NOT NULL DEFAULT 0,
  failed_checks          BIGINT NOT NULL DEFAULT 0,
  consecutive_failures   INTEGER NOT NULL DEFAULT 0,
  last_notification_sent TIMESTAMPTZ NULL,
  alert_destination      TEXT NOT NULL DEFAULT '',
  created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS check_records (
  id               BIGSERIAL PRIMARY KEY,
  target_id        TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
  status           TEXT NOT NULL,
  response_time_ms DOUBLE PRECISION NULL,
  status_code      INTEGER NULL,
  error_message    TEXT NOT NULL DEFAULT '',
  checked_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_target_time ON check_records (target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_checks_checked_at  ON check_records (checked_at);
CREATE INDEX IF NOT EXISTS idx_targets_due        ON targets (is_active, status, last_check);
CREATE UNIQUE INDEX IF NOT EXISTS idx_targets_url ON targets (lower(url));
`

const targetColumns = `id, url, name, valid_word, timeout_sec, check_interval_sec, failure_threshold,
       is_active, status, last_check, response_time_ms, error_message, total_checks,
       failed_checks, consecutive_failures, last_notification_sent, alert_destination,
       created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("postgres_schema_applied")
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) Create(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = domain.StatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets
		   (id, url, name, valid_word, timeout_sec, check_interval_sec, failure_threshold,
		    is_active, status, alert_destination, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		string(t.ID), t.URL, t.Name, t.ValidWord, t.TimeoutSec, t.CheckIntervalSec, t.FailureThreshold,
		t.Active, string(t.Status), t.AlertDestination, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrDuplicate
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	row := s.pool.QueryRow(ctx,
		`UPDATE targets
		    SET url=$2, name=$3, valid_word=$4, timeout_sec=$5, check_interval_sec=$6,
		        failure_threshold=$7, is_active=$8, alert_destination=$9,
		        status = CASE WHEN $8 AND status = 'stopped' THEN 'pending' ELSE status END,
		        updated_at=now()
		  WHERE id=$1
		 RETURNING `+targetColumns,
		string(t.ID), t.URL, t.Name, t.ValidWord, t.TimeoutSec, t.CheckIntervalSec,
		t.FailureThreshold, t.Active, t.AlertDestination,
	)
	got, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrDuplicate
		}
		return fmt.Errorf("update target: %w", err)
	}
	*t = *got
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, string(id))
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (s *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE lower(url) = lower($1)`, url)
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target by url: %w", err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	return s.queryTargets(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY created_at DESC, id DESC`)
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) Stop(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE targets SET status='stopped', is_active=FALSE, updated_at=now() WHERE id = $1`,
		string(id))
	if err != nil {
		return fmt.Errorf("stop target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) ListDueCandidates(ctx context.Context, now time.Time) ([]*domain.Target, error) {
	return s.queryTargets(ctx,
		`SELECT `+targetColumns+`
		   FROM targets
		  WHERE is_active AND status <> 'stopped'
		    AND (last_check IS NULL OR last_check <= $1::timestamptz - make_interval(secs => check_interval_sec))`,
		now)
}

func (s *Store) queryTargets(ctx context.Context, q string, args ...any) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---- CheckStore ----

// ApplyCheckResult locks the target row for the duration of one short
// transaction, so concurrent completions for the same target serialize and
// all but the first observe a moved last_check.
func (s *Store) ApplyCheckResult(ctx context.Context, id domain.TargetID, observed *time.Time, o domain.Outcome, now time.Time) (*repo.Applied, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1 FOR UPDATE`, string(id))
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrStale
	}
	if err != nil {
		return nil, fmt.Errorf("lock target: %w", err)
	}
	if !t.Monitored() || !repo.SameInstant(t.LastCheck, truncate(observed)) {
		return nil, repo.ErrStale
	}

	prev, rec := domain.ApplyOutcome(t, o, now.UTC().Truncate(time.Microsecond))

	_, err = tx.Exec(ctx,
		`UPDATE targets
		    SET status=$2, last_check=$3, response_time_ms=$4, error_message=$5,
		        total_checks=$6, failed_checks=$7, consecutive_failures=$8, updated_at=$9
		  WHERE id=$1`,
		string(t.ID), string(t.Status), t.LastCheck, t.ResponseTimeMS, t.LastError,
		t.TotalChecks, t.FailedChecks, t.ConsecutiveFailures, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO check_records
		   (target_id, status, response_time_ms, status_code, error_message, checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING id`,
		string(rec.TargetID), string(rec.Status), rec.ResponseTimeMS, rec.StatusCode, rec.Error, rec.CheckedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert check record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &repo.Applied{Target: t, PreviousStatus: prev, Record: rec}, nil
}

func (s *Store) MarkNotified(ctx context.Context, id domain.TargetID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE targets SET last_notification_sent=$2 WHERE id=$1`, string(id), at)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) ListChecks(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckRecord, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM targets WHERE id=$1)`, string(id)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check target: %w", err)
	}
	if !exists {
		return nil, repo.ErrNotFound
	}
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, target_id, status, response_time_ms, status_code, error_message, checked_at
		   FROM check_records
		  WHERE target_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT $2`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckRecord
	for rows.Next() {
		var (
			r      domain.CheckRecord
			tid    string
			status string
		)
		if err := rows.Scan(&r.ID, &tid, &status, &r.ResponseTimeMS, &r.StatusCode, &r.Error, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		r.TargetID = domain.TargetID(tid)
		r.Status = domain.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM check_records WHERE checked_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete checks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanTarget(row pgx.Row) (*domain.Target, error) {
	var (
		t      domain.Target
		id     string
		status string
	)
	err := row.Scan(&id, &t.URL, &t.Name, &t.ValidWord, &t.TimeoutSec, &t.CheckIntervalSec, &t.FailureThreshold,
		&t.Active, &status, &t.LastCheck, &t.ResponseTimeMS, &t.LastError, &t.TotalChecks,
		&t.FailedChecks, &t.ConsecutiveFailures, &t.LastNotificationSent, &t.AlertDestination,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	t.Status = domain.Status(status)
	return &t, nil
}

// truncate matches Postgres timestamp precision.
func truncate(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	v := ts.Truncate(time.Microsecond)
	return &v
}
