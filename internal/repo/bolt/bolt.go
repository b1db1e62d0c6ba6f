// Package bolt is an embedded single-file backend for single-node deployments.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

var (
	targetsBucket = []byte("targets")
	urlsBucket    = []byte("target_urls")
	checksBucket  = []byte("checks")
)

// Store writes go through bbolt's single writer transaction, which
// serializes ApplyCheckResult across all targets.
type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{targetsBucket, urlsBucket, checksBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

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
	return s.db.Update(func(tx *bbolt.Tx) error {
		urls := tx.Bucket(urlsBucket)
		key := urlKey(t.URL)
		if urls.Get(key) != nil {
			return repo.ErrDuplicate
		}
		if err := putTarget(tx, t); err != nil {
			return err
		}
		return urls.Put(key, []byte(t.ID))
	})
}

func (s *Store) Update(ctx context.Context, t *domain.Target) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		cur, err := getTarget(tx, t.ID)
		if err != nil {
			return err
		}
		urls := tx.Bucket(urlsBucket)
		if !strings.EqualFold(cur.URL, t.URL) {
			key := urlKey(t.URL)
			if urls.Get(key) != nil {
				return repo.ErrDuplicate
			}
			if err := urls.Delete(urlKey(cur.URL)); err != nil {
				return err
			}
			if err := urls.Put(key, []byte(cur.ID)); err != nil {
				return err
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
		if err := putTarget(tx, cur); err != nil {
			return err
		}
		*t = *cur
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	var t *domain.Target
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		t, err = getTarget(tx, id)
		return err
	})
	return t, err
}

func (s *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	var t *domain.Target
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(urlsBucket).Get(urlKey(url))
		if id == nil {
			return repo.ErrNotFound
		}
		var err error
		t, err = getTarget(tx, domain.TargetID(id))
		return err
	})
	return t, err
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	out, err := s.filter(func(*domain.Target) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListDueCandidates(ctx context.Context, now time.Time) ([]*domain.Target, error) {
	return s.filter(func(t *domain.Target) bool { return t.IsDue(now) })
}

func (s *Store) filter(keep func(*domain.Target) bool) ([]*domain.Target, error) {
	var out []*domain.Target
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(targetsBucket).ForEach(func(k, v []byte) error {
			var t domain.Target
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshal target %s: %w", k, err)
			}
			if keep(&t) {
				out = append(out, &t)
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		t, err := getTarget(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(urlsBucket).Delete(urlKey(t.URL)); err != nil {
			return err
		}
		if err := tx.Bucket(targetsBucket).Delete([]byte(id)); err != nil {
			return err
		}
		checks := tx.Bucket(checksBucket)
		prefix := checkPrefix(id)
		var keys [][]byte
		c := checks.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := checks.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Stop(ctx context.Context, id domain.TargetID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		t, err := getTarget(tx, id)
		if err != nil {
			return err
		}
		t.Status = domain.StatusStopped
		t.Active = false
		t.UpdatedAt = time.Now().UTC()
		return putTarget(tx, t)
	})
}

// ---- CheckStore ----

func (s *Store) ApplyCheckResult(ctx context.Context, id domain.TargetID, observed *time.Time, o domain.Outcome, now time.Time) (*repo.Applied, error) {
	var applied *repo.Applied
	err := s.db.Update(func(tx *bbolt.Tx) error {
		t, err := getTarget(tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return repo.ErrStale
		}
		if err != nil {
			return err
		}
		if !t.Monitored() || !repo.SameInstant(t.LastCheck, observed) {
			return repo.ErrStale
		}
		prev, rec := domain.ApplyOutcome(t, o, now)

		checks := tx.Bucket(checksBucket)
		seq, err := checks.NextSequence()
		if err != nil {
			return err
		}
		rec.ID = int64(seq)
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal check record: %w", err)
		}
		if err := checks.Put(checkKey(id, rec.CheckedAt, seq), data); err != nil {
			return err
		}
		if err := putTarget(tx, t); err != nil {
			return err
		}
		applied = &repo.Applied{Target: t, PreviousStatus: prev, Record: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Store) MarkNotified(ctx context.Context, id domain.TargetID, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		t, err := getTarget(tx, id)
		if err != nil {
			return err
		}
		ts := at
		t.LastNotificationSent = &ts
		return putTarget(tx, t)
	})
}

// ListChecks walks the target's key range backwards, newest first.
func (s *Store) ListChecks(ctx context.Context, id domain.TargetID, limit int) ([]domain.CheckRecord, error) {
	var out []domain.CheckRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, err := getTarget(tx, id); err != nil {
			return err
		}
		prefix := checkPrefix(id)
		end := append(append([]byte(nil), prefix[:len(prefix)-1]...), prefix[len(prefix)-1]+1)

		c := tx.Bucket(checksBucket).Cursor()
		k, v := c.Seek(end)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			var r domain.CheckRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal check %x: %w", k, err)
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// DeleteChecksBefore reads the timestamp out of each key, so record bodies
// are never decoded.
func (s *Store) DeleteChecksBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		checks := tx.Bucket(checksBucket)
		limit := cutoff.UnixNano()
		var keys [][]byte
		c := checks.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ts, ok := keyTime(k)
			if ok && ts < limit {
				keys = append(keys, append([]byte(nil), k...))
			}
		}
		for _, k := range keys {
			if err := checks.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func getTarget(tx *bbolt.Tx, id domain.TargetID) (*domain.Target, error) {
	v := tx.Bucket(targetsBucket).Get([]byte(id))
	if v == nil {
		return nil, repo.ErrNotFound
	}
	var t domain.Target
	if err := json.Unmarshal(v, &t); err != nil {
		return nil, fmt.Errorf("unmarshal target %s: %w", id, err)
	}
	return &t, nil
}

func putTarget(tx *bbolt.Tx, t *domain.Target) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	return tx.Bucket(targetsBucket).Put([]byte(t.ID), data)
}

func urlKey(url string) []byte { return []byte(strings.ToLower(url)) }

// Check keys are <target id> 0x00 <unix nanos, big endian> <sequence, big endian>
// so a target's records sort by time.
func checkPrefix(id domain.TargetID) []byte {
	return append([]byte(id), 0)
}

func checkKey(id domain.TargetID, at time.Time, seq uint64) []byte {
	k := checkPrefix(id)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], seq)
	return append(k, buf[:]...)
}

func keyTime(k []byte) (int64, bool) {
	if len(k) < 17 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(k[len(k)-16 : len(k)-8])), true
}
