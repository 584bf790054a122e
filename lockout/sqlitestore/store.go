// Package sqlitestore keeps lockout counters in SQLite so every process sharing
// the database file sees the same counts.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
	"github.com/jrsteele09/school-auth/lockout"
)

var _ lockout.Store = (*Store)(nil)

// Store implements lockout.Store on the failed_attempts table.
type Store struct {
	db *sql.DB
}

// New creates a Store. The schema is created by internal/database migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) (*lockout.Record, error) {
	var count int
	var started, last int64
	err := s.db.QueryRowContext(ctx,
		`SELECT failures, window_started_at, last_failure_at FROM failed_attempts WHERE identity_key = ?`, key,
	).Scan(&count, &started, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying failed attempts: %w", err)
	}
	return toRecord(key, count, started, last), nil
}

// Increment is a single upsert statement, so concurrent failures for the same
// key are neither lost nor double counted.
func (s *Store) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*lockout.Record, error) {
	cutoff := now.Add(-window).UnixNano()
	var count int
	var started, last int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO failed_attempts (identity_key, failures, window_started_at, last_failure_at)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET
		     failures = CASE WHEN failed_attempts.window_started_at <= ? THEN 1 ELSE failed_attempts.failures + 1 END,
		     window_started_at = CASE WHEN failed_attempts.window_started_at <= ? THEN excluded.window_started_at ELSE failed_attempts.window_started_at END,
		     last_failure_at = excluded.last_failure_at
		 RETURNING failures, window_started_at, last_failure_at`,
		key, now.UnixNano(), now.UnixNano(), cutoff, cutoff,
	).Scan(&count, &started, &last)
	if err != nil {
		return nil, fmt.Errorf("incrementing failed attempts: %w", err)
	}
	return toRecord(key, count, started, last), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failed_attempts WHERE identity_key = ?`, key); err != nil {
		return fmt.Errorf("deleting failed attempts: %w", err)
	}
	return nil
}

func (s *Store) DeleteIfStartedBefore(ctx context.Context, key string, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM failed_attempts WHERE identity_key = ? AND window_started_at <= ?`, key, cutoff.UnixNano(),
	); err != nil {
		return fmt.Errorf("discarding failed attempts: %w", err)
	}
	return nil
}

func toRecord(key string, count int, started, last int64) *lockout.Record {
	return &lockout.Record{
		Key:             key,
		Count:           count,
		WindowStartedAt: time.Unix(0, started).UTC(),
		LastFailureAt:   time.Unix(0, last).UTC(),
	}
}
