// Package store is the persistence layer: a single embedded SQLite database
// accessed with write-ahead logging and a busy timeout, migrated at startup,
// exposing typed queries per entity plus a transaction primitive (spec §4.1).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskrouter/internal/apperr"
	"taskrouter/internal/logging"
)

// Store wraps the embedded database handle plus the retry policy every
// write goes through.
type Store struct {
	db     *sql.DB
	log    logging.Logger
	retry  retryPolicy
}

// retryPolicy is the exponential-backoff-on-busy policy spec §4.1 mandates:
// base 100ms, capped at 1s, up to 3 attempts.
type retryPolicy struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxAttempt int
}

var defaultRetryPolicy = retryPolicy{
	baseDelay:  100 * time.Millisecond,
	maxDelay:   1 * time.Second,
	maxAttempt: 3,
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL mode and a 5-second busy timeout, and runs pending migrations.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	log = logging.OrNop(log)
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY storms under WAL;
	// readers still proceed concurrently with the one writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: logging.NewComponentLogger(log, "store"), retry: defaultRetryPolicy}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Busy-database errors are retried per the store's
// retry policy before giving up.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// withRetry retries op up to maxAttempt times with exponential backoff when
// the error looks like a transient "database is busy/locked" condition.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	delay := s.retry.baseDelay
	var lastErr error
	for attempt := 1; attempt <= s.retry.maxAttempt; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyErr(err) || attempt == s.retry.maxAttempt {
			return err
		}
		s.log.Warn("store busy, retrying", "attempt", attempt, "delay_ms", delay.Milliseconds())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > s.retry.maxDelay {
			delay = s.retry.maxDelay
		}
	}
	return lastErr
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is busy")
}

// nowMillis returns the current time in milliseconds since the Unix epoch.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// IsStoreError reports whether err came back from a Store call without being
// one of the domain sentinel kinds (not-found, validation, conflict,
// unavailable). The transport boundary uses this to tell an unexpected
// persistence failure (apperr.CodeDatabase) apart from a truly unclassified
// internal error (apperr.CodeInternal) — see apperr.CodeFor.
func IsStoreError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, apperr.ErrNotFound) &&
		!errors.Is(err, apperr.ErrValidation) &&
		!errors.Is(err, apperr.ErrConflict) &&
		!errors.Is(err, apperr.ErrUnavailable)
}
