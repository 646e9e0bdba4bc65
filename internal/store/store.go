// Package store is the single embedded relational store (spec §4.1):
// SQLite under WAL, idempotent schema creation, additive-only
// migrations, and a transactional handle that serializes writes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Store owns every durable entity in spec §3. SessionRegistry and
// Notifier hold no durable state of their own; they only reference
// what Store persists.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex // coarse write serialization, spec §5
	logger *slog.Logger
}

// Open opens (creating if necessary) the database at path and brings
// it up to the current schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for read-only queries, which do
// not need to go through WithTx — SQLite under WAL serves concurrent
// readers without blocking the single writer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Now returns the timestamp written into new rows. A single function
// so every write path stamps consistently.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// withTxBackoff builds the retry schedule for SQLITE_BUSY: 25ms up to
// 500ms, doubling, giving up once the elapsed time exceeds the ~5s
// busy timeout spec §5 names.
func withTxBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// WithTx runs fn inside a transaction, holding Store's write lock for
// its duration (spec §5: "Store's single writer"; "operations that
// compose a read-modify-write on the same row... MUST execute inside
// a single transaction"). SQLITE_BUSY is retried with backoff since
// the busy timeout alone can still race under write contention from
// concurrent RPC handlers.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := withTxBackoff()
	deadline := time.Now().Add(5 * time.Second)

	for {
		err := s.runOnce(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("transaction still busy after retries: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
