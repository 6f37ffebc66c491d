// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("feedstore: store is closed")
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("feedstore: record not found")
)

// Options configures Open.
type Options struct {
	// Key is the hex-encoded store encryption key, applied via PRAGMA key
	// before any other statement. It takes effect on SQLCipher-enabled
	// builds of the sqlite3 driver and is ignored by stock builds.
	Key string

	// BusyTimeout bounds lock waits. Defaults to 5s.
	BusyTimeout time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the embedded feed database. All writes run inside store-owned
// transactions serialized by a single writer lock; reads may overlap.
type Store struct {
	db     *sql.DB
	bus    *Bus
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex // serialize write transactions

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the store at path and migrates it to
// the current schema version. Use ":memory:" for an ephemeral store.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path must be provided")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// The store is single-writer by contract; one connection keeps
	// transactions and reads on the same snapshot and makes ":memory:"
	// databases safe to use.
	db.SetMaxOpenConns(1)

	if opts.Key != "" {
		// Must be the first statement on the connection for SQLCipher.
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA key = "x'%s'"`, opts.Key)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply store key: %w", err)
		}
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA busy_timeout=%d`, opts.BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		bus:    NewBus(),
		logger: opts.Logger,
		now:    opts.Now,
	}, nil
}

// Close releases the underlying database. Subsequent operations return
// ErrClosed; in-flight operations may also surface driver errors.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Bus exposes the change-notification bus. Subscribers receive a coalesced
// signal after every committed transaction that touched their entity.
func (s *Store) Bus() *Bus {
	return s.bus
}

func (s *Store) checkClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// writeTx runs fn inside a serialized write transaction.
func (s *Store) writeTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	committed = true
	return nil
}
