// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// epoch is the watermark value of a freshly created settings row: everything
// on the server is newer than it, so the first pull sees the full window.
var epoch = time.Unix(0, 0).UTC()

// Watermark returns last_sync_time, lazily creating the settings singleton
// on first use.
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	if err := s.checkClosed(); err != nil {
		return time.Time{}, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync_time FROM system_settings LIMIT 1`).Scan(&raw)
	if err == nil {
		return parseTime(raw)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", err)
	}

	err = s.writeTx(ctx, func(tx *sql.Tx) error {
		return ensureSettings(ctx, tx)
	})
	if err != nil {
		return time.Time{}, err
	}
	return epoch, nil
}

// AdvanceWatermark raises last_sync_time to the given instant. Older values
// are ignored so the watermark never moves backwards.
func (s *Store) AdvanceWatermark(ctx context.Context, to time.Time) error {
	return s.writeTx(ctx, func(tx *sql.Tx) error {
		return advanceWatermark(ctx, tx, to)
	})
}

// ensureSettings inserts the singleton row if it does not exist yet.
func ensureSettings(ctx context.Context, tx *sql.Tx) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM system_settings`).Scan(&n); err != nil {
		return fmt.Errorf("failed to count settings rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO system_settings (id, last_sync_time) VALUES (?, ?)`,
		NewID(), formatTime(epoch))
	if err != nil {
		return fmt.Errorf("failed to create settings row: %w", err)
	}
	return nil
}

// advanceWatermark is the in-transaction form used by the pull merge. The
// fixed-width time encoding makes the string comparison equivalent to a
// chronological one.
func advanceWatermark(ctx context.Context, tx *sql.Tx, to time.Time) error {
	if err := ensureSettings(ctx, tx); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE system_settings SET last_sync_time = ? WHERE last_sync_time < ?`,
		formatTime(to), formatTime(to))
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	return nil
}
