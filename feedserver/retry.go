// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// isRetryableTxError reports whether a transaction failed on a transient
// condition worth retrying: serialization failure, deadlock, or a lock
// that could not be acquired.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

// sleepWithContext waits for d unless the context finishes first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
