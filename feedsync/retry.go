// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// DefaultMaxRetries is how many times a failed remote operation is
	// retried within one sync cycle before it is left for the next cycle.
	DefaultMaxRetries = 3

	// DefaultRetryBase is the delay before the first retry; each further
	// retry doubles it (2s, 4s, 8s with the defaults).
	DefaultRetryBase = 2 * time.Second
)

// Retrier runs remote operations with exponential backoff. Every error is
// treated as transient: a failure that survives all retries is logged and
// reported as !ok, never propagated, so one bad record or a flaky network
// cannot take down a sync cycle.
type Retrier struct {
	maxRetries uint64
	base       time.Duration
	logger     *slog.Logger
}

// NewRetrier returns a Retrier with the given schedule. Non-positive
// arguments fall back to the defaults.
func NewRetrier(maxRetries int, base time.Duration, logger *slog.Logger) *Retrier {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if base <= 0 {
		base = DefaultRetryBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{maxRetries: uint64(maxRetries), base: base, logger: logger}
}

// Do runs op, retrying on any error, and reports whether it eventually
// succeeded. Context cancellation stops the schedule early.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) bool {
	attempts := 0
	b := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		if err := op(ctx); err != nil {
			r.logger.Debug("sync operation attempt failed",
				"op", name, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("sync operation failed, leaving for next cycle",
			"op", name, "attempts", attempts, "error", err)
		return false
	}
	return true
}
