// Package feedsync implements the client half of feed replication: pushing
// locally authored posts, likes and comments (with their media) to the sync
// server, pulling remote changes down into the embedded store, and pruning
// old tombstones so the device database stays bounded.
//
// The engine is crash-safe by construction: every remote write is an
// idempotent upsert keyed on a client-minted ID, local rows flip to synced
// only after the server acknowledged them, and the pull watermark advances
// in the same transaction that applies the fetched rows. A cycle that dies
// halfway simply redoes work on the next run.
//
// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketfeed/go-feedsync/feedstore"
)

const (
	// DefaultPostPageSize is the pull window for posts.
	DefaultPostPageSize = 20

	// DefaultChildPageSize is the pull window for likes and comments.
	DefaultChildPageSize = 100

	// DefaultRetention is how long synced tombstones are kept before the
	// prune pass garbage-collects them.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultMaxPosts caps the number of active posts retained locally.
	DefaultMaxPosts = 500
)

// Config tunes an Engine. The zero value of any field falls back to the
// package default.
type Config struct {
	// DocumentsDir anchors relative media URIs recorded on posts.
	DocumentsDir string

	// PostPageSize and ChildPageSize bound one pull's fetch windows.
	PostPageSize  int
	ChildPageSize int

	// Retention and MaxPosts bound the local dataset during Prune.
	Retention time.Duration
	MaxPosts  int

	// MaxRetries and RetryBase shape the per-operation backoff schedule.
	MaxRetries int
	RetryBase  time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultConfig returns a Config with stock settings for the given
// documents directory.
func DefaultConfig(documentsDir string) *Config {
	return &Config{DocumentsDir: documentsDir}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.PostPageSize <= 0 {
		out.PostPageSize = DefaultPostPageSize
	}
	if out.ChildPageSize <= 0 {
		out.ChildPageSize = DefaultChildPageSize
	}
	if out.Retention <= 0 {
		out.Retention = DefaultRetention
	}
	if out.MaxPosts <= 0 {
		out.MaxPosts = DefaultMaxPosts
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.RetryBase <= 0 {
		out.RetryBase = DefaultRetryBase
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// Engine runs sync cycles against one remote store. It holds no reference
// to a local store; callers pass one per call, which lets the background
// path open a short-lived store of its own.
//
// Push, Pull and Prune deliberately return nothing: replication failures
// are logged and retried on a later cycle, never surfaced to UI flows.
type Engine struct {
	remote   RemoteStore
	uploader *MediaUploader
	retrier  *Retrier
	cfg      *Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine wires an engine over the given remote store and media bucket.
func NewEngine(remote RemoteStore, bucket BucketClient, cfg *Config) (*Engine, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote store must be provided")
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket client must be provided")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	c := cfg.withDefaults()

	retrier := NewRetrier(c.MaxRetries, c.RetryBase, c.Logger)
	paths := &PathResolver{DocumentsDir: c.DocumentsDir}

	return &Engine{
		remote:   remote,
		uploader: NewMediaUploader(bucket, paths, retrier, c.Logger),
		retrier:  retrier,
		cfg:      c,
		logger:   c.Logger,
		now:      c.Now,
	}, nil
}

// logStoreError reports a local store failure. A store closed mid-cycle is
// an ordinary shutdown race (the app closed the DB while a background cycle
// was running), so it aborts quietly.
func (e *Engine) logStoreError(op string, err error) {
	if errors.Is(err, feedstore.ErrClosed) {
		e.logger.Debug("store closed mid-cycle, aborting", "op", op)
		return
	}
	e.logger.Warn("local store operation failed", "op", op, "error", err)
}
