// Package feedserver is the authoritative half of feed replication: a
// Postgres-backed row store with idempotent upserts keyed on client-minted
// IDs, watermark reads over a server-maintained updated_at column, and the
// HTTP handlers and JWT auth that front it.
//
// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service applies sync uploads and serves incremental downloads.
//
// Every upload is an upsert: retrying a delivery converges on the same row.
// deleted_at is monotonic for posts and comments (a stale copy pushed after
// another device's delete cannot resurrect the row), while likes take the
// incoming value verbatim because un-liking and re-liking toggles the same
// row's tombstone by design.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewService creates a sync service backed by the given pool. The caller
// keeps ownership of the pool.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) (*Service, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger}, nil
}

// Close marks the service as shut down; in-flight calls finish, new calls fail.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Service) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("service is closed")
	}
	return nil
}

// UpsertPosts applies a batch of post rows in one transaction.
func (s *Service) UpsertPosts(ctx context.Context, rows []PostRow) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return s.withRetry(ctx, "upsert posts", func(tx pgx.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO posts (id, text, image_url, video_url, media_type, thumbnail_url, ts, user_email, deleted_at)
				VALUES (@id, @text, @image_url, @video_url, @media_type, @thumbnail_url, @ts, @user_email, @deleted_at)
				ON CONFLICT (id) DO UPDATE SET
					text          = EXCLUDED.text,
					image_url     = EXCLUDED.image_url,
					video_url     = EXCLUDED.video_url,
					media_type    = EXCLUDED.media_type,
					thumbnail_url = EXCLUDED.thumbnail_url,
					ts            = EXCLUDED.ts,
					user_email    = EXCLUDED.user_email,
					deleted_at    = COALESCE(posts.deleted_at, EXCLUDED.deleted_at)`,
				pgx.NamedArgs{
					"id":            r.ID,
					"text":          r.Text,
					"image_url":     r.ImageURL,
					"video_url":     r.VideoURL,
					"media_type":    r.MediaType,
					"thumbnail_url": r.ThumbnailURL,
					"ts":            r.Timestamp,
					"user_email":    r.UserEmail,
					"deleted_at":    r.DeletedAt,
				})
			if err != nil {
				return fmt.Errorf("failed to upsert post %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// UpsertLikes applies a batch of like rows in one transaction.
func (s *Service) UpsertLikes(ctx context.Context, rows []LikeRow) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return s.withRetry(ctx, "upsert likes", func(tx pgx.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO likes (id, post_id, user_email, deleted_at)
				VALUES (@id, @post_id, @user_email, @deleted_at)
				ON CONFLICT (id) DO UPDATE SET
					post_id    = EXCLUDED.post_id,
					user_email = EXCLUDED.user_email,
					deleted_at = EXCLUDED.deleted_at`,
				pgx.NamedArgs{
					"id":         r.ID,
					"post_id":    r.PostID,
					"user_email": r.UserEmail,
					"deleted_at": r.DeletedAt,
				})
			if err != nil {
				return fmt.Errorf("failed to upsert like %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// UpsertComments applies a batch of comment rows in one transaction.
func (s *Service) UpsertComments(ctx context.Context, rows []CommentRow) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return s.withRetry(ctx, "upsert comments", func(tx pgx.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO comments (id, post_id, user_email, text, created_at, deleted_at)
				VALUES (@id, @post_id, @user_email, @text, @created_at, @deleted_at)
				ON CONFLICT (id) DO UPDATE SET
					post_id    = EXCLUDED.post_id,
					user_email = EXCLUDED.user_email,
					text       = EXCLUDED.text,
					created_at = EXCLUDED.created_at,
					deleted_at = COALESCE(comments.deleted_at, EXCLUDED.deleted_at)`,
				pgx.NamedArgs{
					"id":         r.ID,
					"post_id":    r.PostID,
					"user_email": r.UserEmail,
					"text":       r.Text,
					"created_at": r.CreatedAt,
					"deleted_at": r.DeletedAt,
				})
			if err != nil {
				return fmt.Errorf("failed to upsert comment %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// PostsSince returns posts changed after the watermark, newest change first.
func (s *Service) PostsSince(ctx context.Context, after time.Time, limit int) ([]PostRow, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, image_url, video_url, media_type, thumbnail_url, ts, user_email, deleted_at, updated_at
		FROM posts
		WHERE updated_at > $1
		ORDER BY updated_at DESC
		LIMIT $2`, after, clampLimit(limit, DefaultPostLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var r PostRow
		if err := rows.Scan(&r.ID, &r.Text, &r.ImageURL, &r.VideoURL, &r.MediaType,
			&r.ThumbnailURL, &r.Timestamp, &r.UserEmail, &r.DeletedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LikesSince returns likes changed after the watermark, newest change first.
func (s *Service) LikesSince(ctx context.Context, after time.Time, limit int) ([]LikeRow, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, user_email, deleted_at, updated_at
		FROM likes
		WHERE updated_at > $1
		ORDER BY updated_at DESC
		LIMIT $2`, after, clampLimit(limit, DefaultChildLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	var out []LikeRow
	for rows.Next() {
		var r LikeRow
		if err := rows.Scan(&r.ID, &r.PostID, &r.UserEmail, &r.DeletedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CommentsSince returns comments changed after the watermark, newest change first.
func (s *Service) CommentsSince(ctx context.Context, after time.Time, limit int) ([]CommentRow, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, user_email, text, created_at, deleted_at, updated_at
		FROM comments
		WHERE updated_at > $1
		ORDER BY updated_at DESC
		LIMIT $2`, after, clampLimit(limit, DefaultChildLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var out []CommentRow
	for rows.Next() {
		var r CommentRow
		if err := rows.Scan(&r.ID, &r.PostID, &r.UserEmail, &r.Text, &r.CreatedAt,
			&r.DeletedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneTombstones hard-deletes rows tombstoned before the horizon, across
// all three tables, and returns the number removed. Every replica has had
// the whole retention window to observe the tombstone.
func (s *Service) PruneTombstones(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	var total int64
	err := s.withRetry(ctx, "prune tombstones", func(tx pgx.Tx) error {
		total = 0
		for _, table := range []string{"comments", "likes", "posts"} {
			tag, err := tx.Exec(ctx,
				`DELETE FROM `+table+` WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
				olderThan)
			if err != nil {
				return fmt.Errorf("failed to prune %s: %w", table, err)
			}
			total += tag.RowsAffected()
		}
		return nil
	})
	return total, err
}

// withRetry runs fn in a transaction, retrying transient failures with a
// short linear backoff.
func (s *Service) withRetry(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 3
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = pgx.BeginFunc(ctx, s.pool, fn)
		if err == nil {
			return nil
		}
		if !isRetryableTxError(err) || attempt == maxAttempts {
			break
		}
		s.logger.Warn("transient transaction error, retrying",
			"op", op, "attempt", attempt, "error", err)
		if serr := sleepWithContext(ctx, time.Duration(attempt)*50*time.Millisecond); serr != nil {
			return serr
		}
	}
	return err
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 || limit > MaxFetchLimit {
		return fallback
	}
	return limit
}
