// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const likeColumns = `id, post_id, user_email, is_synced, deleted_at`

// ToggleLike flips the like state for (postID, userEmail):
//
//   - no row yet: insert a new active like;
//   - active row: tombstone it;
//   - tombstoned row: resurrect it by clearing deleted_at.
//
// Resurrecting reuses the existing row, so at most one like per
// (post, user) ever exists from this path. Every branch clears is_synced.
func (s *Store) ToggleLike(ctx context.Context, postID, userEmail string) (*Like, error) {
	var result *Like
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		// Prefer the active row when replication left a tombstoned sibling behind.
		row := tx.QueryRowContext(ctx, `
			SELECT `+likeColumns+` FROM likes
			WHERE post_id = ? AND user_email = ?
			ORDER BY (deleted_at IS NULL) DESC
			LIMIT 1
		`, postID, userEmail)
		existing, err := scanLike(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up like: %w", err)
		}

		switch {
		case existing == nil:
			result = &Like{ID: NewID(), PostID: postID, UserEmail: userEmail}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO likes (id, post_id, user_email, is_synced)
				VALUES (?, ?, ?, 0)
			`, result.ID, result.PostID, result.UserEmail); err != nil {
				return fmt.Errorf("failed to insert like: %w", err)
			}

		case existing.IsDeleted():
			if _, err := tx.ExecContext(ctx,
				`UPDATE likes SET deleted_at = NULL, is_synced = 0 WHERE id = ?`,
				existing.ID); err != nil {
				return fmt.Errorf("failed to resurrect like: %w", err)
			}
			existing.DeletedAt = nil
			existing.IsSynced = false
			result = existing

		default:
			now := s.now()
			if _, err := tx.ExecContext(ctx,
				`UPDATE likes SET deleted_at = ?, is_synced = 0 WHERE id = ?`,
				formatTime(now), existing.ID); err != nil {
				return fmt.Errorf("failed to tombstone like: %w", err)
			}
			now = now.UTC()
			existing.DeletedAt = &now
			existing.IsSynced = false
			result = existing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(EntityLikes)
	return result, nil
}

// LikeByID returns the like with the given id, tombstoned or not.
func (s *Store) LikeByID(ctx context.Context, id string) (*Like, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+likeColumns+` FROM likes WHERE id = ?`, id)
	l, err := scanLike(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load like %s: %w", id, err)
	}
	return l, nil
}

// ActiveLikeCount returns the number of non-tombstoned likes on a post.
func (s *Store) ActiveLikeCount(ctx context.Context, postID string) (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM likes WHERE post_id = ? AND deleted_at IS NULL`,
		postID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// UnsyncedLikes returns every like the server has not acknowledged yet.
func (s *Store) UnsyncedLikes(ctx context.Context) ([]*Like, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryLikes(ctx, s.db, `SELECT `+likeColumns+` FROM likes WHERE is_synced = 0`)
}

// PushableLikes returns unsynced likes whose parent post is already synced.
// Children of unsynced posts are deferred so the server never sees a like
// before the post it belongs to.
func (s *Store) PushableLikes(ctx context.Context) ([]*Like, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryLikes(ctx, s.db, `
		SELECT l.id, l.post_id, l.user_email, l.is_synced, l.deleted_at
		FROM likes l
		JOIN posts p ON p.id = l.post_id
		WHERE l.is_synced = 0 AND p.is_synced = 1
	`)
}

// DeferredLikeCount counts unsynced likes still waiting on their parent.
func (s *Store) DeferredLikeCount(ctx context.Context) (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM likes l
		WHERE l.is_synced = 0
		  AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.id = l.post_id AND p.is_synced = 1)
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count deferred likes: %w", err)
	}
	return n, nil
}

// MarkLikesSynced flips the given likes to synced in one transaction.
func (s *Store) MarkLikesSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE likes SET is_synced = 1 WHERE id IN (`+placeholders(len(ids))+`)`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to mark likes synced: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityLikes)
	return nil
}

func queryLikes(ctx context.Context, q querier, query string, args ...any) ([]*Like, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	var likes []*Like
	for rows.Next() {
		l, err := scanLike(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likes = append(likes, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate likes: %w", err)
	}
	return likes, nil
}

func scanLike(rs rowScanner) (*Like, error) {
	var (
		l       Like
		synced  int64
		deleted sql.NullString
	)
	err := rs.Scan(&l.ID, &l.PostID, &l.UserEmail, &synced, &deleted)
	if err != nil {
		return nil, err
	}
	if l.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	l.IsSynced = synced != 0
	return &l, nil
}
