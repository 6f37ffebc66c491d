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

const commentColumns = `id, post_id, user_email, text, timestamp, is_synced, deleted_at`

// NewComment carries the caller-supplied fields for AddComment.
type NewComment struct {
	ID        string
	PostID    string
	UserEmail string
	Text      string
	Timestamp time.Time
}

// AddComment inserts a locally authored comment, unsynced.
func (s *Store) AddComment(ctx context.Context, nc NewComment) (*Comment, error) {
	c := &Comment{
		ID:        nc.ID,
		PostID:    nc.PostID,
		UserEmail: nc.UserEmail,
		Text:      nc.Text,
		Timestamp: nc.Timestamp,
	}
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = s.now()
	}
	c.Timestamp = c.Timestamp.UTC()

	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, post_id, user_email, text, timestamp, is_synced)
			VALUES (?, ?, ?, ?, ?, 0)
		`, c.ID, c.PostID, c.UserEmail, c.Text, formatTime(c.Timestamp))
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(EntityComments)
	return c, nil
}

// CommentByID returns the comment with the given id, tombstoned or not.
func (s *Store) CommentByID(ctx context.Context, id string) (*Comment, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return commentByID(ctx, s.db, id)
}

func commentByID(ctx context.Context, q querier, id string) (*Comment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment %s: %w", id, err)
	}
	return c, nil
}

// CommentsForPost returns the post's non-tombstoned comments, oldest first.
func (s *Store) CommentsForPost(ctx context.Context, postID string) ([]*Comment, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryComments(ctx, s.db, `
		SELECT `+commentColumns+` FROM comments
		WHERE post_id = ? AND deleted_at IS NULL
		ORDER BY timestamp ASC
	`, postID)
}

// UnsyncedComments returns every comment the server has not acknowledged yet.
func (s *Store) UnsyncedComments(ctx context.Context) ([]*Comment, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryComments(ctx, s.db,
		`SELECT `+commentColumns+` FROM comments WHERE is_synced = 0`)
}

// PushableComments returns unsynced comments whose parent post is synced.
func (s *Store) PushableComments(ctx context.Context) ([]*Comment, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryComments(ctx, s.db, `
		SELECT c.id, c.post_id, c.user_email, c.text, c.timestamp, c.is_synced, c.deleted_at
		FROM comments c
		JOIN posts p ON p.id = c.post_id
		WHERE c.is_synced = 0 AND p.is_synced = 1
	`)
}

// DeferredCommentCount counts unsynced comments still waiting on their parent.
func (s *Store) DeferredCommentCount(ctx context.Context) (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM comments c
		WHERE c.is_synced = 0
		  AND NOT EXISTS (SELECT 1 FROM posts p WHERE p.id = c.post_id AND p.is_synced = 1)
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count deferred comments: %w", err)
	}
	return n, nil
}

// EditCommentText replaces the comment's text, clearing is_synced and
// snapshotting the merge base when the row was synced.
func (s *Store) EditCommentText(ctx context.Context, id, text string) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		c, err := commentByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.IsSynced {
			if err := snapshotBase(ctx, tx, EntityComments, c.ID, c.Text, "", s.now()); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE comments SET text = ?, timestamp = ?, is_synced = 0 WHERE id = ?`,
			text, formatTime(s.now()), id)
		if err != nil {
			return fmt.Errorf("failed to update comment text: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityComments)
	return nil
}

// SoftDeleteComment tombstones the comment. Already-tombstoned comments are
// left untouched.
func (s *Store) SoftDeleteComment(ctx context.Context, id string) error {
	changed := false
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		c, err := commentByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.IsDeleted() {
			return nil
		}
		if c.IsSynced {
			if err := snapshotBase(ctx, tx, EntityComments, c.ID, c.Text, "", s.now()); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE comments SET deleted_at = ?, is_synced = 0 WHERE id = ?`,
			formatTime(s.now()), id)
		if err != nil {
			return fmt.Errorf("failed to tombstone comment: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.bus.Publish(EntityComments)
	}
	return nil
}

// MarkCommentsSynced flips the given comments to synced in one transaction
// and drops their merge bases.
func (s *Store) MarkCommentsSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE comments SET is_synced = 1 WHERE id IN (`+placeholders(len(ids))+`)`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to mark comments synced: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM sync_base WHERE kind = ? AND id IN (`+placeholders(len(ids))+`)`,
			append([]any{string(EntityComments)}, args...)...)
		if err != nil {
			return fmt.Errorf("failed to drop comment merge bases: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityComments)
	return nil
}

func queryComments(ctx context.Context, q querier, query string, args ...any) ([]*Comment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

func scanComment(rs rowScanner) (*Comment, error) {
	var (
		c       Comment
		ts      string
		synced  int64
		deleted sql.NullString
	)
	err := rs.Scan(&c.ID, &c.PostID, &c.UserEmail, &c.Text, &ts, &synced, &deleted)
	if err != nil {
		return nil, err
	}
	if c.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if c.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	c.IsSynced = synced != 0
	return &c, nil
}
