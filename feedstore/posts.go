// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const postColumns = `id, text, timestamp, media_type, local_uri, remote_url, thumbnail_url, user_email, is_synced, deleted_at`

// NewPost carries the caller-supplied fields for CreatePost. A zero ID is
// minted and a zero Timestamp defaults to the store clock.
type NewPost struct {
	ID           string
	Text         string
	MediaType    MediaType
	LocalURI     string
	ThumbnailURL string
	UserEmail    string
	Timestamp    time.Time
}

// CreatePost inserts a locally authored post. The row starts unsynced; the
// push pipeline picks it up on the next cycle.
func (s *Store) CreatePost(ctx context.Context, np NewPost) (*Post, error) {
	p := &Post{
		ID:           np.ID,
		Text:         np.Text,
		Timestamp:    np.Timestamp,
		MediaType:    np.MediaType,
		LocalURI:     np.LocalURI,
		ThumbnailURL: np.ThumbnailURL,
		UserEmail:    np.UserEmail,
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.MediaType == "" {
		p.MediaType = MediaImage
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}
	p.Timestamp = p.Timestamp.UTC()

	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, text, timestamp, media_type, local_uri, remote_url, thumbnail_url, user_email, is_synced)
			VALUES (?, ?, ?, ?, ?, '', ?, ?, 0)
		`, p.ID, p.Text, formatTime(p.Timestamp), string(p.MediaType), p.LocalURI, p.ThumbnailURL, p.UserEmail)
		if err != nil {
			return fmt.Errorf("failed to insert post: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(EntityPosts)
	return p, nil
}

// PostByID returns the post with the given id, tombstoned or not.
func (s *Store) PostByID(ctx context.Context, id string) (*Post, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return postByID(ctx, s.db, id)
}

func postByID(ctx context.Context, q querier, id string) (*Post, error) {
	row := q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %s: %w", id, err)
	}
	return p, nil
}

// ActivePosts returns non-tombstoned posts, newest first. A non-positive
// limit returns all of them.
func (s *Store) ActivePosts(ctx context.Context, limit int) ([]*Post, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE deleted_at IS NULL ORDER BY timestamp DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryPosts(ctx, s.db, query, args...)
}

// UnsyncedPosts returns every post the server has not acknowledged yet,
// oldest first.
func (s *Store) UnsyncedPosts(ctx context.Context) ([]*Post, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	return queryPosts(ctx, s.db,
		`SELECT `+postColumns+` FROM posts WHERE is_synced = 0 ORDER BY timestamp ASC`)
}

// EditPostText replaces the post's text. The mutation clears is_synced and
// bumps the local modification time in the same transaction; if the row was
// synced, its pre-edit field values are snapshotted as the merge base.
func (s *Store) EditPostText(ctx context.Context, id, text string) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		p, err := postByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.IsSynced {
			if err := snapshotBase(ctx, tx, EntityPosts, p.ID, p.Text, p.RemoteURL, s.now()); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE posts SET text = ?, timestamp = ?, is_synced = 0 WHERE id = ?`,
			text, formatTime(s.now()), id)
		if err != nil {
			return fmt.Errorf("failed to update post text: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityPosts)
	return nil
}

// SoftDeletePost tombstones the post. Already-tombstoned posts are left
// untouched so deleted_at stays monotonic.
func (s *Store) SoftDeletePost(ctx context.Context, id string) error {
	changed := false
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		p, err := postByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.IsDeleted() {
			return nil
		}
		if p.IsSynced {
			if err := snapshotBase(ctx, tx, EntityPosts, p.ID, p.Text, p.RemoteURL, s.now()); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE posts SET deleted_at = ?, is_synced = 0 WHERE id = ?`,
			formatTime(s.now()), id)
		if err != nil {
			return fmt.Errorf("failed to tombstone post: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		s.bus.Publish(EntityPosts)
	}
	return nil
}

// SetPostRemoteURL records the uploaded media URL. This is a sync-internal
// write: it intentionally leaves is_synced and the merge base alone, since
// the metadata upsert that follows is what acknowledges the row.
func (s *Store) SetPostRemoteURL(ctx context.Context, id, remoteURL string) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE posts SET remote_url = ? WHERE id = ?`, remoteURL, id)
		if err != nil {
			return fmt.Errorf("failed to set remote url: %w", err)
		}
		return requireRow(res)
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityPosts)
	return nil
}

// MarkPostSynced flips the post to synced and drops its merge base.
func (s *Store) MarkPostSynced(ctx context.Context, id string) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE posts SET is_synced = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to mark post synced: %w", err)
		}
		if err := requireRow(res); err != nil {
			return err
		}
		return deleteBase(ctx, tx, EntityPosts, id)
	})
	if err != nil {
		return err
	}
	s.bus.Publish(EntityPosts)
	return nil
}

func queryPosts(ctx context.Context, q querier, query string, args ...any) ([]*Post, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(rs rowScanner) (*Post, error) {
	var (
		p         Post
		ts        string
		mediaType string
		synced    int64
		deleted   sql.NullString
	)
	err := rs.Scan(&p.ID, &p.Text, &ts, &mediaType, &p.LocalURI, &p.RemoteURL,
		&p.ThumbnailURL, &p.UserEmail, &synced, &deleted)
	if err != nil {
		return nil, err
	}
	if p.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if p.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	p.MediaType = MediaType(mediaType)
	p.IsSynced = synced != 0
	return &p, nil
}

// requireRow converts a zero-row UPDATE into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
