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

// RemotePost is a server post row as handed to MergeRemote. RemoteURL is the
// single media URL the caller already picked from the wire's video/image
// pair; UpdatedAt is the server-maintained conflict clock.
type RemotePost struct {
	ID           string
	Text         string
	RemoteURL    string
	MediaType    MediaType
	ThumbnailURL string
	UserEmail    string
	Timestamp    time.Time
	DeletedAt    *time.Time
	UpdatedAt    time.Time
}

// RemoteLike is a server like row. Likes have no conflict surface, so only
// identity and tombstone state matter.
type RemoteLike struct {
	ID        string
	PostID    string
	UserEmail string
	DeletedAt *time.Time
}

// RemoteComment is a server comment row.
type RemoteComment struct {
	ID        string
	PostID    string
	UserEmail string
	Text      string
	CreatedAt time.Time
	DeletedAt *time.Time
	UpdatedAt time.Time
}

// MergeRemote applies one pull window in a single transaction and advances
// the watermark with it, so a crash mid-merge re-reads from the old
// watermark instead of dropping rows.
//
// Per post:
//   - unknown id: insert as synced (the server copy is authoritative);
//   - known and synced: last-write-wins on the server's updated_at against
//     the local modification time;
//   - known and unsynced: field-level merge of text and media URL against
//     the snapshot taken when the row last left the synced state, then the
//     row is marked synced. Locally tombstoned rows are left alone so the
//     pending delete survives until pushed.
//
// Likes are insert-if-absent. Comments merge like posts with text as the
// only merged field.
func (s *Store) MergeRemote(ctx context.Context, posts []RemotePost, likes []RemoteLike, comments []RemoteComment, syncedAt time.Time) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		for i := range posts {
			if err := mergePost(ctx, tx, &posts[i]); err != nil {
				return err
			}
		}
		for i := range likes {
			if err := mergeLike(ctx, tx, &likes[i]); err != nil {
				return err
			}
		}
		for i := range comments {
			if err := mergeComment(ctx, tx, &comments[i]); err != nil {
				return err
			}
		}
		return advanceWatermark(ctx, tx, syncedAt)
	})
	if err != nil {
		return err
	}

	if len(posts) > 0 {
		s.bus.Publish(EntityPosts)
	}
	if len(likes) > 0 {
		s.bus.Publish(EntityLikes)
	}
	if len(comments) > 0 {
		s.bus.Publish(EntityComments)
	}
	return nil
}

func mergePost(ctx context.Context, tx *sql.Tx, rp *RemotePost) error {
	local, err := postByID(ctx, tx, rp.ID)
	if errors.Is(err, ErrNotFound) {
		mediaType := rp.MediaType
		if mediaType == "" {
			mediaType = MediaImage
		}
		userEmail := rp.UserEmail
		if userEmail == "" {
			userEmail = "anon"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, text, timestamp, media_type, local_uri, remote_url, thumbnail_url, user_email, is_synced, deleted_at)
			VALUES (?, ?, ?, ?, '', ?, ?, ?, 1, ?)
		`, rp.ID, rp.Text, formatTime(rp.Timestamp), string(mediaType),
			rp.RemoteURL, rp.ThumbnailURL, userEmail, formatNullTime(rp.DeletedAt))
		if err != nil {
			return fmt.Errorf("failed to insert pulled post %s: %w", rp.ID, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if local.IsSynced {
		if !rp.UpdatedAt.After(local.Timestamp) {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE posts SET text = ?, remote_url = ?, timestamp = ?, deleted_at = ? WHERE id = ?
		`, rp.Text, rp.RemoteURL, formatTime(rp.Timestamp), formatNullTime(rp.DeletedAt), rp.ID)
		if err != nil {
			return fmt.Errorf("failed to apply remote post %s: %w", rp.ID, err)
		}
		return nil
	}

	// Unsynced local edits. A pending local delete wins until it is pushed.
	if local.IsDeleted() {
		return nil
	}

	base, hasBase, err := lookupBase(ctx, tx, EntityPosts, rp.ID)
	if err != nil {
		return err
	}
	remoteNewer := rp.UpdatedAt.After(local.Timestamp)
	text := mergeField(local.Text, rp.Text, base.text, hasBase, remoteNewer)
	remoteURL := mergeField(local.RemoteURL, rp.RemoteURL, base.remoteURL, hasBase, remoteNewer)

	_, err = tx.ExecContext(ctx,
		`UPDATE posts SET text = ?, remote_url = ?, is_synced = 1 WHERE id = ?`,
		text, remoteURL, rp.ID)
	if err != nil {
		return fmt.Errorf("failed to merge post %s: %w", rp.ID, err)
	}
	return deleteBase(ctx, tx, EntityPosts, rp.ID)
}

func mergeLike(ctx context.Context, tx *sql.Tx, rl *RemoteLike) error {
	// OR IGNORE also skips remote rows that would collide with a different
	// local active like for the same (post, user); the local one wins until
	// it is pushed.
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO likes (id, post_id, user_email, is_synced, deleted_at)
		VALUES (?, ?, ?, 1, ?)
	`, rl.ID, rl.PostID, rl.UserEmail, formatNullTime(rl.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pulled like %s: %w", rl.ID, err)
	}
	return nil
}

func mergeComment(ctx context.Context, tx *sql.Tx, rc *RemoteComment) error {
	local, err := commentByID(ctx, tx, rc.ID)
	if errors.Is(err, ErrNotFound) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, post_id, user_email, text, timestamp, is_synced, deleted_at)
			VALUES (?, ?, ?, ?, ?, 1, ?)
		`, rc.ID, rc.PostID, rc.UserEmail, rc.Text, formatTime(rc.CreatedAt), formatNullTime(rc.DeletedAt))
		if err != nil {
			return fmt.Errorf("failed to insert pulled comment %s: %w", rc.ID, err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if local.IsSynced {
		if !rc.UpdatedAt.After(local.Timestamp) {
			return nil
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE comments SET text = ?, timestamp = ?, deleted_at = ? WHERE id = ?
		`, rc.Text, formatTime(rc.CreatedAt), formatNullTime(rc.DeletedAt), rc.ID)
		if err != nil {
			return fmt.Errorf("failed to apply remote comment %s: %w", rc.ID, err)
		}
		return nil
	}

	if local.IsDeleted() {
		return nil
	}

	base, hasBase, err := lookupBase(ctx, tx, EntityComments, rc.ID)
	if err != nil {
		return err
	}
	remoteNewer := rc.UpdatedAt.After(local.Timestamp)
	text := mergeField(local.Text, rc.Text, base.text, hasBase, remoteNewer)

	_, err = tx.ExecContext(ctx,
		`UPDATE comments SET text = ?, is_synced = 1 WHERE id = ?`,
		text, rc.ID)
	if err != nil {
		return fmt.Errorf("failed to merge comment %s: %w", rc.ID, err)
	}
	return deleteBase(ctx, tx, EntityComments, rc.ID)
}

// mergeField resolves one scalar field against the last-synced base value:
// take whichever side diverged from the base, falling back to last-write-wins
// when both did. A missing base means the row never went through a
// synced-to-unsynced edge and both sides count as changed.
func mergeField(localV, remoteV, baseV string, hasBase, remoteNewer bool) string {
	if !hasBase {
		if remoteNewer {
			return remoteV
		}
		return localV
	}
	localChanged := localV != baseV
	remoteChanged := remoteV != baseV
	switch {
	case remoteChanged && !localChanged:
		return remoteV
	case localChanged && !remoteChanged:
		return localV
	case localChanged && remoteChanged:
		if remoteNewer {
			return remoteV
		}
		return localV
	default:
		return localV
	}
}

type mergeBase struct {
	text      string
	remoteURL string
}

// snapshotBase records the row's last-synced field values. Only the first
// snapshot after a synced-to-unsynced edge is kept; later local edits keep
// diverging from the same base.
func snapshotBase(ctx context.Context, tx *sql.Tx, kind Entity, id, text, remoteURL string, takenAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_base (kind, id, text, remote_url, taken_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO NOTHING
	`, string(kind), id, text, remoteURL, formatTime(takenAt))
	if err != nil {
		return fmt.Errorf("failed to snapshot merge base: %w", err)
	}
	return nil
}

func lookupBase(ctx context.Context, tx *sql.Tx, kind Entity, id string) (mergeBase, bool, error) {
	var b mergeBase
	err := tx.QueryRowContext(ctx,
		`SELECT text, remote_url FROM sync_base WHERE kind = ? AND id = ?`,
		string(kind), id).Scan(&b.text, &b.remoteURL)
	if errors.Is(err, sql.ErrNoRows) {
		return mergeBase{}, false, nil
	}
	if err != nil {
		return mergeBase{}, false, fmt.Errorf("failed to load merge base: %w", err)
	}
	return b, true, nil
}

func deleteBase(ctx context.Context, tx *sql.Tx, kind Entity, id string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM sync_base WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to drop merge base: %w", err)
	}
	return nil
}
