// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PruneStats reports what one retention pass removed.
type PruneStats struct {
	TombstonesRemoved int64
	PostsEvicted      int64
	OrphansRemoved    int64
}

// Prune runs the retention pass in one transaction, in order:
//
//  1. hard-delete synced tombstones older than the retention window;
//  2. cap active synced posts at maxPosts, evicting the oldest;
//  3. sweep likes and comments whose parent post no longer exists.
//
// The order matters: children of posts removed by steps 1-2 are caught by
// step 3 in the same pass. Unsynced tombstones are never reaped here; the
// server has not seen the delete yet.
func (s *Store) Prune(ctx context.Context, now time.Time, retention time.Duration, maxPosts int) (PruneStats, error) {
	var stats PruneStats
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		cutoff := formatTime(now.Add(-retention))

		for _, table := range []string{"posts", "likes", "comments"} {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE deleted_at IS NOT NULL AND deleted_at < ? AND is_synced = 1`,
				cutoff)
			if err != nil {
				return fmt.Errorf("failed to reap %s tombstones: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			stats.TombstonesRemoved += n
		}

		var active int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM posts WHERE deleted_at IS NULL AND is_synced = 1`).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to count active posts: %w", err)
		}
		if maxPosts > 0 && active > maxPosts {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM posts WHERE id IN (
					SELECT id FROM posts
					WHERE deleted_at IS NULL AND is_synced = 1
					ORDER BY timestamp ASC
					LIMIT ?
				)
			`, active-maxPosts)
			if err != nil {
				return fmt.Errorf("failed to evict posts over cap: %w", err)
			}
			if stats.PostsEvicted, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
		}

		for _, table := range []string{"likes", "comments"} {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE post_id NOT IN (SELECT id FROM posts)`)
			if err != nil {
				return fmt.Errorf("failed to sweep orphaned %s: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			stats.OrphansRemoved += n
		}

		// Merge bases of hard-deleted rows have nothing left to merge against.
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sync_base
			WHERE (kind = ? AND id NOT IN (SELECT id FROM posts))
			   OR (kind = ? AND id NOT IN (SELECT id FROM comments))
		`, string(EntityPosts), string(EntityComments))
		if err != nil {
			return fmt.Errorf("failed to clean merge bases: %w", err)
		}
		return nil
	})
	if err != nil {
		return PruneStats{}, err
	}

	if stats.TombstonesRemoved > 0 || stats.PostsEvicted > 0 {
		s.bus.Publish(EntityPosts)
	}
	if stats.TombstonesRemoved > 0 || stats.OrphansRemoved > 0 {
		s.bus.Publish(EntityLikes)
		s.bus.Publish(EntityComments)
	}
	return stats, nil
}
