// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the store's current schema, tracked via PRAGMA user_version.
const SchemaVersion = 7

// migrations[i] brings a database at user_version i to user_version i+1.
// Statements within one step run in a single transaction.
var migrations = [][]string{
	// v1: posts
	{
		`CREATE TABLE IF NOT EXISTS posts (
			id            TEXT PRIMARY KEY,
			text          TEXT NOT NULL DEFAULT '',
			timestamp     TEXT NOT NULL,
			media_type    TEXT NOT NULL DEFAULT 'image',
			local_uri     TEXT NOT NULL DEFAULT '',
			remote_url    TEXT NOT NULL DEFAULT '',
			user_email    TEXT NOT NULL DEFAULT '',
			is_synced     INTEGER NOT NULL DEFAULT 0
		)`,
	},

	// v2: likes, one active row per (post, user)
	{
		`CREATE TABLE IF NOT EXISTS likes (
			id            TEXT PRIMARY KEY,
			post_id       TEXT NOT NULL,
			user_email    TEXT NOT NULL,
			is_synced     INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_likes_post_user ON likes(post_id, user_email)`,
	},

	// v3: comments
	{
		`CREATE TABLE IF NOT EXISTS comments (
			id            TEXT PRIMARY KEY,
			post_id       TEXT NOT NULL,
			user_email    TEXT NOT NULL,
			text          TEXT NOT NULL DEFAULT '',
			timestamp     TEXT NOT NULL,
			is_synced     INTEGER NOT NULL DEFAULT 0
		)`,
	},

	// v4: replication watermark singleton
	{
		`CREATE TABLE IF NOT EXISTS system_settings (
			id             TEXT PRIMARY KEY,
			last_sync_time TEXT NOT NULL
		)`,
	},

	// v5: post thumbnails
	{
		`ALTER TABLE posts ADD COLUMN thumbnail_url TEXT NOT NULL DEFAULT ''`,
	},

	// v6: soft-delete tombstones. The like uniqueness constraint narrows to
	// active rows; tombstoned likes stay behind until pruned without blocking
	// a later like from the same user.
	{
		`ALTER TABLE posts ADD COLUMN deleted_at TEXT`,
		`ALTER TABLE likes ADD COLUMN deleted_at TEXT`,
		`ALTER TABLE comments ADD COLUMN deleted_at TEXT`,
		`DROP INDEX IF EXISTS idx_likes_post_user`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_likes_active_post_user
			ON likes(post_id, user_email) WHERE deleted_at IS NULL`,
	},

	// v7: merge-base snapshots for field-level conflict resolution, plus the
	// lookup indexes the push and prune queries lean on.
	{
		`CREATE TABLE IF NOT EXISTS sync_base (
			kind       TEXT NOT NULL,
			id         TEXT NOT NULL,
			text       TEXT NOT NULL DEFAULT '',
			remote_url TEXT NOT NULL DEFAULT '',
			taken_at   TEXT NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_unsynced ON posts(is_synced)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_deleted ON posts(deleted_at) WHERE deleted_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_likes_post ON likes(post_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id)`,
	},
}

// migrate applies every pending schema step, bumping user_version as it goes.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read user_version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	for ; version < len(migrations); version++ {
		if err := applyMigration(db, version); err != nil {
			return fmt.Errorf("migration to v%d failed: %w", version+1, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range migrations[from] {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to exec migration statement: %w", err)
		}
	}
	// PRAGMA cannot be parameterized; the value is a trusted constant.
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, from+1)); err != nil {
		return fmt.Errorf("failed to bump user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true
	return nil
}
