// Package feedstore implements the embedded SQLite store for the feed client:
// posts, likes and comments with their sync bookkeeping (synced flags,
// soft-delete tombstones, merge-base snapshots, sync watermark), plus the
// change bus that lets dependent views refresh on commit.
//
// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entity identifies one of the replicated record kinds.
type Entity string

const (
	EntityPosts    Entity = "posts"
	EntityLikes    Entity = "likes"
	EntityComments Entity = "comments"
)

// MediaType routes a post's attachment to the right bucket and key suffix.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Post is a feed entry authored on this device or replicated from the server.
// RemoteURL is set once media has been uploaded; LocalURI points at the
// on-device file for locally authored media.
type Post struct {
	ID           string
	Text         string
	Timestamp    time.Time
	MediaType    MediaType
	LocalURI     string
	RemoteURL    string
	ThumbnailURL string
	UserEmail    string
	IsSynced     bool
	DeletedAt    *time.Time
}

// IsDeleted reports whether the post carries a tombstone.
func (p *Post) IsDeleted() bool { return p.DeletedAt != nil }

// Like is a per-user reaction on a post. At most one like per
// (post, user) is active; unliking tombstones the row and liking again
// resurrects it instead of inserting a duplicate.
type Like struct {
	ID        string
	PostID    string
	UserEmail string
	IsSynced  bool
	DeletedAt *time.Time
}

// IsDeleted reports whether the like carries a tombstone.
func (l *Like) IsDeleted() bool { return l.DeletedAt != nil }

// Comment is a per-user reply on a post.
type Comment struct {
	ID        string
	PostID    string
	UserEmail string
	Text      string
	Timestamp time.Time
	IsSynced  bool
	DeletedAt *time.Time
}

// IsDeleted reports whether the comment carries a tombstone.
func (c *Comment) IsDeleted() bool { return c.DeletedAt != nil }

// Settings is the singleton row holding replication state shared across
// sync cycles.
type Settings struct {
	ID           string
	LastSyncTime time.Time
}

// NewID mints a record identifier. IDs are generated on the client and act
// as the primary key both locally and remotely, which is what makes every
// remote write an idempotent upsert.
func NewID() string {
	return uuid.New().String()
}

// timeFormat is fixed-width (millisecond precision, always UTC) so that
// stored values order correctly under SQLite's string comparison.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Older rows may carry RFC3339 values written before the fixed-width format.
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
