// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"time"

	"github.com/pocketfeed/go-feedsync/feedserver"
	"github.com/pocketfeed/go-feedsync/feedstore"
)

// Push uploads every unsynced local change, parents before children:
// posts first, then likes, then comments. Likes and comments whose parent
// post has not been pushed yet are deferred to a later cycle, so the server
// never sees a child without its post.
//
// Failure isolation differs by phase. Posts are pushed one at a time and a
// failed post (media or metadata) only skips that post. Likes and comments
// go up in batches; a failed batch aborts that phase for the cycle but the
// following phase still runs.
func (e *Engine) Push(ctx context.Context, store *feedstore.Store) {
	if store == nil || store.Closed() {
		return
	}
	start := e.now()

	posts := e.pushPosts(ctx, store)
	likes := e.pushLikes(ctx, store)
	comments := e.pushComments(ctx, store)

	if posts+likes+comments > 0 {
		e.logger.Info("push cycle complete",
			"posts", posts, "likes", likes, "comments", comments,
			"elapsed", time.Since(start))
	}
}

// pushPosts returns how many posts reached the server this cycle.
func (e *Engine) pushPosts(ctx context.Context, store *feedstore.Store) int {
	posts, err := store.UnsyncedPosts(ctx)
	if err != nil {
		e.logStoreError("list unsynced posts", err)
		return 0
	}

	pushed := 0
	for _, p := range posts {
		if ctx.Err() != nil {
			return pushed
		}
		if e.pushPost(ctx, store, p) {
			pushed++
		}
	}
	return pushed
}

// pushPost uploads one post: media object first (when the post has local
// media that was never uploaded), then the metadata row. The remote URL is
// recorded on the local row before the metadata upsert so a crash between
// the two never re-uploads the object.
func (e *Engine) pushPost(ctx context.Context, store *feedstore.Store, p *feedstore.Post) bool {
	remoteURL := p.RemoteURL
	if p.LocalURI != "" && remoteURL == "" {
		url, ok := e.uploader.Upload(ctx, p)
		if !ok {
			return false
		}
		if err := store.SetPostRemoteURL(ctx, p.ID, url); err != nil {
			e.logStoreError("record media url", err)
			return false
		}
		remoteURL = url
	}

	row := postRow(p, remoteURL)
	ok := e.retrier.Do(ctx, "upsert post "+p.ID, func(ctx context.Context) error {
		return e.remote.UpsertPost(ctx, row)
	})
	if !ok {
		return false
	}

	if err := store.MarkPostSynced(ctx, p.ID); err != nil {
		e.logStoreError("mark post synced", err)
		return false
	}
	return true
}

// pushLikes returns how many likes reached the server this cycle.
func (e *Engine) pushLikes(ctx context.Context, store *feedstore.Store) int {
	likes, err := store.PushableLikes(ctx)
	if err != nil {
		e.logStoreError("list pushable likes", err)
		return 0
	}
	if deferred, err := store.DeferredLikeCount(ctx); err == nil && deferred > 0 {
		e.logger.Debug("likes waiting on unsynced parent posts", "count", deferred)
	}
	if len(likes) == 0 {
		return 0
	}

	var deletes, inserts []feedserver.LikeRow
	for _, l := range likes {
		if l.IsDeleted() {
			deletes = append(deletes, likeRow(l))
		} else {
			inserts = append(inserts, likeRow(l))
		}
	}

	pushed := 0
	for _, batch := range [][]feedserver.LikeRow{deletes, inserts} {
		if len(batch) == 0 {
			continue
		}
		ok := e.retrier.Do(ctx, "upsert likes", func(ctx context.Context) error {
			return e.remote.UpsertLikes(ctx, batch)
		})
		if !ok {
			return pushed
		}
		if err := store.MarkLikesSynced(ctx, rowIDs(batch, func(r feedserver.LikeRow) string { return r.ID })); err != nil {
			e.logStoreError("mark likes synced", err)
			return pushed
		}
		pushed += len(batch)
	}
	return pushed
}

// pushComments returns how many comments reached the server this cycle.
func (e *Engine) pushComments(ctx context.Context, store *feedstore.Store) int {
	comments, err := store.PushableComments(ctx)
	if err != nil {
		e.logStoreError("list pushable comments", err)
		return 0
	}
	if deferred, err := store.DeferredCommentCount(ctx); err == nil && deferred > 0 {
		e.logger.Debug("comments waiting on unsynced parent posts", "count", deferred)
	}
	if len(comments) == 0 {
		return 0
	}

	var deletes, inserts []feedserver.CommentRow
	for _, c := range comments {
		if c.IsDeleted() {
			deletes = append(deletes, commentRow(c))
		} else {
			inserts = append(inserts, commentRow(c))
		}
	}

	pushed := 0
	for _, batch := range [][]feedserver.CommentRow{deletes, inserts} {
		if len(batch) == 0 {
			continue
		}
		ok := e.retrier.Do(ctx, "upsert comments", func(ctx context.Context) error {
			return e.remote.UpsertComments(ctx, batch)
		})
		if !ok {
			return pushed
		}
		if err := store.MarkCommentsSynced(ctx, rowIDs(batch, func(r feedserver.CommentRow) string { return r.ID })); err != nil {
			e.logStoreError("mark comments synced", err)
			return pushed
		}
		pushed += len(batch)
	}
	return pushed
}

func rowIDs[T any](rows []T, id func(T) string) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = id(r)
	}
	return ids
}

// postRow converts a local post to its wire form. Exactly one of
// image_url/video_url is populated, matching the media type.
func postRow(p *feedstore.Post, remoteURL string) feedserver.PostRow {
	row := feedserver.PostRow{
		ID:        p.ID,
		Text:      p.Text,
		MediaType: string(p.MediaType),
		Timestamp: p.Timestamp.UTC(),
		UserEmail: p.UserEmail,
		DeletedAt: p.DeletedAt,
	}
	if p.ThumbnailURL != "" {
		thumb := p.ThumbnailURL
		row.ThumbnailURL = &thumb
	}
	if remoteURL != "" {
		u := remoteURL
		if p.MediaType == feedstore.MediaVideo {
			row.VideoURL = &u
		} else {
			row.ImageURL = &u
		}
	}
	return row
}

func likeRow(l *feedstore.Like) feedserver.LikeRow {
	return feedserver.LikeRow{
		ID:        l.ID,
		PostID:    l.PostID,
		UserEmail: l.UserEmail,
		DeletedAt: l.DeletedAt,
	}
}

func commentRow(c *feedstore.Comment) feedserver.CommentRow {
	return feedserver.CommentRow{
		ID:        c.ID,
		PostID:    c.PostID,
		UserEmail: c.UserEmail,
		Text:      c.Text,
		CreatedAt: c.Timestamp.UTC(),
		DeletedAt: c.DeletedAt,
	}
}
