// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"

	"github.com/pocketfeed/go-feedsync/feedserver"
	"github.com/pocketfeed/go-feedsync/feedstore"
)

// Pull fetches remote changes past the local watermark and merges them into
// the store. All three windows are fetched before anything is written; the
// merge and the watermark advance then happen in one local transaction, so
// a crash mid-pull either replays the whole window next time or none of it.
// If any fetch fails after retries the pull is abandoned for this cycle and
// the watermark stays put.
func (e *Engine) Pull(ctx context.Context, store *feedstore.Store) {
	if store == nil || store.Closed() {
		return
	}

	after, err := store.Watermark(ctx)
	if err != nil {
		e.logStoreError("read watermark", err)
		return
	}

	var posts []feedserver.PostRow
	if ok := e.retrier.Do(ctx, "fetch posts", func(ctx context.Context) error {
		rows, err := e.remote.PostsSince(ctx, after, e.cfg.PostPageSize)
		if err != nil {
			return err
		}
		posts = rows
		return nil
	}); !ok {
		return
	}

	var likes []feedserver.LikeRow
	if ok := e.retrier.Do(ctx, "fetch likes", func(ctx context.Context) error {
		rows, err := e.remote.LikesSince(ctx, after, e.cfg.ChildPageSize)
		if err != nil {
			return err
		}
		likes = rows
		return nil
	}); !ok {
		return
	}

	var comments []feedserver.CommentRow
	if ok := e.retrier.Do(ctx, "fetch comments", func(ctx context.Context) error {
		rows, err := e.remote.CommentsSince(ctx, after, e.cfg.ChildPageSize)
		if err != nil {
			return err
		}
		comments = rows
		return nil
	}); !ok {
		return
	}

	syncedAt := e.now()
	err = store.MergeRemote(ctx, remotePosts(posts), remoteLikes(likes), remoteComments(comments), syncedAt)
	if err != nil {
		e.logStoreError("merge remote changes", err)
		return
	}

	if len(posts)+len(likes)+len(comments) > 0 {
		e.logger.Info("pull cycle complete",
			"posts", len(posts), "likes", len(likes), "comments", len(comments))
	}
}

func remotePosts(rows []feedserver.PostRow) []feedstore.RemotePost {
	out := make([]feedstore.RemotePost, len(rows))
	for i, r := range rows {
		rp := feedstore.RemotePost{
			ID:        r.ID,
			Text:      r.Text,
			MediaType: feedstore.MediaType(r.MediaType),
			UserEmail: r.UserEmail,
			Timestamp: r.Timestamp,
			DeletedAt: r.DeletedAt,
			UpdatedAt: r.UpdatedAt,
		}
		// Videos publish under video_url, images under image_url.
		switch {
		case r.VideoURL != nil:
			rp.RemoteURL = *r.VideoURL
		case r.ImageURL != nil:
			rp.RemoteURL = *r.ImageURL
		}
		if r.ThumbnailURL != nil {
			rp.ThumbnailURL = *r.ThumbnailURL
		}
		out[i] = rp
	}
	return out
}

func remoteLikes(rows []feedserver.LikeRow) []feedstore.RemoteLike {
	out := make([]feedstore.RemoteLike, len(rows))
	for i, r := range rows {
		out[i] = feedstore.RemoteLike{
			ID:        r.ID,
			PostID:    r.PostID,
			UserEmail: r.UserEmail,
			DeletedAt: r.DeletedAt,
		}
	}
	return out
}

func remoteComments(rows []feedserver.CommentRow) []feedstore.RemoteComment {
	out := make([]feedstore.RemoteComment, len(rows))
	for i, r := range rows {
		out[i] = feedstore.RemoteComment{
			ID:        r.ID,
			PostID:    r.PostID,
			UserEmail: r.UserEmail,
			Text:      r.Text,
			CreatedAt: r.CreatedAt,
			DeletedAt: r.DeletedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out
}
