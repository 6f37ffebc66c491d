// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pocketfeed/go-feedsync/feedserver"
	"github.com/pocketfeed/go-feedsync/feedstore"
)

func strPtr(s string) *string { return &s }

func TestPullInsertsRemoteRows(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	postID, likeID, commentID := feedstore.NewID(), feedstore.NewID(), feedstore.NewID()
	ts := clock.Now().Add(-time.Hour)
	remote.pagePosts = []feedserver.PostRow{{
		ID:        postID,
		Text:      "from server",
		ImageURL:  strPtr("https://cdn.test/media/x.jpg"),
		MediaType: "image",
		UserEmail: "o@x.y",
		Timestamp: ts,
		UpdatedAt: ts,
	}}
	remote.pageLikes = []feedserver.LikeRow{{ID: likeID, PostID: postID, UserEmail: "o@x.y"}}
	remote.pageComments = []feedserver.CommentRow{{
		ID: commentID, PostID: postID, UserEmail: "o@x.y",
		Text: "hi", CreatedAt: ts, UpdatedAt: ts,
	}}

	eng.Pull(ctx, store)

	post, err := store.PostByID(ctx, postID)
	require.NoError(t, err)
	require.True(t, post.IsSynced)
	require.Equal(t, "https://cdn.test/media/x.jpg", post.RemoteURL)

	like, err := store.LikeByID(ctx, likeID)
	require.NoError(t, err)
	require.True(t, like.IsSynced)

	comment, err := store.CommentByID(ctx, commentID)
	require.NoError(t, err)
	require.Equal(t, "hi", comment.Text)

	wm, err := store.Watermark(ctx)
	require.NoError(t, err)
	require.Equal(t, clock.Now(), wm)
}

func TestPullPrefersVideoURL(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	postID := feedstore.NewID()
	remote.pagePosts = []feedserver.PostRow{{
		ID:        postID,
		Text:      "reel",
		VideoURL:  strPtr("https://cdn.test/reels/x.mp4"),
		ImageURL:  strPtr("https://cdn.test/media/x.jpg"),
		MediaType: "video",
		Timestamp: clock.Now(),
		UpdatedAt: clock.Now(),
	}}

	eng.Pull(ctx, store)

	post, err := store.PostByID(ctx, postID)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.test/reels/x.mp4", post.RemoteURL)
	require.Equal(t, feedstore.MediaVideo, post.MediaType)
}

func TestPullRemoteNewerWinsOnLocalDraft(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	post, err := store.CreatePost(ctx, feedstore.NewPost{Text: "A"})
	require.NoError(t, err)
	remote.pagePosts = []feedserver.PostRow{{
		ID:        post.ID,
		Text:      "B",
		Timestamp: post.Timestamp,
		UpdatedAt: post.Timestamp.Add(time.Hour),
	}}

	eng.Pull(ctx, store)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "B", got.Text)
	require.True(t, got.IsSynced)
}

func TestPullMergesDisjointFieldEdits(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	post, err := store.CreatePost(ctx, feedstore.NewPost{Text: "T0"})
	require.NoError(t, err)
	require.NoError(t, store.SetPostRemoteURL(ctx, post.ID, "https://cdn.test/media/old.jpg"))
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	clock.Advance(time.Minute)
	require.NoError(t, store.EditPostText(ctx, post.ID, "T1"))

	// The server side changed only the media URL.
	remote.pagePosts = []feedserver.PostRow{{
		ID:        post.ID,
		Text:      "T0",
		ImageURL:  strPtr("https://cdn.test/media/new.jpg"),
		MediaType: "image",
		Timestamp: post.Timestamp,
		UpdatedAt: clock.Now().Add(time.Hour),
	}}

	eng.Pull(ctx, store)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "T1", got.Text, "local text edit survives")
	require.Equal(t, "https://cdn.test/media/new.jpg", got.RemoteURL, "remote URL edit survives")
	require.True(t, got.IsSynced)
}

func TestPullFetchFailureLeavesWatermark(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	remote.failFetches = 4
	remote.pagePosts = []feedserver.PostRow{{ID: feedstore.NewID(), Text: "never lands"}}
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	before, err := store.Watermark(ctx)
	require.NoError(t, err)

	eng.Pull(ctx, store)

	after, err := store.Watermark(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after, "a failed fetch must not advance the watermark")

	posts, err := store.ActivePosts(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, posts)
}

func TestPullPassesWatermarkAndLimits(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{
		PostPageSize:  7,
		ChildPageSize: 9,
		Now:           clock.Now,
	})

	firstPull := clock.Now()
	eng.Pull(ctx, store)

	epoch := time.Unix(0, 0).UTC()
	require.Equal(t, []fetchCall{
		{"posts", epoch, 7},
		{"likes", epoch, 9},
		{"comments", epoch, 9},
	}, remote.fetches)

	// An empty window still advances the watermark; the next pull reads
	// strictly after the previous one.
	clock.Advance(time.Minute)
	eng.Pull(ctx, store)
	require.Len(t, remote.fetches, 6)
	require.Equal(t, fetchCall{"posts", firstPull, 7}, remote.fetches[3])
}

func TestPullToleratesNilAndClosedStore(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newStoreWithClock(t, clock)
	remote := newFakeRemote()
	eng := newTestEngine(t, remote, newFakeBucket(), &Config{Now: clock.Now})

	require.NoError(t, store.Close())
	eng.Pull(ctx, nil)
	eng.Pull(ctx, store)
	require.Empty(t, remote.fetches)
}
