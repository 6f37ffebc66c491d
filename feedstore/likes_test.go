// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToggleLikeLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "likeable"})
	require.NoError(t, err)

	// First toggle inserts an active like.
	like, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	require.False(t, like.IsDeleted())
	require.False(t, like.IsSynced)

	count, err := store.ActiveLikeCount(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Second toggle tombstones the same row.
	tombstoned, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	require.Equal(t, like.ID, tombstoned.ID)
	require.True(t, tombstoned.IsDeleted())

	count, err = store.ActiveLikeCount(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	// Third toggle resurrects the row instead of inserting a sibling.
	back, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	require.Equal(t, like.ID, back.ID)
	require.False(t, back.IsDeleted())
	require.False(t, back.IsSynced)

	all, err := store.UnsyncedLikes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1, "toggling must never create a second row for the same (post, user)")
}

func TestToggleLikeResurrectAfterSyncedUnlike(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "p"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	like, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	require.NoError(t, store.MarkLikesSynced(ctx, []string{like.ID}))

	// Unlike, then re-like before the tombstone was ever pushed.
	_, err = store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	resurrected, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)
	require.Equal(t, like.ID, resurrected.ID)
	require.Nil(t, resurrected.DeletedAt)

	// The row goes back up as a plain active upsert.
	pushable, err := store.PushableLikes(ctx)
	require.NoError(t, err)
	require.Len(t, pushable, 1)
	require.Equal(t, like.ID, pushable[0].ID)
	require.False(t, pushable[0].IsDeleted())
}

func TestToggleLikeSeparateUsers(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "popular"})
	require.NoError(t, err)

	a, err := store.ToggleLike(ctx, post.ID, "a@x.y")
	require.NoError(t, err)
	b, err := store.ToggleLike(ctx, post.ID, "b@x.y")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	count, err := store.ActiveLikeCount(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPushableLikesWaitForParent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "parent"})
	require.NoError(t, err)
	like, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)

	pushable, err := store.PushableLikes(ctx)
	require.NoError(t, err)
	require.Empty(t, pushable, "like must wait until its post is on the server")

	deferred, err := store.DeferredLikeCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, deferred)

	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	pushable, err = store.PushableLikes(ctx)
	require.NoError(t, err)
	require.Len(t, pushable, 1)
	require.Equal(t, like.ID, pushable[0].ID)

	deferred, err = store.DeferredLikeCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, deferred)
}

func TestMarkLikesSyncedBatch(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "p"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	a, err := store.ToggleLike(ctx, post.ID, "a@x.y")
	require.NoError(t, err)
	b, err := store.ToggleLike(ctx, post.ID, "b@x.y")
	require.NoError(t, err)

	require.NoError(t, store.MarkLikesSynced(ctx, []string{a.ID, b.ID}))

	unsynced, err := store.UnsyncedLikes(ctx)
	require.NoError(t, err)
	require.Empty(t, unsynced)

	// Empty batch is a no-op.
	require.NoError(t, store.MarkLikesSynced(ctx, nil))
}
