// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMergeInsertsUnknownRowsAsSynced(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	postID, likeID, commentID := NewID(), NewID(), NewID()
	ts := clock.Now().Add(-time.Hour)
	syncedAt := clock.Now()

	err := store.MergeRemote(ctx,
		[]RemotePost{{
			ID:        postID,
			Text:      "from server",
			RemoteURL: "https://cdn/p.jpg",
			// MediaType and UserEmail deliberately empty: server rows
			// predating those columns fall back to defaults.
			Timestamp: ts,
			UpdatedAt: ts,
		}},
		[]RemoteLike{{ID: likeID, PostID: postID, UserEmail: "o@x.y"}},
		[]RemoteComment{{ID: commentID, PostID: postID, UserEmail: "o@x.y", Text: "hi", CreatedAt: ts, UpdatedAt: ts}},
		syncedAt)
	require.NoError(t, err)

	post, err := store.PostByID(ctx, postID)
	require.NoError(t, err)
	require.True(t, post.IsSynced)
	require.Equal(t, "from server", post.Text)
	require.Equal(t, "https://cdn/p.jpg", post.RemoteURL)
	require.Equal(t, MediaImage, post.MediaType)
	require.Equal(t, "anon", post.UserEmail)

	like, err := store.LikeByID(ctx, likeID)
	require.NoError(t, err)
	require.True(t, like.IsSynced)
	require.False(t, like.IsDeleted())

	comment, err := store.CommentByID(ctx, commentID)
	require.NoError(t, err)
	require.True(t, comment.IsSynced)
	require.Equal(t, "hi", comment.Text)

	wm, err := store.Watermark(ctx)
	require.NoError(t, err)
	require.Equal(t, syncedAt, wm)
}

func TestMergeLastWriteWinsOnSyncedPost(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "local", UserEmail: "a@b.c"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	// Remote copy not newer than the local row: no-op.
	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "stale",
		Timestamp: post.Timestamp,
		UpdatedAt: post.Timestamp,
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "local", got.Text)

	// Newer remote copy replaces text, media URL and tombstone state.
	deletedAt := clock.Now()
	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "newer",
		RemoteURL: "https://cdn/new.jpg",
		Timestamp: post.Timestamp,
		DeletedAt: &deletedAt,
		UpdatedAt: post.Timestamp.Add(time.Minute),
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err = store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "newer", got.Text)
	require.Equal(t, "https://cdn/new.jpg", got.RemoteURL)
	require.True(t, got.IsDeleted(), "remote tombstone must propagate")
	require.True(t, got.IsSynced)
}

func TestMergeRemoteNewerWinsOnUnsyncedWithoutBase(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	// Never-synced post: there is no base snapshot to diff against.
	post, err := store.CreatePost(ctx, NewPost{Text: "A", UserEmail: "a@b.c"})
	require.NoError(t, err)

	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "B",
		Timestamp: post.Timestamp,
		UpdatedAt: post.Timestamp.Add(time.Hour),
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "B", got.Text, "newer remote side wins the conflicted field")
	require.True(t, got.IsSynced)
}

func TestMergeFieldLevelAgainstBase(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	// Synced state: text T0, media URL U0. That pair becomes the base
	// snapshot when the local edit flips the row to unsynced.
	post, err := store.CreatePost(ctx, NewPost{Text: "T0", UserEmail: "a@b.c"})
	require.NoError(t, err)
	require.NoError(t, store.SetPostRemoteURL(ctx, post.ID, "U0"))
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	clock.Advance(time.Minute)
	require.NoError(t, store.EditPostText(ctx, post.ID, "T1"))

	// Remote changed only the media URL; local changed only the text.
	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "T0",
		RemoteURL: "U1",
		Timestamp: post.Timestamp,
		UpdatedAt: clock.Now().Add(time.Hour),
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "T1", got.Text, "local-only edit survives")
	require.Equal(t, "U1", got.RemoteURL, "remote-only edit survives")
	require.True(t, got.IsSynced)
}

func TestMergeBothSidesChangedFallsBackToNewer(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "T0", UserEmail: "a@b.c"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	clock.Advance(time.Minute)
	require.NoError(t, store.EditPostText(ctx, post.ID, "local edit"))
	edited, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)

	// Remote edited the same field and is newer.
	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "remote edit",
		Timestamp: post.Timestamp,
		UpdatedAt: edited.Timestamp.Add(time.Hour),
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "remote edit", got.Text)
}

func TestMergeLeavesLocalTombstoneAlone(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "doomed"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))
	require.NoError(t, store.SoftDeletePost(ctx, post.ID))

	err = store.MergeRemote(ctx, []RemotePost{{
		ID:        post.ID,
		Text:      "revived?",
		Timestamp: post.Timestamp,
		UpdatedAt: clock.Now().Add(time.Hour),
	}}, nil, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted(), "pending local delete wins until pushed")
	require.False(t, got.IsSynced)
	require.Equal(t, "doomed", got.Text)
}

func TestMergeLikeIsInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "p"})
	require.NoError(t, err)
	require.NoError(t, store.MarkPostSynced(ctx, post.ID))

	local, err := store.ToggleLike(ctx, post.ID, "u@x.y")
	require.NoError(t, err)

	deletedAt := clock.Now()
	remoteDup := NewID()
	err = store.MergeRemote(ctx, nil, []RemoteLike{
		// Same id as the local like, remotely tombstoned: ignored, the
		// local unsynced state stands until pushed.
		{ID: local.ID, PostID: post.ID, UserEmail: "u@x.y", DeletedAt: &deletedAt},
		// Different id but same (post, user) while a local active like
		// exists: blocked by the active-uniqueness index, also ignored.
		{ID: remoteDup, PostID: post.ID, UserEmail: "u@x.y"},
	}, nil, clock.Now())
	require.NoError(t, err)

	got, err := store.LikeByID(ctx, local.ID)
	require.NoError(t, err)
	require.False(t, got.IsDeleted())
	require.False(t, got.IsSynced)

	_, err = store.LikeByID(ctx, remoteDup)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMergeCommentKeepsLocalEditWhenRemoteOlder(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	post, err := store.CreatePost(ctx, NewPost{Text: "p"})
	require.NoError(t, err)
	comment, err := store.AddComment(ctx, NewComment{PostID: post.ID, Text: "mine"})
	require.NoError(t, err)

	err = store.MergeRemote(ctx, nil, nil, []RemoteComment{{
		ID:        comment.ID,
		PostID:    post.ID,
		UserEmail: "o@x.y",
		Text:      "theirs",
		CreatedAt: comment.Timestamp,
		UpdatedAt: comment.Timestamp.Add(-time.Hour),
	}}, clock.Now())
	require.NoError(t, err)

	got, err := store.CommentByID(ctx, comment.ID)
	require.NoError(t, err)
	require.Equal(t, "mine", got.Text)
	require.True(t, got.IsSynced, "merge resolves the row even when local wins")
}

func TestMergeEmptyWindowStillAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	store, clock := newTestStore(t)

	syncedAt := clock.Now().Add(time.Minute)
	require.NoError(t, store.MergeRemote(ctx, nil, nil, nil, syncedAt))

	wm, err := store.Watermark(ctx)
	require.NoError(t, err)
	require.Equal(t, syncedAt, wm)
}
