// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pocketfeed/go-feedsync/feedserver"
	"github.com/pocketfeed/go-feedsync/feedstore"
)

var errRemoteDown = errors.New("remote unavailable")

// fakeRemote is an in-memory RemoteStore. Upserts land in per-entity maps;
// the fail* counters make the next N calls of an operation fail, and the
// page* fields are served verbatim from the *Since reads.
type fakeRemote struct {
	mu sync.Mutex

	posts    map[string]feedserver.PostRow
	likes    map[string]feedserver.LikeRow
	comments map[string]feedserver.CommentRow

	postUpserts    []feedserver.PostRow
	likeBatches    [][]feedserver.LikeRow
	commentBatches [][]feedserver.CommentRow

	failPostUpserts    int
	failLikeUpserts    int
	failCommentUpserts int
	failFetches        int

	pagePosts    []feedserver.PostRow
	pageLikes    []feedserver.LikeRow
	pageComments []feedserver.CommentRow

	fetches []fetchCall
}

type fetchCall struct {
	entity string
	after  time.Time
	limit  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		posts:    map[string]feedserver.PostRow{},
		likes:    map[string]feedserver.LikeRow{},
		comments: map[string]feedserver.CommentRow{},
	}
}

func (f *fakeRemote) UpsertPost(ctx context.Context, row feedserver.PostRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPostUpserts > 0 {
		f.failPostUpserts--
		return errRemoteDown
	}
	f.posts[row.ID] = row
	f.postUpserts = append(f.postUpserts, row)
	return nil
}

func (f *fakeRemote) UpsertLikes(ctx context.Context, rows []feedserver.LikeRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLikeUpserts > 0 {
		f.failLikeUpserts--
		return errRemoteDown
	}
	for _, r := range rows {
		f.likes[r.ID] = r
	}
	f.likeBatches = append(f.likeBatches, rows)
	return nil
}

func (f *fakeRemote) UpsertComments(ctx context.Context, rows []feedserver.CommentRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommentUpserts > 0 {
		f.failCommentUpserts--
		return errRemoteDown
	}
	for _, r := range rows {
		f.comments[r.ID] = r
	}
	f.commentBatches = append(f.commentBatches, rows)
	return nil
}

func (f *fakeRemote) PostsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.PostRow, error) {
	return fetchPage(f, "posts", after, limit, f.pagePosts)
}

func (f *fakeRemote) LikesSince(ctx context.Context, after time.Time, limit int) ([]feedserver.LikeRow, error) {
	return fetchPage(f, "likes", after, limit, f.pageLikes)
}

func (f *fakeRemote) CommentsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.CommentRow, error) {
	return fetchPage(f, "comments", after, limit, f.pageComments)
}

func fetchPage[T any](f *fakeRemote, entity string, after time.Time, limit int, page []T) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, fetchCall{entity, after, limit})
	if f.failFetches > 0 {
		f.failFetches--
		return nil, errRemoteDown
	}
	return page, nil
}

// fakeBucket is an in-memory BucketClient keyed by "bucket/key".
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	puts     int // attempts, including failed ones
	failPuts int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
}

func (b *fakeBucket) Put(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failPuts > 0 {
		b.failPuts--
		return errors.New("bucket unavailable")
	}
	b.objects[bucket+"/"+key] = data
	b.types[bucket+"/"+key] = contentType
	return nil
}

func (b *fakeBucket) PublicURL(bucket, key string) string {
	return "https://cdn.test/" + bucket + "/" + key
}

// testClock is a hand-advanced clock. Values stay on whole seconds so the
// store's millisecond time format round-trips them exactly.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStoreWithClock(t *testing.T, clock *testClock) *feedstore.Store {
	t.Helper()
	store, err := feedstore.Open(":memory:", feedstore.Options{
		Logger: discardLogger(),
		Now:    clock.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestEngine builds an engine with a near-instant retry schedule. Fields
// set on cfg are kept; everything else gets test defaults.
func newTestEngine(t *testing.T, remote RemoteStore, bucket BucketClient, cfg *Config) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DocumentsDir == "" {
		cfg.DocumentsDir = t.TempDir()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	eng, err := NewEngine(remote, bucket, cfg)
	require.NoError(t, err)
	return eng
}
