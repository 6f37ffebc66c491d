// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pocketfeed/go-feedsync/feedserver"
)

// RemoteStore is the server-side half of replication as seen by the engine.
// Upserts must be idempotent on row ID; the *Since reads return rows whose
// server updated_at is strictly after the given watermark.
type RemoteStore interface {
	UpsertPost(ctx context.Context, row feedserver.PostRow) error
	UpsertLikes(ctx context.Context, rows []feedserver.LikeRow) error
	UpsertComments(ctx context.Context, rows []feedserver.CommentRow) error
	PostsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.PostRow, error)
	LikesSince(ctx context.Context, after time.Time, limit int) ([]feedserver.LikeRow, error)
	CommentsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.CommentRow, error)
}

// DefaultHTTPTimeout bounds a single request to the sync server.
const DefaultHTTPTimeout = 60 * time.Second

// Client talks to the feed sync server over HTTP and implements RemoteStore.
type Client struct {
	// BaseURL of the sync server, without a trailing slash.
	BaseURL string
	// Token returns a bearer token for the current user/device.
	Token func(ctx context.Context) (string, error)
	// HTTP is the underlying client; NewClient sets a 60s timeout.
	HTTP *http.Client
}

// NewClient creates a sync server client with default HTTP settings.
func NewClient(baseURL string, token func(ctx context.Context) (string, error)) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
}

// UpsertPost uploads a single post row.
func (c *Client) UpsertPost(ctx context.Context, row feedserver.PostRow) error {
	req := feedserver.UpsertPostsRequest{Posts: []feedserver.PostRow{row}}
	return c.postJSON(ctx, "/v1/sync/posts", req)
}

// UpsertLikes uploads a batch of like rows.
func (c *Client) UpsertLikes(ctx context.Context, rows []feedserver.LikeRow) error {
	return c.postJSON(ctx, "/v1/sync/likes", feedserver.UpsertLikesRequest{Likes: rows})
}

// UpsertComments uploads a batch of comment rows.
func (c *Client) UpsertComments(ctx context.Context, rows []feedserver.CommentRow) error {
	return c.postJSON(ctx, "/v1/sync/comments", feedserver.UpsertCommentsRequest{Comments: rows})
}

// PostsSince fetches posts changed after the watermark, newest first.
func (c *Client) PostsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.PostRow, error) {
	var page feedserver.PostsPage
	if err := c.getJSON(ctx, "/v1/sync/posts", after, limit, &page); err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// LikesSince fetches likes changed after the watermark.
func (c *Client) LikesSince(ctx context.Context, after time.Time, limit int) ([]feedserver.LikeRow, error) {
	var page feedserver.LikesPage
	if err := c.getJSON(ctx, "/v1/sync/likes", after, limit, &page); err != nil {
		return nil, err
	}
	return page.Likes, nil
}

// CommentsSince fetches comments changed after the watermark.
func (c *Client) CommentsSince(ctx context.Context, after time.Time, limit int) ([]feedserver.CommentRow, error) {
	var page feedserver.CommentsPage
	if err := c.getJSON(ctx, "/v1/sync/comments", after, limit, &page); err != nil {
		return nil, err
	}
	return page.Comments, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, after time.Time, limit int, out any) error {
	q := url.Values{}
	q.Set("after", after.UTC().Format(time.RFC3339Nano))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
