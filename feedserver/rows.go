// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import "time"

// Wire rows shared by the sync server and the client engine. Field names
// are snake_case on the wire; timestamps travel as RFC 3339 UTC strings.
// Tombstones are rows with deleted_at set, never hard deletes, so that
// offline peers can still observe the deletion.
//
// UpdatedAt is maintained by the server schema on every insert or update
// and drives the incremental fetch windows; values sent by clients are
// ignored.

// PostRow is the wire form of a feed post.
type PostRow struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	ImageURL     *string    `json:"image_url,omitempty"`
	VideoURL     *string    `json:"video_url,omitempty"`
	MediaType    string     `json:"media_type"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	UserEmail    string     `json:"user_email"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at,omitzero"`
}

// LikeRow is the wire form of a like.
type LikeRow struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	UserEmail string     `json:"user_email"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// CommentRow is the wire form of a comment.
type CommentRow struct {
	ID        string     `json:"id"`
	PostID    string     `json:"post_id"`
	UserEmail string     `json:"user_email"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// UpsertPostsRequest is the body of POST /v1/sync/posts.
type UpsertPostsRequest struct {
	Posts []PostRow `json:"posts"`
}

// UpsertLikesRequest is the body of POST /v1/sync/likes.
type UpsertLikesRequest struct {
	Likes []LikeRow `json:"likes"`
}

// UpsertCommentsRequest is the body of POST /v1/sync/comments.
type UpsertCommentsRequest struct {
	Comments []CommentRow `json:"comments"`
}

// PostsPage is the response of GET /v1/sync/posts.
type PostsPage struct {
	Posts []PostRow `json:"posts"`
}

// LikesPage is the response of GET /v1/sync/likes.
type LikesPage struct {
	Likes []LikeRow `json:"likes"`
}

// CommentsPage is the response of GET /v1/sync/comments.
type CommentsPage struct {
	Comments []CommentRow `json:"comments"`
}

// ErrorResponse is the JSON body returned for any non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
