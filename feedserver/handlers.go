// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pocketfeed/go-feedsync/internal/auth"
)

// Store is the persistence surface the HTTP handlers need; *Service
// implements it.
type Store interface {
	UpsertPosts(ctx context.Context, rows []PostRow) error
	UpsertLikes(ctx context.Context, rows []LikeRow) error
	UpsertComments(ctx context.Context, rows []CommentRow) error
	PostsSince(ctx context.Context, after time.Time, limit int) ([]PostRow, error)
	LikesSince(ctx context.Context, after time.Time, limit int) ([]LikeRow, error)
	CommentsSince(ctx context.Context, after time.Time, limit int) ([]CommentRow, error)
}

// Authenticator resolves the caller's identity from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (email, deviceID string, err error)
}

// Handlers exposes the sync API over plain net/http:
//
//	POST /v1/sync/posts     — upsert a batch of post rows
//	POST /v1/sync/likes     — upsert a batch of like rows
//	POST /v1/sync/comments  — upsert a batch of comment rows
//	GET  /v1/sync/posts     — posts changed after ?after=, up to ?limit=
//	GET  /v1/sync/likes     — likes changed after ?after=, up to ?limit=
//	GET  /v1/sync/comments  — comments changed after ?after=, up to ?limit=
//	GET  /healthz           — liveness probe, no auth
type Handlers struct {
	store  Store
	auth   Authenticator
	logger *slog.Logger
}

// NewHandlers wires the sync endpoints over the given store and authenticator.
func NewHandlers(store Store, authenticator Authenticator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, auth: authenticator, logger: logger}
}

// Mux returns a ServeMux with all sync routes registered.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sync/posts", h.withAuth(h.handleUpsertPosts))
	mux.HandleFunc("POST /v1/sync/likes", h.withAuth(h.handleUpsertLikes))
	mux.HandleFunc("POST /v1/sync/comments", h.withAuth(h.handleUpsertComments))
	mux.HandleFunc("GET /v1/sync/posts", h.withAuth(h.handleFetchPosts))
	mux.HandleFunc("GET /v1/sync/likes", h.withAuth(h.handleFetchLikes))
	mux.HandleFunc("GET /v1/sync/comments", h.withAuth(h.handleFetchComments))
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return mux
}

// withAuth authenticates the request and stores the identity on the context.
func (h *Handlers) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, deviceID, err := h.auth.Authenticate(r)
		if err != nil {
			h.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
			h.writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
			return
		}
		ctx := auth.SetAuthContext(r.Context(), email, deviceID)
		next(w, r.WithContext(ctx))
	}
}

func (h *Handlers) handleUpsertPosts(w http.ResponseWriter, r *http.Request) {
	var req UpsertPostsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, "invalid request body")
		return
	}
	if err := h.store.UpsertPosts(r.Context(), req.Posts); err != nil {
		h.serveStoreError(w, r, "upsert posts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handlers) handleUpsertLikes(w http.ResponseWriter, r *http.Request) {
	var req UpsertLikesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, "invalid request body")
		return
	}
	if err := h.store.UpsertLikes(r.Context(), req.Likes); err != nil {
		h.serveStoreError(w, r, "upsert likes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handlers) handleUpsertComments(w http.ResponseWriter, r *http.Request) {
	var req UpsertCommentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, "invalid request body")
		return
	}
	if err := h.store.UpsertComments(r.Context(), req.Comments); err != nil {
		h.serveStoreError(w, r, "upsert comments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handlers) handleFetchPosts(w http.ResponseWriter, r *http.Request) {
	after, limit, err := fetchParams(r, DefaultPostLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, err.Error())
		return
	}
	posts, err := h.store.PostsSince(r.Context(), after, limit)
	if err != nil {
		h.serveStoreError(w, r, "fetch posts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, PostsPage{Posts: posts})
}

func (h *Handlers) handleFetchLikes(w http.ResponseWriter, r *http.Request) {
	after, limit, err := fetchParams(r, DefaultChildLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, err.Error())
		return
	}
	likes, err := h.store.LikesSince(r.Context(), after, limit)
	if err != nil {
		h.serveStoreError(w, r, "fetch likes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, LikesPage{Likes: likes})
}

func (h *Handlers) handleFetchComments(w http.ResponseWriter, r *http.Request) {
	after, limit, err := fetchParams(r, DefaultChildLimit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrCodeInvalidFormat, err.Error())
		return
	}
	comments, err := h.store.CommentsSince(r.Context(), after, limit)
	if err != nil {
		h.serveStoreError(w, r, "fetch comments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, CommentsPage{Comments: comments})
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fetchParams parses the ?after= watermark (RFC 3339, defaults to the
// epoch) and ?limit= for the download endpoints.
func fetchParams(r *http.Request, defaultLimit int) (time.Time, int, error) {
	var after time.Time
	if raw := r.URL.Query().Get("after"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("invalid after parameter: %v", err)
		}
		after = t
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return time.Time{}, 0, fmt.Errorf("invalid limit parameter")
		}
		limit = n
	}
	return after, limit, nil
}

func (h *Handlers) serveStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	email, _ := auth.GetUserEmail(r.Context())
	device, _ := auth.GetDeviceID(r.Context())
	h.logger.Error("store operation failed", "op", op, "user", email, "device", device, "error", err)
	h.writeError(w, http.StatusInternalServerError, ErrCodeInternal, "operation failed")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
