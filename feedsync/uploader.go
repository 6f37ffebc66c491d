// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pocketfeed/go-feedsync/feedstore"
)

// Bucket names and content types are fixed by the post's media type:
// images land in the media bucket as <id>.jpg, videos in the reels
// bucket as <id>.mp4.
const (
	BucketImages = "media"
	BucketVideos = "reels"

	contentTypeJPEG = "image/jpeg"
	contentTypeMP4  = "video/mp4"
)

// BucketClient stores media objects. Implementations must overwrite on
// duplicate keys so that a re-pushed post converges on the same object.
type BucketClient interface {
	Put(ctx context.Context, bucket, key, contentType string, body io.Reader) error
	PublicURL(bucket, key string) string
}

// MediaUploader moves a post's local media file into object storage and
// hands back the public URL to record on the post.
type MediaUploader struct {
	bucket BucketClient
	paths  *PathResolver
	retry  *Retrier
	logger *slog.Logger
}

// NewMediaUploader wires an uploader over the given bucket client.
func NewMediaUploader(bucket BucketClient, paths *PathResolver, retry *Retrier, logger *slog.Logger) *MediaUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaUploader{bucket: bucket, paths: paths, retry: retry, logger: logger}
}

// Upload stores the post's media object and returns its public URL.
// A missing local file fails immediately with no network traffic; transient
// storage errors are retried. On failure the post is simply skipped this
// cycle, ok=false, and the caller leaves it unsynced.
func (u *MediaUploader) Upload(ctx context.Context, post *feedstore.Post) (string, bool) {
	path := u.paths.FullPath(post.LocalURI)
	if !u.paths.Exists(post.LocalURI) {
		u.logger.Warn("media file missing, skipping post this cycle",
			"post_id", post.ID, "path", path)
		return "", false
	}

	bucket, key, contentType := mediaRoute(post)
	ok := u.retry.Do(ctx, "upload "+bucket+"/"+key, func(ctx context.Context) error {
		// Reopened per attempt so each retry streams from the start.
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return u.bucket.Put(ctx, bucket, key, contentType, f)
	})
	if !ok {
		return "", false
	}

	url := u.bucket.PublicURL(bucket, key)
	u.logger.Debug("media uploaded", "post_id", post.ID, "url", url)
	return url, true
}

func mediaRoute(post *feedstore.Post) (bucket, key, contentType string) {
	if post.MediaType == feedstore.MediaVideo {
		return BucketVideos, post.ID + ".mp4", contentTypeMP4
	}
	return BucketImages, post.ID + ".jpg", contentTypeJPEG
}
