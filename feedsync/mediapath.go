// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"os"
	"path/filepath"
	"strings"
)

// PathResolver maps the media URIs recorded on posts to files on disk.
// Posts store whatever the capture layer handed them: a file:// URI, an
// absolute path, or a bare name relative to the app's documents directory.
type PathResolver struct {
	// DocumentsDir anchors bare (relative) media names.
	DocumentsDir string
}

// FullPath normalizes uri to an absolute filesystem path.
func (r *PathResolver) FullPath(uri string) string {
	path := strings.TrimPrefix(uri, "file://")
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.DocumentsDir, path)
}

// Exists reports whether the media file behind uri is present on disk.
// A post whose file has been evicted from the device cache must not be
// pushed with a dangling attachment, so callers check this before upload.
func (r *PathResolver) Exists(uri string) bool {
	info, err := os.Stat(r.FullPath(uri))
	if err != nil {
		return false
	}
	return !info.IsDir()
}
