// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"errors"

	"github.com/pocketfeed/go-feedsync/feedstore"
)

// Prune bounds the local dataset: synced tombstones past the retention
// window are garbage-collected, the oldest active posts beyond the cap are
// dropped locally (they remain on the server), and children orphaned by
// either pass are swept out. Runs as the last step of a background cycle.
func (e *Engine) Prune(ctx context.Context, store *feedstore.Store) {
	if store == nil || store.Closed() {
		return
	}

	stats, err := store.Prune(ctx, e.now(), e.cfg.Retention, e.cfg.MaxPosts)
	if err != nil {
		if errors.Is(err, feedstore.ErrClosed) {
			return
		}
		e.logger.Warn("prune failed", "error", err)
		return
	}

	if stats.TombstonesRemoved+stats.PostsEvicted+stats.OrphansRemoved > 0 {
		e.logger.Info("prune complete",
			"tombstones", stats.TombstonesRemoved,
			"evicted_posts", stats.PostsEvicted,
			"orphans", stats.OrphansRemoved)
	}
}
