// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pocketfeed/go-feedsync/feedstore"
)

const (
	// DefaultPushCooldown is the minimum gap between push cycles. UI
	// actions fire TriggerPush on every local write; bursts of writes
	// coalesce into one push.
	DefaultPushCooldown = 3 * time.Second

	// BackgroundTaskName identifies the periodic background cycle in logs
	// and OS task registrations.
	BackgroundTaskName = "BACKGROUND_SYNC_TASK"

	// MinBackgroundInterval is the floor for the background cycle period.
	// Mobile schedulers refuse shorter intervals, so the runner does too.
	MinBackgroundInterval = 15 * time.Minute
)

// Syncer is the cycle surface the Scheduler drives. *Engine implements it.
type Syncer interface {
	Push(ctx context.Context, store *feedstore.Store)
	Pull(ctx context.Context, store *feedstore.Store)
	Prune(ctx context.Context, store *feedstore.Store)
}

// StoreOpener opens a fresh store handle for a background cycle that runs
// without the app's long-lived store.
type StoreOpener func(ctx context.Context) (*feedstore.Store, error)

// SchedulerConfig tunes a Scheduler; zero fields use package defaults.
type SchedulerConfig struct {
	Cooldown time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scheduler decides when sync cycles actually run. At most one push is in
// flight at a time and pushes within the cooldown window of the previous
// one are dropped; the writes they were fired for are picked up by the
// next cycle anyway, since push always scans the full unsynced set.
type Scheduler struct {
	syncer   Syncer
	opener   StoreOpener
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	syncing  bool
	lastPush time.Time
}

// NewScheduler wires a scheduler over the given syncer. opener may be nil
// when BackgroundTick is not used.
func NewScheduler(syncer Syncer, opener StoreOpener, cfg *SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = &SchedulerConfig{}
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultPushCooldown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		syncer:   syncer,
		opener:   opener,
		cooldown: cooldown,
		logger:   logger,
		now:      now,
	}
}

// TriggerPush runs a push cycle unless one is already in flight or the
// last one started less than the cooldown ago. The skip leaves the
// cooldown stamp untouched, so a burst of triggers collapses into the
// first one rather than pushing the window forward forever.
func (s *Scheduler) TriggerPush(ctx context.Context, store *feedstore.Store) {
	if store == nil || store.Closed() {
		return
	}

	s.mu.Lock()
	if s.syncing {
		s.mu.Unlock()
		s.logger.Debug("push already in flight, skipping trigger")
		return
	}
	now := s.now()
	if now.Sub(s.lastPush) < s.cooldown {
		s.mu.Unlock()
		s.logger.Debug("push cooldown active, skipping trigger")
		return
	}
	s.syncing = true
	s.lastPush = now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	s.syncer.Push(ctx, store)
}

// OnConnectivityChange reacts to network transitions: regaining
// connectivity kicks off a full push+pull so changes queued offline drain
// immediately. Losing connectivity does nothing; offline writes just pile
// up as unsynced rows.
func (s *Scheduler) OnConnectivityChange(ctx context.Context, store *feedstore.Store, connected bool) {
	if !connected {
		s.logger.Debug("connectivity lost")
		return
	}
	s.logger.Debug("connectivity restored, starting sync cycle")
	s.TriggerPush(ctx, store)
	s.syncer.Pull(ctx, store)
}

// BackgroundTick runs one full background cycle (push, pull, prune) on a
// store opened just for this tick. The app may be suspended with its own
// store closed; the opener gives the tick an independent handle.
func (s *Scheduler) BackgroundTick(ctx context.Context) {
	if s.opener == nil {
		s.logger.Warn("background tick skipped, no store opener configured")
		return
	}
	store, err := s.opener(ctx)
	if err != nil {
		s.logger.Warn("failed to open store for background cycle", "error", err)
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			s.logger.Warn("failed to close background store", "error", err)
		}
	}()

	s.logger.Debug("background cycle starting", "task", BackgroundTaskName)
	s.TriggerPush(ctx, store)
	s.syncer.Pull(ctx, store)
	s.syncer.Prune(ctx, store)
}

// BackgroundRunner fires BackgroundTick on a fixed period, standing in for
// the OS task scheduler on platforms that do not have one.
type BackgroundRunner struct {
	scheduler *Scheduler
	interval  time.Duration
	logger    *slog.Logger
}

// NewBackgroundRunner returns a runner honoring MinBackgroundInterval.
func NewBackgroundRunner(scheduler *Scheduler, interval time.Duration) *BackgroundRunner {
	if interval < MinBackgroundInterval {
		interval = MinBackgroundInterval
	}
	return &BackgroundRunner{
		scheduler: scheduler,
		interval:  interval,
		logger:    scheduler.logger,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (r *BackgroundRunner) Run(ctx context.Context) {
	r.logger.Info("background sync task registered",
		"task", BackgroundTaskName, "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("background sync task stopped", "task", BackgroundTaskName)
			return
		case <-ticker.C:
			r.scheduler.BackgroundTick(ctx)
		}
	}
}
