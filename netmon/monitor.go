// Package netmon watches network reachability by probing an HTTP endpoint
// and tells subscribers when connectivity flips, so the sync scheduler can
// drain queued changes the moment the device comes back online.
//
// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package netmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultInterval between reachability probes.
	DefaultInterval = 30 * time.Second

	// probeTimeout bounds one probe request.
	probeTimeout = 3 * time.Second
)

// Monitor polls a probe URL and reports connectivity transitions.
// Any HTTP response counts as connected; only transport failures mean the
// network is down.
type Monitor struct {
	probeURL string
	interval time.Duration
	http     *http.Client
	logger   *slog.Logger

	mu       sync.Mutex
	subs     map[int]func(bool)
	nextID   int
	state    bool
	hasState bool
}

// New creates a monitor probing the given URL. interval <= 0 uses the default.
func New(probeURL string, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		http:     &http.Client{Timeout: probeTimeout},
		logger:   logger,
		subs:     make(map[int]func(bool)),
	}
}

// Subscribe registers fn to be called on every connectivity transition.
// The returned cancel func removes the subscription. Callbacks run on the
// monitor's goroutine and should hand off long work.
func (m *Monitor) Subscribe(fn func(connected bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Connected returns the last observed state (false before the first probe).
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run probes immediately and then on every interval until ctx is
// cancelled. The first probe's result is always delivered to subscribers,
// so they learn the initial state; after that only transitions fire.
func (m *Monitor) Run(ctx context.Context) {
	m.report(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report(m.probe(ctx))
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (m *Monitor) report(connected bool) {
	m.mu.Lock()
	changed := !m.hasState || m.state != connected
	m.hasState = true
	m.state = connected
	var fns []func(bool)
	if changed {
		fns = make([]func(bool), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", "connected", connected)
	for _, fn := range fns {
		fn(connected)
	}
}
