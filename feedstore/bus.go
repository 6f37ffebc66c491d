// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import "sync"

// Bus fans out change signals keyed by entity so dependent views can refresh
// after a commit. Signals are coalesced: a subscriber that has not drained
// its channel yet sees one pending signal, not a backlog.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Entity]map[int]chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Entity]map[int]chan struct{}),
	}
}

// Subscribe registers interest in one entity kind. The returned cancel
// function removes the subscription; it is safe to call more than once.
func (b *Bus) Subscribe(entity Entity) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan struct{}, 1)
	if b.subs[entity] == nil {
		b.subs[entity] = make(map[int]chan struct{})
	}
	b.subs[entity][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[entity]; ok {
			delete(m, id)
		}
	}
	return ch, cancel
}

// Publish signals every subscriber of entity without blocking.
func (b *Bus) Publish(entity Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[entity] {
		select {
		case ch <- struct{}{}:
		default: // subscriber already has a pending signal
		}
	}
}
