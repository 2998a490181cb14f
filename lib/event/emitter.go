// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"sync"
	"sync/atomic"
)

// Subscription identifies one registered handler. The zero value is
// not a valid subscription; Unsubscribe ignores it.
type Subscription struct {
	name string
	id   uint64
}

// Name returns the event name the subscription was registered for.
func (s Subscription) Name() string { return s.name }

// Emitter dispatches named events of type T to subscribers on a Loop.
type Emitter[T any] struct {
	loop *Loop

	mu          sync.Mutex
	nextID      uint64
	subscribers map[string][]*subscriber[T]
}

type subscriber[T any] struct {
	id        uint64
	handler   func(T)
	once      bool
	cancelled atomic.Bool

	// scheduled marks a once subscriber whose delivery is queued. It
	// stays registered until that delivery runs. Guarded by the
	// emitter's mu.
	scheduled bool
}

// NewEmitter returns an emitter delivering on loop.
func NewEmitter[T any](loop *Loop) *Emitter[T] {
	return &Emitter[T]{
		loop:        loop,
		subscribers: make(map[string][]*subscriber[T]),
	}
}

// Subscribe registers handler for every future emission of name.
func (e *Emitter[T]) Subscribe(name string, handler func(T)) Subscription {
	return e.add(name, handler, false)
}

// Once registers handler for the next emission of name only.
func (e *Emitter[T]) Once(name string, handler func(T)) Subscription {
	return e.add(name, handler, true)
}

func (e *Emitter[T]) add(name string, handler func(T), once bool) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	entry := &subscriber[T]{id: e.nextID, handler: handler, once: once}
	e.subscribers[name] = append(e.subscribers[name], entry)
	return Subscription{name: name, id: entry.id}
}

// Unsubscribe removes a subscription. Deliveries already scheduled but
// not yet run are suppressed, including a pending Once delivery.
// Returns false if the subscription was not registered (already
// removed, already delivered, or zero).
func (e *Emitter[T]) Unsubscribe(subscription Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(subscription.name, subscription.id)
}

func (e *Emitter[T]) removeLocked(name string, id uint64) bool {
	entries := e.subscribers[name]
	for i, entry := range entries {
		if entry.id != id {
			continue
		}
		entry.cancelled.Store(true)
		e.subscribers[name] = append(entries[:i:i], entries[i+1:]...)
		if len(e.subscribers[name]) == 0 {
			delete(e.subscribers, name)
		}
		return true
	}
	return false
}

// Emit schedules value for every current subscriber of name, in
// subscription order. A Once subscriber is scheduled for the first
// emission only. Returns the number of subscribers scheduled; zero
// means nobody was listening and the value was dropped.
func (e *Emitter[T]) Emit(name string, value T) int {
	e.mu.Lock()
	entries := e.subscribers[name]
	snapshot := make([]*subscriber[T], 0, len(entries))
	for _, entry := range entries {
		if entry.once {
			if entry.scheduled {
				continue
			}
			entry.scheduled = true
		}
		snapshot = append(snapshot, entry)
	}
	e.mu.Unlock()

	scheduled := 0
	for _, entry := range snapshot {
		posted := e.loop.Post(func() { e.deliver(name, entry, value) })
		if posted {
			scheduled++
		}
	}
	return scheduled
}

func (e *Emitter[T]) deliver(name string, entry *subscriber[T], value T) {
	if entry.once {
		e.mu.Lock()
		live := !entry.cancelled.Load() && e.removeLocked(name, entry.id)
		e.mu.Unlock()
		if !live {
			return
		}
	} else if entry.cancelled.Load() {
		return
	}
	entry.handler(value)
}

// Count returns the number of live subscribers for name.
func (e *Emitter[T]) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscribers[name])
}
