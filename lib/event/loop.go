// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"log/slog"
	"sync"
)

// Loop runs posted funcs sequentially on a dedicated goroutine.
type Loop struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewLoop starts a loop. The name appears in log output only. A nil
// logger uses slog.Default().
func NewLoop(name string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	loop := &Loop{
		name:    name,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go loop.run()
	return loop
}

// Post enqueues fn. Returns false if the loop has been closed, in which
// case fn never runs.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	// The wake send happens under the lock so it cannot race with
	// Close closing the channel.
	select {
	case l.wake <- struct{}{}:
	default:
	}
	l.mu.Unlock()
	return true
}

// Close stops the loop after the func currently running (if any)
// returns. Funcs still queued are discarded. Close is idempotent and
// may be called from a func running on the loop.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.wake)
}

// Drain stops accepting new funcs and lets everything already queued
// run before the loop exits.
func (l *Loop) Drain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.wake)
}

// Stopped is closed once the loop goroutine has exited.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

// invoke runs fn, containing panics so one misbehaving handler cannot
// take down the context's loop.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("handler panicked",
				"loop", l.name,
				"panic", recovered,
			)
		}
	}()
	fn()
}
