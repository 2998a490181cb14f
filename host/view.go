// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/event"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// SubviewPreferences are the settings a sub-view is created with.
type SubviewPreferences struct {
	// Preload is a script run in the sub-view before its content.
	Preload string

	// HostIntegration exposes host primitives directly to content.
	HostIntegration bool

	// ContextIsolation separates the preload's world from content.
	ContextIsolation bool
}

// Guard decides the view operations that leave the sandbox. Package
// gate provides the implementation.
type Guard interface {
	AllowNavigation(requester execctx.Identity, target string) bool
	AttachSubview(requester execctx.Identity, src string, preferences *SubviewPreferences) bool
	AllowPermission(requester execctx.Identity, kind string) bool
	AllowExternal(requester execctx.Identity, target string) bool
}

// DenyAll is a Guard that denies everything.
type DenyAll struct{}

func (DenyAll) AllowNavigation(execctx.Identity, string) bool { return false }
func (DenyAll) AttachSubview(_ execctx.Identity, _ string, preferences *SubviewPreferences) bool {
	return false
}
func (DenyAll) AllowPermission(execctx.Identity, string) bool { return false }
func (DenyAll) AllowExternal(execctx.Identity, string) bool   { return false }

// Lifecycle event names emitted on a view.
const (
	EventReadyToShow   = "ready-to-show"
	EventDidFinishLoad = "did-finish-load"
	EventDestroyed     = "destroyed"
)

const mainWorldEvent = "message"

// View is one execution context. Push listeners, main-world listeners,
// and ready callbacks all run on the view's loop, one at a time.
type View struct {
	window *Window
	guard  Guard
	shell  Shell
	logger *slog.Logger

	loop      *event.Loop
	pushes    *event.Emitter[port.Message]
	mainWorld *event.Emitter[port.Message]
	lifecycle *event.Emitter[struct{}]

	mu        sync.Mutex
	identity  execctx.Identity
	ready     bool
	destroyed bool
	waiters   []func()

	loaded   chan struct{}
	loadOnce sync.Once
	tornDown chan struct{}
}

func newView(identity execctx.Identity, title string, guard Guard, shell Shell, logger *slog.Logger) *View {
	loop := event.NewLoop("view "+identity.ID, logger)
	window := &Window{}
	window.SetTitle(title)
	return &View{
		window:    window,
		guard:     guard,
		shell:     shell,
		logger:    logger.With("view", identity.ID),
		loop:      loop,
		pushes:    event.NewEmitter[port.Message](loop),
		mainWorld: event.NewEmitter[port.Message](loop),
		lifecycle: event.NewEmitter[struct{}](loop),
		identity:  identity,
		loaded:    make(chan struct{}),
		tornDown:  make(chan struct{}),
	}
}

// Identity returns the view's current identity. The URL changes when
// a navigation is allowed.
func (v *View) Identity() execctx.Identity {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.identity
}

// ID returns the view's frame identifier.
func (v *View) ID() string {
	return v.Identity().ID
}

// Window returns the window the view is shown in.
func (v *View) Window() *Window {
	return v.window
}

// Loop returns the view's event loop.
func (v *View) Loop() *event.Loop {
	return v.loop
}

// Subscribe registers handler for pushes on channel.
func (v *View) Subscribe(channel string, handler func(port.Message)) event.Subscription {
	return v.pushes.Subscribe(channel, handler)
}

// Unsubscribe removes a push subscription.
func (v *View) Unsubscribe(subscription event.Subscription) bool {
	return v.pushes.Unsubscribe(subscription)
}

// OnLifecycle registers handler for one of the lifecycle events.
func (v *View) OnLifecycle(name string, handler func()) event.Subscription {
	return v.lifecycle.Subscribe(name, func(struct{}) { handler() })
}

// Deliver pushes message to the view's listeners on channel. Attached
// endpoints are transferred into the view. If the view is torn down,
// or nobody listens on channel, the endpoints are closed so their
// peers observe termination.
func (v *View) Deliver(channel string, message port.Message) error {
	if v.Destroyed() {
		closePorts(message.Ports)
		return fmt.Errorf("pushing %q to %s: %w", channel, v.ID(), ErrTargetUnavailable)
	}
	moved, err := message.Transfer()
	if err != nil {
		return fmt.Errorf("pushing %q to %s: %w", channel, v.ID(), err)
	}
	if v.pushes.Emit(channel, moved) == 0 {
		v.logger.Debug("push with no listener dropped", "channel", channel, "ports", len(moved.Ports))
		closePorts(moved.Ports)
	}
	return nil
}

// MarkReady fires the one-shot ready-to-show signal. Later calls do
// nothing.
func (v *View) MarkReady() {
	v.mu.Lock()
	if v.ready || v.destroyed {
		v.mu.Unlock()
		return
	}
	v.ready = true
	waiters := v.waiters
	v.waiters = nil
	v.mu.Unlock()

	for _, waiter := range waiters {
		v.loop.Post(waiter)
	}
	v.lifecycle.Emit(EventReadyToShow, struct{}{})
}

// OnceReady runs fn on the view's loop once the view is ready, or
// right away (still on the loop) if it already is. Returns false, and
// never runs fn, if the view has been torn down.
func (v *View) OnceReady(fn func()) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.destroyed {
		return false
	}
	if v.ready {
		return v.loop.Post(fn)
	}
	v.waiters = append(v.waiters, fn)
	return true
}

// FinishLoad fires the one-shot load-complete signal.
func (v *View) FinishLoad() {
	first := false
	v.loadOnce.Do(func() {
		close(v.loaded)
		first = true
	})
	if first {
		v.lifecycle.Emit(EventDidFinishLoad, struct{}{})
	}
}

// Loaded is closed once the view has finished loading.
func (v *View) Loaded() <-chan struct{} {
	return v.loaded
}

// Done is closed when the view is torn down.
func (v *View) Done() <-chan struct{} {
	return v.tornDown
}

// Destroyed reports whether the view has been torn down.
func (v *View) Destroyed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.destroyed
}

// destroy tears the view down. Pending ready callbacks are dropped;
// destroyed listeners run before the loop drains.
func (v *View) destroy() {
	v.mu.Lock()
	if v.destroyed {
		v.mu.Unlock()
		return
	}
	v.destroyed = true
	v.waiters = nil
	v.mu.Unlock()

	v.lifecycle.Emit(EventDestroyed, struct{}{})
	close(v.tornDown)
	v.loop.Drain()
}

// Navigate loads target in the view if the guard allows it. A denied
// navigation leaves the current document in place.
func (v *View) Navigate(target string) bool {
	identity := v.Identity()
	if !v.guard.AllowNavigation(identity, target) {
		return false
	}
	v.mu.Lock()
	v.identity.URL = target
	v.mu.Unlock()
	v.logger.Info("view navigated", "url", target)
	return true
}

// AttachSubview asks to embed a sub-view loading src. Preferences are
// sanitized by the guard whether or not the attach is allowed.
func (v *View) AttachSubview(src string, preferences *SubviewPreferences) bool {
	return v.guard.AttachSubview(v.Identity(), src, preferences)
}

// RequestPermission asks for a permission of the given kind.
func (v *View) RequestPermission(kind string) bool {
	return v.guard.AllowPermission(v.Identity(), kind)
}

// OpenWindow handles a request from content to open a new window. No
// window is ever created; if the guard allows target as an external
// URL it is handed to the shell in the background. Always returns
// false.
func (v *View) OpenWindow(target string) bool {
	if v.shell == nil || !v.guard.AllowExternal(v.Identity(), target) {
		return false
	}
	go func() {
		if err := v.shell.OpenExternal(target); err != nil {
			v.logger.Warn("opening external URL failed", "url", target, "error", err)
		}
	}()
	return false
}

// PostToMainWorld forwards message from the isolated world into the
// page's main world, transferring any attached endpoints.
func (v *View) PostToMainWorld(message port.Message) error {
	if v.Destroyed() {
		closePorts(message.Ports)
		return fmt.Errorf("posting to main world of %s: %w", v.ID(), ErrTargetUnavailable)
	}
	moved, err := message.Transfer()
	if err != nil {
		return fmt.Errorf("posting to main world of %s: %w", v.ID(), err)
	}
	if v.mainWorld.Emit(mainWorldEvent, moved) == 0 {
		closePorts(moved.Ports)
	}
	return nil
}

// OnMainWorldMessage registers a main-world message listener.
func (v *View) OnMainWorldMessage(handler func(port.Message)) event.Subscription {
	return v.mainWorld.Subscribe(mainWorldEvent, handler)
}

func closePorts(endpoints []*port.Endpoint) {
	for _, endpoint := range endpoints {
		if endpoint != nil && !endpoint.Detached() {
			endpoint.Close()
		}
	}
}
