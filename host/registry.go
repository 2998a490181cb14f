// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// ViewConfig describes a view to create.
type ViewConfig struct {
	ID    string
	URL   string
	Trust execctx.Trust
	Title string
}

// Registry creates, tracks, and tears down views. Safe for concurrent
// use.
type Registry struct {
	guard  Guard
	shell  Shell
	logger *slog.Logger

	mu        sync.RWMutex
	views     map[string]*View
	onCreate  []func(*View)
	onDestroy []func(*View)
}

// NewRegistry returns an empty registry. A nil guard denies every
// guarded operation; a nil shell never opens external URLs; a nil
// logger uses slog.Default().
func NewRegistry(guard Guard, shell Shell, logger *slog.Logger) *Registry {
	if guard == nil {
		guard = DenyAll{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		guard:  guard,
		shell:  shell,
		logger: logger,
		views:  make(map[string]*View),
	}
}

// OnCreate registers fn to run for every view created afterward,
// before Create returns. Used to install capability tables ahead of
// any content.
func (r *Registry) OnCreate(fn func(*View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCreate = append(r.onCreate, fn)
}

// OnDestroy registers fn to run for every view torn down afterward,
// before Destroy returns.
func (r *Registry) OnDestroy(fn func(*View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDestroy = append(r.onDestroy, fn)
}

// Create creates and registers a view.
func (r *Registry) Create(config ViewConfig) (*View, error) {
	if config.ID == "" {
		return nil, fmt.Errorf("host: view ID is required")
	}
	identity := execctx.Identity{ID: config.ID, URL: config.URL, Trust: config.Trust}
	view := newView(identity, config.Title, r.guard, r.shell, r.logger)

	r.mu.Lock()
	if _, exists := r.views[config.ID]; exists {
		r.mu.Unlock()
		view.loop.Close()
		return nil, fmt.Errorf("host: view %q already exists", config.ID)
	}
	r.views[config.ID] = view
	hooks := slices.Clone(r.onCreate)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(view)
	}
	r.logger.Info("view created", "view", config.ID, "url", config.URL, "trust", config.Trust.String())
	return view, nil
}

// Lookup returns the live view with the given ID.
func (r *Registry) Lookup(id string) (*View, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	view, ok := r.views[id]
	return view, ok
}

// Destroy tears down and unregisters a view. Returns false if no such
// view exists.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	view, ok := r.views[id]
	delete(r.views, id)
	hooks := slices.Clone(r.onDestroy)
	r.mu.Unlock()
	if !ok {
		return false
	}
	view.destroy()
	for _, hook := range hooks {
		hook(view)
	}
	r.logger.Info("view destroyed", "view", id)
	return true
}

// WindowFor returns the window showing the view with the given ID.
func (r *Registry) WindowFor(id string) (*Window, bool) {
	view, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return view.Window(), true
}

// Push delivers message to the view with the given ID. When the view
// does not exist the attached endpoints are closed and the error wraps
// ErrTargetUnavailable.
func (r *Registry) Push(id, channel string, message port.Message) error {
	view, ok := r.Lookup(id)
	if !ok {
		closePorts(message.Ports)
		return fmt.Errorf("pushing %q to %s: %w", channel, id, ErrTargetUnavailable)
	}
	return view.Deliver(channel, message)
}

// OnceReady runs fn on the view's loop once it is ready. Returns false
// if the view does not exist or has been torn down.
func (r *Registry) OnceReady(id string, fn func()) bool {
	view, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return view.OnceReady(fn)
}

// Done returns the teardown channel of the view with the given ID.
func (r *Registry) Done(id string) (<-chan struct{}, bool) {
	view, ok := r.Lookup(id)
	if !ok {
		return nil, false
	}
	return view.Done(), true
}

// Views returns the identities of every live view, sorted by ID.
func (r *Registry) Views() []execctx.Identity {
	r.mu.RLock()
	identities := make([]execctx.Identity, 0, len(r.views))
	for _, view := range r.views {
		identities = append(identities, view.Identity())
	}
	r.mu.RUnlock()
	sort.Slice(identities, func(i, j int) bool { return identities[i].ID < identities[j].ID })
	return identities
}

// Close destroys every view.
func (r *Registry) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		r.Destroy(id)
	}
}
