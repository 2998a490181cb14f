// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/port"
)

// ChannelMainWorldPort carries an endpoint from the privileged side to
// a view's main world.
const ChannelMainWorldPort = "main-world-port"

// Page is the part of a view the bridge needs: its load signal, its
// teardown signal, and its main world.
type Page interface {
	Loaded() <-chan struct{}
	Done() <-chan struct{}
	PostToMainWorld(message port.Message) error
}

// Bridge is what Install puts in a context.
type Bridge struct {
	API      *Table
	Versions *Table
}

// Options adjust Install. The zero value installs the standard API.
type Options struct {
	// API replaces StandardAPI when non-nil.
	API []Declaration

	Logger *slog.Logger
}

// Install builds the API and versions tables for a context and
// registers the main-world port forwarder on its conduit. Call it when
// the context is created, before its content runs.
func Install(page Page, conduit Conduit, options Options) (*Bridge, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	declarations := options.API
	if declarations == nil {
		declarations = StandardAPI()
	}

	api, err := NewTable(conduit, declarations...)
	if err != nil {
		return nil, fmt.Errorf("building API table: %w", err)
	}
	versions, err := NewTable(nil, StandardVersions()...)
	if err != nil {
		return nil, fmt.Errorf("building versions table: %w", err)
	}

	forwarder := &mainWorldForwarder{page: page, logger: logger}
	conduit.On(ChannelMainWorldPort, forwarder.forward)

	return &Bridge{API: api, Versions: versions}, nil
}

// mainWorldForwarder holds main-world-port messages until the page has
// loaded, then forwards them in arrival order. Messages that arrive
// after load go straight through.
type mainWorldForwarder struct {
	page   Page
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	waiting bool
	pending []port.Message
}

func (f *mainWorldForwarder) forward(message port.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		f.post(message)
		return
	}
	f.pending = append(f.pending, message)
	if !f.waiting {
		f.waiting = true
		go f.wait()
	}
}

func (f *mainWorldForwarder) wait() {
	select {
	case <-f.page.Loaded():
	case <-f.page.Done():
		f.mu.Lock()
		pending := f.pending
		f.pending = nil
		f.mu.Unlock()
		for _, message := range pending {
			closeAll(message.Ports)
		}
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = true
	for _, message := range f.pending {
		f.post(message)
	}
	f.pending = nil
}

// post must be called with f.mu held.
func (f *mainWorldForwarder) post(message port.Message) {
	forwarded, err := port.NewMessage(ChannelMainWorldPort, message.Ports...)
	if err != nil {
		closeAll(message.Ports)
		f.logger.Error("encoding main world message failed", "error", err)
		return
	}
	if err := f.page.PostToMainWorld(forwarded); err != nil {
		f.logger.Debug("main world port not forwarded", "error", err)
	}
}

func closeAll(endpoints []*port.Endpoint) {
	for _, endpoint := range endpoints {
		if endpoint != nil && !endpoint.Detached() {
			endpoint.Close()
		}
	}
}
