// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package port

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/switchboard/lib/event"
)

var (
	// ErrClosed is returned when operating on an endpoint that has been
	// closed locally or whose close notification has been delivered.
	ErrClosed = errors.New("port: endpoint is closed")

	// ErrDetached is returned when operating on a handle whose endpoint
	// was transferred to another holder.
	ErrDetached = errors.New("port: endpoint was transferred")

	// ErrSelfTransfer is returned when a message posted on an endpoint
	// lists that same endpoint in its transfer list.
	ErrSelfTransfer = errors.New("port: endpoint cannot be transferred through itself")
)

// State is the lifecycle state of an endpoint.
type State int

const (
	// Unstarted endpoints queue inbound messages without dispatching.
	Unstarted State = iota

	// Open endpoints dispatch to their message handler.
	Open

	// Closed endpoints neither send nor dispatch.
	Closed
)

// String returns "unstarted", "open", or "closed".
func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Endpoint is one holder's handle on one half of a channel.
type Endpoint struct {
	mu   sync.Mutex
	half *half
}

// half is the transferable state behind an Endpoint handle.
type half struct {
	id        string
	channelID string

	mu         sync.Mutex
	state      State
	inbox      []delivery
	onMessage  func(Message)
	onClose    func()
	loop       *event.Loop
	pumping    bool
	peer       *half
	peerClosed bool
}

// delivery is one inbound queue entry: a message, or the peer's close.
type delivery struct {
	message Message
	close   bool
}

// NewChannel creates a pair of entangled endpoints.
func NewChannel() (*Endpoint, *Endpoint) {
	channelID := uuid.NewString()
	first := &half{id: channelID + "/1", channelID: channelID}
	second := &half{id: channelID + "/2", channelID: channelID}
	first.peer = second
	second.peer = first
	return &Endpoint{half: first}, &Endpoint{half: second}
}

// current returns the half behind the handle, or ErrDetached.
func (e *Endpoint) current() (*half, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.half == nil {
		return nil, ErrDetached
	}
	return e.half, nil
}

// ID identifies this half of the channel for logging. Returns the empty
// string on a detached handle.
func (e *Endpoint) ID() string {
	h, err := e.current()
	if err != nil {
		return ""
	}
	return h.id
}

// ChannelID identifies the channel both halves belong to.
func (e *Endpoint) ChannelID() string {
	h, err := e.current()
	if err != nil {
		return ""
	}
	return h.channelID
}

// State returns the endpoint's lifecycle state. A detached handle
// reports Closed: its holder can no longer use it.
func (e *Endpoint) State() State {
	h, err := e.current()
	if err != nil {
		return Closed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Detached reports whether the endpoint was transferred away.
func (e *Endpoint) Detached() bool {
	_, err := e.current()
	return err != nil
}

// Post sends message to the peer. Endpoints attached to message are
// transferred: the caller's handles are detached when Post returns
// successfully. Posting toward a peer that has closed succeeds and the
// message is discarded.
func (e *Endpoint) Post(message Message) error {
	h, err := e.current()
	if err != nil {
		return err
	}
	for _, attached := range message.Ports {
		if attached == e {
			return ErrSelfTransfer
		}
	}

	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		return ErrClosed
	}
	peer := h.peer
	peerClosed := h.peerClosed
	h.mu.Unlock()

	transferred, err := message.Transfer()
	if err != nil {
		return err
	}

	if peerClosed {
		closeAll(transferred.Ports)
		return nil
	}
	if !peer.enqueue(delivery{message: transferred}) {
		closeAll(transferred.Ports)
	}
	return nil
}

// OnMessage sets the handler for inbound messages, replacing any
// previous handler. A nil handler pauses dispatch; messages keep
// queueing.
func (e *Endpoint) OnMessage(handler func(Message)) error {
	h, err := e.current()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.onMessage = handler
	h.mu.Unlock()
	h.schedule()
	return nil
}

// OnClose sets the handler invoked once when the peer's close is
// dispatched.
func (e *Endpoint) OnClose(handler func()) error {
	h, err := e.current()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.onClose = handler
	h.mu.Unlock()
	return nil
}

// Start begins dispatching queued and future messages. Starting an
// open endpoint is a no-op; starting a closed one returns ErrClosed.
func (e *Endpoint) Start() error {
	h, err := e.current()
	if err != nil {
		return err
	}
	h.mu.Lock()
	switch h.state {
	case Closed:
		h.mu.Unlock()
		return ErrClosed
	case Unstarted:
		h.state = Open
		if h.loop == nil {
			h.loop = event.NewLoop("port "+h.id, nil)
		}
	}
	h.mu.Unlock()
	h.schedule()
	return nil
}

// Close closes the endpoint and notifies the peer. Queued inbound
// messages are discarded. Idempotent.
func (e *Endpoint) Close() error {
	h, err := e.current()
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		return nil
	}
	h.state = Closed
	discarded := h.inbox
	h.inbox = nil
	h.onMessage = nil
	h.onClose = nil
	loop := h.loop
	peer := h.peer
	notifyPeer := !h.peerClosed
	h.peerClosed = true
	h.mu.Unlock()

	if loop != nil {
		loop.Close()
	}
	for _, pending := range discarded {
		closeAll(pending.message.Ports)
	}
	if notifyPeer {
		peer.peerClosing()
	}
	return nil
}

// transferable reports whether the endpoint can be moved right now.
func (e *Endpoint) transferable() error {
	h, err := e.current()
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Closed {
		return ErrClosed
	}
	return nil
}

// detach takes the half away from this handle, resetting the
// holder-specific parts (handlers, started state).
func (e *Endpoint) detach() (*half, error) {
	e.mu.Lock()
	h := e.half
	e.half = nil
	e.mu.Unlock()
	if h == nil {
		return nil, ErrDetached
	}

	h.mu.Lock()
	if h.state == Open {
		h.state = Unstarted
	}
	h.onMessage = nil
	h.onClose = nil
	h.mu.Unlock()
	return h, nil
}

// enqueue appends an inbound delivery. Returns false if this half is
// closed and the delivery was refused.
func (h *half) enqueue(entry delivery) bool {
	h.mu.Lock()
	if h.state == Closed {
		h.mu.Unlock()
		return false
	}
	h.inbox = append(h.inbox, entry)
	h.mu.Unlock()
	h.schedule()
	return true
}

// peerClosing records that the peer closed and queues the close
// notification behind any messages already in flight.
func (h *half) peerClosing() {
	h.mu.Lock()
	if h.peerClosed {
		h.mu.Unlock()
		return
	}
	h.peerClosed = true
	h.mu.Unlock()
	h.enqueue(delivery{close: true})
}

// schedule starts a pump on the loop if there is dispatchable work and
// no pump is already running.
func (h *half) schedule() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pumping || h.state != Open || len(h.inbox) == 0 || h.loop == nil {
		return
	}
	if !h.inbox[0].close && h.onMessage == nil {
		return
	}
	h.pumping = true
	if !h.loop.Post(h.pump) {
		h.pumping = false
	}
}

// pump dispatches queued deliveries one at a time until the queue is
// empty, the endpoint stops being dispatchable, or the close
// notification is delivered.
func (h *half) pump() {
	for {
		h.mu.Lock()
		if h.state != Open || len(h.inbox) == 0 {
			h.pumping = false
			h.mu.Unlock()
			return
		}
		next := h.inbox[0]
		if next.close {
			h.inbox = nil
			h.state = Closed
			h.pumping = false
			closeHandler := h.onClose
			h.onMessage = nil
			h.onClose = nil
			loop := h.loop
			h.mu.Unlock()

			if closeHandler != nil {
				closeHandler()
			}
			loop.Drain()
			return
		}
		handler := h.onMessage
		if handler == nil {
			h.pumping = false
			h.mu.Unlock()
			return
		}
		h.inbox[0] = delivery{}
		h.inbox = h.inbox[1:]
		h.mu.Unlock()

		h.dispatch(handler, next.message)
	}
}

// dispatch runs one message handler. A panicking handler loses that
// message but does not stall the rest of the queue.
func (h *half) dispatch(handler func(Message), message Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("endpoint message handler panicked",
				"endpoint", h.id,
				"panic", recovered,
			)
		}
	}()
	handler(message)
}

// closeAll closes endpoints that can no longer reach a holder, so their
// peers observe termination instead of waiting forever.
func closeAll(endpoints []*Endpoint) {
	for _, endpoint := range endpoints {
		endpoint.Close()
	}
}
