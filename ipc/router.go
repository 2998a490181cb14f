// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/event"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// DefaultSyncPayloadLimit is the largest encoded payload a blocking
// call may carry when Options.SyncPayloadLimit is zero.
const DefaultSyncPayloadLimit = 4096

var (
	// ErrNoHandler is returned for invoke and sync calls on a channel
	// nobody handles.
	ErrNoHandler = errors.New("ipc: no handler registered")

	// ErrPayloadTooLarge is returned for sync calls over the payload
	// limit.
	ErrPayloadTooLarge = errors.New("ipc: payload too large for a synchronous call")

	// ErrRouterClosed is returned once the router has shut down.
	ErrRouterClosed = errors.New("ipc: router closed")
)

// Pusher delivers a message to a context by ID. host.Registry
// implements it.
type Pusher interface {
	Push(id, channel string, message port.Message) error
}

// InvokeFunc handles a request/response call. The returned value is
// encoded as the reply.
type InvokeFunc func(ctx context.Context, event *Event) (any, error)

// SyncFunc handles a blocking call.
type SyncFunc func(event *Event) (any, error)

// ListenFunc handles a fire-and-forget message.
type ListenFunc func(event *Event)

// Event is one inbound message as seen by a handler.
type Event struct {
	// Sender is the identity of the context that sent the message, as
	// it was when the message was sent.
	Sender execctx.Identity

	// Channel is the channel the message arrived on.
	Channel string

	// Message is the payload and any transferred endpoints. The
	// endpoints belong to the handler.
	Message port.Message

	router *Router
}

// Args decodes the message's arguments into targets.
func (e *Event) Args(targets ...any) error {
	return DecodeArgs(e.Message, targets...)
}

// Reply pushes args to the sender on channel.
func (e *Event) Reply(channel string, args ...any) error {
	return e.router.Push(e.Sender.ID, channel, args...)
}

// Options configure a Router.
type Options struct {
	// SyncPayloadLimit bounds sync call payloads, in encoded bytes.
	// Zero uses DefaultSyncPayloadLimit.
	SyncPayloadLimit int

	Logger *slog.Logger
}

// Router dispatches channel traffic to privileged-side handlers.
type Router struct {
	pusher    Pusher
	syncLimit int
	logger    *slog.Logger

	loop      *event.Loop
	listeners *event.Emitter[*Event]

	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup

	mu           sync.RWMutex
	closed       bool
	handlers     map[string]InvokeFunc
	syncHandlers map[string]SyncFunc
}

// NewRouter returns a router that pushes to contexts through pusher.
func NewRouter(pusher Pusher, options Options) *Router {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	syncLimit := options.SyncPayloadLimit
	if syncLimit <= 0 {
		syncLimit = DefaultSyncPayloadLimit
	}
	loop := event.NewLoop("router", logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		pusher:       pusher,
		syncLimit:    syncLimit,
		logger:       logger,
		loop:         loop,
		listeners:    event.NewEmitter[*Event](loop),
		ctx:          ctx,
		cancel:       cancel,
		handlers:     make(map[string]InvokeFunc),
		syncHandlers: make(map[string]SyncFunc),
	}
}

// Handle registers the request/response handler for channel. Panics if
// the channel already has one.
func (r *Router) Handle(channel string, handler InvokeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[channel]; exists {
		panic(fmt.Sprintf("ipc.Router: duplicate handler for channel %q", channel))
	}
	r.handlers[channel] = handler
}

// HandleSync registers the blocking handler for channel. Panics if the
// channel already has one.
func (r *Router) HandleSync(channel string, handler SyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.syncHandlers[channel]; exists {
		panic(fmt.Sprintf("ipc.Router: duplicate sync handler for channel %q", channel))
	}
	r.syncHandlers[channel] = handler
}

// On registers a fire-and-forget listener for channel. Any number of
// listeners may share a channel.
func (r *Router) On(channel string, listener ListenFunc) event.Subscription {
	return r.listeners.Subscribe(channel, listener)
}

// Off removes a listener.
func (r *Router) Off(subscription event.Subscription) bool {
	return r.listeners.Unsubscribe(subscription)
}

// Invoke runs the handler for channel on behalf of sender and returns
// the encoded reply. Blocks until the handler returns or ctx is done.
func (r *Router) Invoke(ctx context.Context, sender execctx.Identity, channel string, message port.Message) (codec.RawMessage, error) {
	r.mu.RLock()
	handler, exists := r.handlers[channel]
	closed := r.closed
	if !closed {
		r.active.Add(1)
	}
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}
	if !exists {
		r.active.Done()
		return nil, fmt.Errorf("invoking %q: %w", channel, ErrNoHandler)
	}

	type outcome struct {
		reply codec.RawMessage
		err   error
	}
	done := make(chan outcome, 1)
	handlerContext, cancel := mergeContexts(ctx, r.ctx)
	go func() {
		defer r.active.Done()
		defer cancel()
		reply, err := r.runInvoke(handlerContext, handler, &Event{
			Sender:  sender,
			Channel: channel,
			Message: message,
			router:  r,
		})
		done <- outcome{reply, err}
	}()

	select {
	case result := <-done:
		return result.reply, result.err
	case <-handlerContext.Done():
		return nil, fmt.Errorf("invoking %q: %w", channel, handlerContext.Err())
	}
}

func (r *Router) runInvoke(ctx context.Context, handler InvokeFunc, event *Event) (reply codec.RawMessage, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("invoke handler panicked", "channel", event.Channel, "panic", recovered)
			err = fmt.Errorf("invoking %q: handler panicked", event.Channel)
		}
	}()
	value, err := handler(ctx, event)
	if err != nil {
		r.logger.Debug("invoke handler failed", "channel", event.Channel, "sender", event.Sender.ID, "error", err)
		return nil, fmt.Errorf("invoking %q: %w", event.Channel, err)
	}
	return encodeReply(event.Channel, value)
}

// Send delivers a fire-and-forget message to every listener on
// channel. Attached endpoints are transferred; if nobody listens they
// are closed.
func (r *Router) Send(sender execctx.Identity, channel string, message port.Message) error {
	if r.isClosed() {
		closePorts(message.Ports)
		return ErrRouterClosed
	}
	moved, err := message.Transfer()
	if err != nil {
		return fmt.Errorf("sending on %q: %w", channel, err)
	}
	scheduled := r.listeners.Emit(channel, &Event{
		Sender:  sender,
		Channel: channel,
		Message: moved,
		router:  r,
	})
	if scheduled == 0 {
		r.logger.Debug("message with no listener dropped", "channel", channel, "sender", sender.ID)
		closePorts(moved.Ports)
	}
	return nil
}

// SendSync runs the blocking handler for channel and returns the
// encoded reply.
func (r *Router) SendSync(sender execctx.Identity, channel string, message port.Message) (reply codec.RawMessage, err error) {
	if r.isClosed() {
		return nil, ErrRouterClosed
	}
	if len(message.Data) > r.syncLimit {
		return nil, fmt.Errorf("sync call on %q with %d bytes (limit %d): %w",
			channel, len(message.Data), r.syncLimit, ErrPayloadTooLarge)
	}
	if len(message.Ports) > 0 {
		return nil, fmt.Errorf("sync call on %q: endpoints cannot be transferred synchronously", channel)
	}
	r.mu.RLock()
	handler, exists := r.syncHandlers[channel]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("sync call on %q: %w", channel, ErrNoHandler)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("sync handler panicked", "channel", channel, "panic", recovered)
			reply, err = nil, fmt.Errorf("sync call on %q: handler panicked", channel)
		}
	}()
	value, err := handler(&Event{Sender: sender, Channel: channel, Message: message, router: r})
	if err != nil {
		return nil, fmt.Errorf("sync call on %q: %w", channel, err)
	}
	return encodeReply(channel, value)
}

// Push sends args to the context with the given ID on channel.
func (r *Router) Push(id, channel string, args ...any) error {
	return r.PushPorts(id, channel, args, nil)
}

// PushPorts sends args and transfers ports to the context with the
// given ID. If the context is gone the ports are closed.
func (r *Router) PushPorts(id, channel string, args []any, ports []*port.Endpoint) error {
	message, err := NewMessage(args, ports...)
	if err != nil {
		closePorts(ports)
		return fmt.Errorf("pushing %q to %s: %w", channel, id, err)
	}
	if r.pusher == nil {
		closePorts(ports)
		return fmt.Errorf("pushing %q to %s: router has no pusher", channel, id)
	}
	return r.pusher.Push(id, channel, message)
}

// Close cancels running invoke handlers, waits for them, and lets
// queued listener deliveries finish.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.active.Wait()
	r.loop.Drain()
	<-r.loop.Stopped()
}

func (r *Router) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func encodeReply(channel string, value any) (codec.RawMessage, error) {
	reply, err := codec.Clone(value)
	if err != nil {
		return nil, fmt.Errorf("encoding reply on %q: %w", channel, err)
	}
	return reply, nil
}

// mergeContexts returns a context cancelled when either parent is.
func mergeContexts(first, second context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(first)
	stop := context.AfterFunc(second, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

func closePorts(endpoints []*port.Endpoint) {
	for _, endpoint := range endpoints {
		if endpoint != nil && !endpoint.Detached() {
			endpoint.Close()
		}
	}
}
