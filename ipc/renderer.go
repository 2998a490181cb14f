// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/event"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// Context is the sandboxed side of a renderer conduit. host.View
// implements it.
type Context interface {
	Identity() execctx.Identity
	Subscribe(channel string, handler func(port.Message)) event.Subscription
	Unsubscribe(subscription event.Subscription) bool
}

// Renderer is one context's conduit to the router. Every call carries
// the context's identity at the time of the call.
type Renderer struct {
	owner  Context
	router *Router
}

// NewRenderer binds a conduit for owner.
func NewRenderer(owner Context, router *Router) *Renderer {
	return &Renderer{owner: owner, router: router}
}

// Identity returns the identity calls are stamped with.
func (r *Renderer) Identity() execctx.Identity {
	return r.owner.Identity()
}

// Invoke calls the request/response handler for channel and returns
// the encoded reply.
func (r *Renderer) Invoke(ctx context.Context, channel string, args ...any) (codec.RawMessage, error) {
	message, err := NewMessage(args)
	if err != nil {
		return nil, fmt.Errorf("invoking %q: %w", channel, err)
	}
	return r.router.Invoke(ctx, r.owner.Identity(), channel, message)
}

// Send posts a fire-and-forget message on channel.
func (r *Renderer) Send(channel string, args ...any) error {
	message, err := NewMessage(args)
	if err != nil {
		return fmt.Errorf("sending on %q: %w", channel, err)
	}
	return r.router.Send(r.owner.Identity(), channel, message)
}

// SendSync makes a blocking call on channel.
func (r *Renderer) SendSync(channel string, args ...any) (codec.RawMessage, error) {
	message, err := NewMessage(args)
	if err != nil {
		return nil, fmt.Errorf("sync call on %q: %w", channel, err)
	}
	return r.router.SendSync(r.owner.Identity(), channel, message)
}

// PostMessage sends value on channel and transfers ports to the
// privileged side. The caller's handles are detached.
func (r *Renderer) PostMessage(channel string, value any, ports ...*port.Endpoint) error {
	message, err := NewMessage([]any{value}, ports...)
	if err != nil {
		return fmt.Errorf("posting on %q: %w", channel, err)
	}
	return r.router.Send(r.owner.Identity(), channel, message)
}

// On subscribes to pushes on channel. Handlers run on the context's
// loop.
func (r *Renderer) On(channel string, handler func(port.Message)) event.Subscription {
	return r.owner.Subscribe(channel, handler)
}

// Off removes a push subscription.
func (r *Renderer) Off(subscription event.Subscription) bool {
	return r.owner.Unsubscribe(subscription)
}
