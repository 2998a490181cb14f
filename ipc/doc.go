// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc carries named-channel traffic between sandboxed contexts
// and the privileged side.
//
// The privileged side owns a [Router]. Handlers register per channel in
// one of three shapes:
//
//   - [Router.Handle]: request/response. Each invocation runs on its
//     own goroutine with a context, so a handler that waits (on a file
//     dialog, say) never stalls anything else.
//   - [Router.On]: fire-and-forget. Listeners run one at a time, in
//     arrival order, on the router's loop.
//   - [Router.HandleSync]: legacy blocking calls. The caller waits for
//     the reply; payloads over the configured limit are rejected.
//
// Each sandboxed context reaches the router through its own
// [Renderer], which stamps every call with the context's current
// identity. A context cannot claim another's identity: the Renderer
// reads it from the context, never from the payload.
//
// Payloads are argument lists encoded as a CBOR array ([NewMessage],
// [DecodeArgs]); the encoding is a structured clone, so neither side
// can observe later mutation of the other's values. Endpoints attached
// to a message move with it.
package ipc
