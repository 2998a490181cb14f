// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay turns one request into a bounded stream of messages on
// a caller-supplied endpoint.
//
// A sandboxed context creates a channel, keeps one end, and sends the
// other to the coordinator on the give-me-a-stream channel along with a
// request naming a payload and a count. The relay posts the payload
// that many times on the received end and then closes it. The close is
// the end-of-stream marker: the requester sees every message followed
// by a close event, and never has to count.
//
// The reply endpoint is closed on every path, including invalid
// requests, so a requester waiting for the close is never left hanging.
package relay
