// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// Channels used by the startup handshake.
const (
	ChannelAsyncMessage = "asynchronous-message"
	ChannelAsyncReply   = "asynchronous-reply"
	ChannelPort         = "port"
)

// HandshakeConduit is a Conduit that can also transfer endpoints.
type HandshakeConduit interface {
	Conduit
	PostMessage(channel string, value any, ports ...*port.Endpoint) error
}

// Handshake runs a context's startup exchange with the privileged
// side: an asynchronous ping answered by a push, a blocking ping, and
// an endpoint handed over with one message already queued on it. The
// kept end is closed after the queued message, so the receiver sees
// the message and then the close. Returns the blocking reply.
func Handshake(conduit HandshakeConduit, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conduit.On(ChannelAsyncReply, func(message port.Message) {
		logger.Debug("asynchronous reply", "channel", ChannelAsyncReply)
	})
	if err := conduit.Send(ChannelAsyncMessage, "ping"); err != nil {
		return "", fmt.Errorf("handshake: %w", err)
	}

	raw, err := conduit.SendSync(ChannelSyncEcho, "ping")
	if err != nil {
		return "", fmt.Errorf("handshake: %w", err)
	}
	var reply string
	if err := codec.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("handshake: decoding sync reply: %w", err)
	}

	kept, sent := port.NewChannel()
	if err := kept.Post(port.MustMessage(map[string]any{"answer": 42})); err != nil {
		return "", fmt.Errorf("handshake: %w", err)
	}
	if err := conduit.PostMessage(ChannelPort, nil, sent); err != nil {
		kept.Close()
		return "", fmt.Errorf("handshake: %w", err)
	}
	kept.Close()
	return reply, nil
}
