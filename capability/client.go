// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bureau-foundation/switchboard/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 45 * time.Second
	maxResponseSize     = 1024 * 1024
)

// RemoteError is returned when the server answers ok=false.
type RemoteError struct {
	Action     string
	Capability string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Capability == "" {
		return fmt.Sprintf("capability socket error on %q: %s", e.Action, e.Message)
	}
	return fmt.Sprintf("capability socket error on %s %q: %s", e.Action, e.Capability, e.Message)
}

// Client calls a SocketServer. Each call opens its own connection.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Describe lists the served table's descriptors.
func (c *Client) Describe(ctx context.Context) ([]Descriptor, error) {
	var descriptors []Descriptor
	if err := c.call(ctx, ActionDescribe, "", nil, &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// Value reads a value capability into result.
func (c *Client) Value(ctx context.Context, name string, result any) error {
	return c.call(ctx, ActionValue, name, nil, result)
}

// Invoke calls a request/response capability and decodes the reply
// into result (ignored when nil).
func (c *Client) Invoke(ctx context.Context, name string, result any, args ...any) error {
	return c.call(ctx, ActionInvoke, name, args, result)
}

// Send calls a fire-and-forget capability.
func (c *Client) Send(ctx context.Context, name string, args ...any) error {
	return c.call(ctx, ActionSend, name, args, nil)
}

// SendSync calls a blocking capability and decodes the reply into
// result.
func (c *Client) SendSync(ctx context.Context, name string, result any, args ...any) error {
	return c.call(ctx, ActionSync, name, args, result)
}

func (c *Client) call(ctx context.Context, action, name string, args []any, result any) error {
	encodedArgs := make([]codec.RawMessage, len(args))
	for index, arg := range args {
		encoded, err := codec.Marshal(arg)
		if err != nil {
			return fmt.Errorf("encoding argument %d for %q: %w", index, name, err)
		}
		encodedArgs[index] = encoded
	}

	response, err := c.send(ctx, request{Action: action, Capability: name, Args: encodedArgs})
	if err != nil {
		return fmt.Errorf("calling %s %q on %s: %w", action, name, c.socketPath, err)
	}
	if !response.OK {
		return &RemoteError{Action: action, Capability: name, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response for %s %q: %w", action, name, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, outgoing request) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(outgoing); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
