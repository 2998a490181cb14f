// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// Channel is the router channel stream requests arrive on.
const Channel = "give-me-a-stream"

// ErrInvalidArgument is returned for requests with a negative,
// non-integral, or oversized count, or without a reply endpoint.
var ErrInvalidArgument = errors.New("relay: invalid argument")

// StreamRequest asks for Payload to be posted Count times.
type StreamRequest struct {
	Payload any
	Count   int64
}

// Options configure a Relay.
type Options struct {
	// MaxCount bounds StreamRequest.Count. Zero means unlimited.
	MaxCount int64

	Logger *slog.Logger
}

// Relay is stateless apart from its configuration and safe for
// concurrent use.
type Relay struct {
	maxCount int64
	logger   *slog.Logger
}

// New returns a relay.
func New(options Options) *Relay {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{maxCount: options.MaxCount, logger: logger}
}

// Stream posts request.Payload on reply request.Count times, in order,
// then closes reply. An invalid request sends nothing. reply is closed
// whatever happens.
func (r *Relay) Stream(request StreamRequest, reply *port.Endpoint) error {
	if reply == nil {
		return fmt.Errorf("%w: no reply endpoint", ErrInvalidArgument)
	}
	defer reply.Close()

	if request.Count < 0 {
		return fmt.Errorf("%w: count %d is negative", ErrInvalidArgument, request.Count)
	}
	if r.maxCount > 0 && request.Count > r.maxCount {
		return fmt.Errorf("%w: count %d exceeds maximum %d", ErrInvalidArgument, request.Count, r.maxCount)
	}
	if request.Count == 0 {
		return nil
	}

	// Every copy carries the same encoded clone.
	message, err := port.NewMessage(request.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	for index := range request.Count {
		if err := reply.Post(message); err != nil {
			return fmt.Errorf("posting message %d of %d: %w", index+1, request.Count, err)
		}
	}
	return nil
}

// Serve handles a give-me-a-stream event. The first argument is a map
// with "count" and "payload" keys ("element" is accepted for payload);
// the message must carry exactly one endpoint. Failures are logged and
// the endpoints closed.
func (r *Relay) Serve(event *ipc.Event) {
	logger := r.logger.With("sender", event.Sender.ID)
	ports := event.Message.Ports
	if len(ports) != 1 {
		logger.Warn("stream request rejected", "error", fmt.Errorf("%w: want 1 endpoint, got %d", ErrInvalidArgument, len(ports)))
		for _, endpoint := range ports {
			endpoint.Close()
		}
		return
	}
	reply := ports[0]

	request, err := decodeRequest(event)
	if err != nil {
		reply.Close()
		logger.Warn("stream request rejected", "error", err)
		return
	}
	if err := r.Stream(request, reply); err != nil {
		logger.Warn("stream failed", "count", request.Count, "error", err)
		return
	}
	logger.Debug("stream complete", "count", request.Count)
}

func decodeRequest(event *ipc.Event) (StreamRequest, error) {
	var fields map[string]any
	if err := event.Args(&fields); err != nil {
		return StreamRequest{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if fields == nil {
		return StreamRequest{}, fmt.Errorf("%w: missing request", ErrInvalidArgument)
	}
	count, err := integer(fields["count"])
	if err != nil {
		return StreamRequest{}, err
	}
	payload, ok := fields["payload"]
	if !ok {
		payload = fields["element"]
	}
	return StreamRequest{Payload: payload, Count: count}, nil
}

// integer accepts any decoded CBOR number with an integral value that
// fits in an int64.
func integer(value any) (int64, error) {
	switch number := value.(type) {
	case int64:
		return number, nil
	case uint64:
		if number > math.MaxInt64 {
			return 0, fmt.Errorf("%w: count %d out of range", ErrInvalidArgument, number)
		}
		return int64(number), nil
	case float64:
		if math.IsNaN(number) || math.IsInf(number, 0) || number != math.Trunc(number) {
			return 0, fmt.Errorf("%w: count %v is not an integer", ErrInvalidArgument, number)
		}
		if number < math.MinInt64 || number >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: count %v out of range", ErrInvalidArgument, number)
		}
		return int64(number), nil
	case nil:
		return 0, fmt.Errorf("%w: missing count", ErrInvalidArgument)
	default:
		return 0, fmt.Errorf("%w: count has type %T", ErrInvalidArgument, value)
	}
}
