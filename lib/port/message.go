// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package port

import (
	"fmt"

	"github.com/bureau-foundation/switchboard/lib/codec"
)

// Message is one unit of traffic: an encoded payload plus zero or more
// endpoints whose ownership moves with the message.
type Message struct {
	// Data is the CBOR encoding of the payload, captured when the
	// message was built. Nil Data decodes as a null payload.
	Data codec.RawMessage

	// Ports are endpoints transferred with the message.
	Ports []*Endpoint
}

// NewMessage clones value into a message and attaches ports. The ports
// are not detached until the message is posted or transferred.
func NewMessage(value any, ports ...*Endpoint) (Message, error) {
	data, err := codec.Clone(value)
	if err != nil {
		return Message{}, fmt.Errorf("encoding message payload: %w", err)
	}
	return Message{Data: data, Ports: ports}, nil
}

// MustMessage is NewMessage for payloads that are known to encode,
// such as string and integer literals. Panics on encoding failure.
func MustMessage(value any, ports ...*Endpoint) Message {
	message, err := NewMessage(value, ports...)
	if err != nil {
		panic(err)
	}
	return message
}

// Decode unmarshals the payload into v. A message without data leaves
// v untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return codec.Unmarshal(m.Data, v)
}

// Value decodes the payload into a generic value.
func (m Message) Value() (any, error) {
	var value any
	if err := m.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// Transfer moves every attached endpoint into a new message. The
// endpoints in m are detached from their current holders; the returned
// message carries fresh handles for the receiver. Fails without
// detaching anything if any attached endpoint is already detached,
// closed, or attached twice.
func (m Message) Transfer() (Message, error) {
	if len(m.Ports) == 0 {
		return Message{Data: m.Data}, nil
	}

	seen := make(map[*Endpoint]bool, len(m.Ports))
	for _, endpoint := range m.Ports {
		if endpoint == nil {
			return Message{}, fmt.Errorf("port: nil endpoint in transfer list")
		}
		if seen[endpoint] {
			return Message{}, fmt.Errorf("port: endpoint %s listed twice in transfer list", endpoint.ID())
		}
		seen[endpoint] = true
		if err := endpoint.transferable(); err != nil {
			return Message{}, err
		}
	}

	moved := make([]*Endpoint, 0, len(m.Ports))
	for _, endpoint := range m.Ports {
		half, err := endpoint.detach()
		if err != nil {
			// Only reachable if the sender raced its own transfer.
			return Message{}, err
		}
		moved = append(moved, &Endpoint{half: half})
	}
	return Message{Data: m.Data, Ports: moved}, nil
}
