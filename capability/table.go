// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/event"
	"github.com/bureau-foundation/switchboard/lib/port"
)

var (
	// ErrUnknownCapability is returned for names the table does not
	// declare, and for calls that do not match the entry's shape.
	ErrUnknownCapability = errors.New("capability: unknown capability")

	// ErrArity is returned when a call passes the wrong number of
	// arguments.
	ErrArity = errors.New("capability: wrong number of arguments")
)

// Shape is how a capability is called.
type Shape int

const (
	ShapeValue Shape = iota
	ShapeInvoke
	ShapeSend
	ShapeSync
	ShapeSubscribe
)

// String returns the shape's name.
func (s Shape) String() string {
	switch s {
	case ShapeValue:
		return "value"
	case ShapeInvoke:
		return "invoke"
	case ShapeSend:
		return "send"
	case ShapeSync:
		return "sync"
	case ShapeSubscribe:
		return "subscribe"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Descriptor describes one table entry.
type Descriptor struct {
	Name    string `cbor:"name"`
	Shape   Shape  `cbor:"shape"`
	Arity   int    `cbor:"arity"`
	Returns bool   `cbor:"returns"`

	// Channel is the router channel an operation forwards to. Empty
	// for values.
	Channel string `cbor:"channel,omitempty"`
}

// Declaration is one entry to build into a table.
type Declaration struct {
	descriptor Descriptor
	value      any
}

// Descriptor returns the entry's descriptor.
func (d Declaration) Descriptor() Descriptor {
	return d.descriptor
}

// Value declares a no-argument accessor for a snapshot of value.
func Value(name string, value any) Declaration {
	return Declaration{
		descriptor: Descriptor{Name: name, Shape: ShapeValue, Returns: true},
		value:      value,
	}
}

// Invoke declares a request/response operation on channel.
func Invoke(name, channel string, arity int) Declaration {
	return Declaration{descriptor: Descriptor{Name: name, Shape: ShapeInvoke, Arity: arity, Returns: true, Channel: channel}}
}

// Send declares a fire-and-forget operation on channel.
func Send(name, channel string, arity int) Declaration {
	return Declaration{descriptor: Descriptor{Name: name, Shape: ShapeSend, Arity: arity, Channel: channel}}
}

// Sync declares a blocking operation on channel.
func Sync(name, channel string, arity int) Declaration {
	return Declaration{descriptor: Descriptor{Name: name, Shape: ShapeSync, Arity: arity, Returns: true, Channel: channel}}
}

// Subscribe declares a push subscription on channel. The one argument
// is the handler.
func Subscribe(name, channel string) Declaration {
	return Declaration{descriptor: Descriptor{Name: name, Shape: ShapeSubscribe, Arity: 1, Channel: channel}}
}

// Conduit is the context's path to the router. ipc.Renderer
// implements it.
type Conduit interface {
	Invoke(ctx context.Context, channel string, args ...any) (codec.RawMessage, error)
	Send(channel string, args ...any) error
	SendSync(channel string, args ...any) (codec.RawMessage, error)
	On(channel string, handler func(port.Message)) event.Subscription
	Off(subscription event.Subscription) bool
}

type entry struct {
	descriptor Descriptor
	snapshot   codec.RawMessage
}

// Table is a closed set of capabilities. Safe for concurrent use; it
// never changes after NewTable returns.
type Table struct {
	conduit Conduit
	entries map[string]entry
	names   []string
}

// NewTable builds a table. Names must be unique and non-empty.
// Value snapshots are encoded now, so later changes to the declared
// values are not visible through the table. conduit may be nil for a
// table of values only.
func NewTable(conduit Conduit, declarations ...Declaration) (*Table, error) {
	table := &Table{
		conduit: conduit,
		entries: make(map[string]entry, len(declarations)),
	}
	for _, declaration := range declarations {
		descriptor := declaration.descriptor
		if descriptor.Name == "" {
			return nil, fmt.Errorf("capability: declaration with empty name")
		}
		if _, exists := table.entries[descriptor.Name]; exists {
			return nil, fmt.Errorf("capability: %q declared twice", descriptor.Name)
		}
		built := entry{descriptor: descriptor}
		if descriptor.Shape == ShapeValue {
			snapshot, err := codec.Clone(declaration.value)
			if err != nil {
				return nil, fmt.Errorf("capability: encoding value %q: %w", descriptor.Name, err)
			}
			built.snapshot = snapshot
		} else {
			if descriptor.Channel == "" {
				return nil, fmt.Errorf("capability: operation %q has no channel", descriptor.Name)
			}
			if conduit == nil {
				return nil, fmt.Errorf("capability: operation %q declared without a conduit", descriptor.Name)
			}
		}
		table.entries[descriptor.Name] = built
		table.names = append(table.names, descriptor.Name)
	}
	sort.Strings(table.names)
	return table, nil
}

// Names returns the declared names, sorted. The slice is a copy.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Descriptors returns every descriptor, sorted by name.
func (t *Table) Descriptors() []Descriptor {
	descriptors := make([]Descriptor, 0, len(t.names))
	for _, name := range t.names {
		descriptors = append(descriptors, t.entries[name].descriptor)
	}
	return descriptors
}

// Describe returns the descriptor for name.
func (t *Table) Describe(name string) (Descriptor, bool) {
	entry, ok := t.entries[name]
	return entry.descriptor, ok
}

func (t *Table) lookup(name string, shape Shape, argumentCount int) (Descriptor, error) {
	entry, ok := t.entries[name]
	if !ok || entry.descriptor.Shape != shape {
		return Descriptor{}, fmt.Errorf("%w: %s %q", ErrUnknownCapability, shape, name)
	}
	if argumentCount != entry.descriptor.Arity {
		return Descriptor{}, fmt.Errorf("%w: %q takes %d, got %d", ErrArity, name, entry.descriptor.Arity, argumentCount)
	}
	return entry.descriptor, nil
}

// Value returns the snapshot for a value capability.
func (t *Table) Value(name string) (codec.RawMessage, error) {
	if _, err := t.lookup(name, ShapeValue, 0); err != nil {
		return nil, err
	}
	return append(codec.RawMessage(nil), t.entries[name].snapshot...), nil
}

// Invoke calls a request/response capability.
func (t *Table) Invoke(ctx context.Context, name string, args ...any) (codec.RawMessage, error) {
	descriptor, err := t.lookup(name, ShapeInvoke, len(args))
	if err != nil {
		return nil, err
	}
	return t.conduit.Invoke(ctx, descriptor.Channel, args...)
}

// Send calls a fire-and-forget capability.
func (t *Table) Send(name string, args ...any) error {
	descriptor, err := t.lookup(name, ShapeSend, len(args))
	if err != nil {
		return err
	}
	return t.conduit.Send(descriptor.Channel, args...)
}

// SendSync calls a blocking capability.
func (t *Table) SendSync(name string, args ...any) (codec.RawMessage, error) {
	descriptor, err := t.lookup(name, ShapeSync, len(args))
	if err != nil {
		return nil, err
	}
	return t.conduit.SendSync(descriptor.Channel, args...)
}

// Subscribe registers handler for a subscription capability. The
// handler sees the pushed message only, never the sender.
func (t *Table) Subscribe(name string, handler func(port.Message)) (event.Subscription, error) {
	count := 1
	if handler == nil {
		count = 0
	}
	descriptor, err := t.lookup(name, ShapeSubscribe, count)
	if err != nil {
		return event.Subscription{}, err
	}
	return t.conduit.On(descriptor.Channel, handler), nil
}

// Unsubscribe removes a subscription made through Subscribe.
func (t *Table) Unsubscribe(subscription event.Subscription) bool {
	if t.conduit == nil {
		return false
	}
	return t.conduit.Off(subscription)
}
