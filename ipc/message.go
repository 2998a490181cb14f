// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"

	"github.com/bureau-foundation/switchboard/lib/codec"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// NewMessage encodes args as an argument list and attaches ports.
func NewMessage(args []any, ports ...*port.Endpoint) (port.Message, error) {
	if args == nil {
		args = []any{}
	}
	return port.NewMessage(args, ports...)
}

// DecodeArgs decodes the leading arguments of message into targets, in
// order. Targets beyond the number of arguments are left untouched and
// surplus arguments are ignored. A message without a payload has no
// arguments.
func DecodeArgs(message port.Message, targets ...any) error {
	args, err := rawArgs(message)
	if err != nil {
		return err
	}
	for index, target := range targets {
		if index >= len(args) {
			break
		}
		if err := codec.Unmarshal(args[index], target); err != nil {
			return fmt.Errorf("decoding argument %d: %w", index, err)
		}
	}
	return nil
}

// ArgCount returns the number of arguments in message.
func ArgCount(message port.Message) (int, error) {
	args, err := rawArgs(message)
	return len(args), err
}

func rawArgs(message port.Message) ([]codec.RawMessage, error) {
	if len(message.Data) == 0 {
		return nil, nil
	}
	var args []codec.RawMessage
	if err := codec.Unmarshal(message.Data, &args); err != nil {
		return nil, fmt.Errorf("payload is not an argument list: %w", err)
	}
	return args, nil
}
