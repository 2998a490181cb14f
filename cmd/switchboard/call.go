// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/switchboard/capability"
)

const callTimeout = 30 * time.Second

func describeCommand() *command {
	var socketPath string
	return &command{
		Name:    "describe",
		Summary: "List the capabilities a socket exposes",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("describe", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "", "capability socket path (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if socketPath == "" {
				return fmt.Errorf("--socket is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			return describe(ctx, capability.NewClient(socketPath), os.Stdout)
		},
	}
}

func describe(ctx context.Context, client *capability.Client, stdout io.Writer) error {
	descriptors, err := client.Describe(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSHAPE\tARITY\tCHANNEL")
	for _, descriptor := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", descriptor.Name, descriptor.Shape, descriptor.Arity, descriptor.Channel)
	}
	return tw.Flush()
}

func callCommand() *command {
	var socketPath string
	return &command{
		Name:    "call",
		Summary: "Call one capability on a socket",
		Description: "Call one capability. Each argument is parsed as a YAML scalar or\n" +
			"flow collection, so 42 is a number, hello is a string, and\n" +
			"'{a: 1}' is a map. The result is printed as JSON.",
		Usage: "switchboard call --socket <path> <capability> [args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "", "capability socket path (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if socketPath == "" {
				return fmt.Errorf("--socket is required")
			}
			if len(args) == 0 {
				return fmt.Errorf("capability name is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
			defer cancel()
			return call(ctx, capability.NewClient(socketPath), args[0], args[1:], os.Stdout)
		},
	}
}

// call looks up the capability's shape, then calls it with the matching
// client method.
func call(ctx context.Context, client *capability.Client, name string, rawArgs []string, stdout io.Writer) error {
	args := make([]any, len(rawArgs))
	for index, raw := range rawArgs {
		if err := yaml.Unmarshal([]byte(raw), &args[index]); err != nil {
			return fmt.Errorf("argument %d: %w", index+1, err)
		}
	}

	descriptors, err := client.Describe(ctx)
	if err != nil {
		return err
	}
	var shape capability.Shape
	found := false
	for _, descriptor := range descriptors {
		if descriptor.Name == name {
			shape, found = descriptor.Shape, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q", capability.ErrUnknownCapability, name)
	}

	var result any
	switch shape {
	case capability.ShapeValue:
		err = client.Value(ctx, name, &result)
	case capability.ShapeInvoke:
		err = client.Invoke(ctx, name, &result, args...)
	case capability.ShapeSend:
		err = client.Send(ctx, name, args...)
	case capability.ShapeSync:
		err = client.SendSync(ctx, name, &result, args...)
	default:
		return fmt.Errorf("capability %q is a %s and cannot be called over a socket", name, shape)
	}
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(stdout, string(encoded))
	return nil
}
