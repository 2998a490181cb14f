// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/switchboard/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}

func root() *command {
	return &command{
		Name:    "switchboard",
		Summary: "Capability-gated message broker between isolated contexts",
		Subcommands: []*command{
			serveCommand(),
			keygenCommand(),
			sealCommand(),
			describeCommand(),
			callCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Println("switchboard", version.Full())
					return nil
				},
			},
		},
	}
}
