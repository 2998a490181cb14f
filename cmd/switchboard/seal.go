// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/switchboard/lib/sealed"
	"github.com/bureau-foundation/switchboard/lib/secret"
)

func keygenCommand() *command {
	var output string
	return &command{
		Name:    "keygen",
		Summary: "Generate an identity for the secrets bundle",
		Description: "Generate an age identity. The private key is written to --output\n" +
			"(mode 0600) and the public key is printed for use with seal --recipient.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&output, "output", "o", "", "path for the private key (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			return keygen(output, os.Stdout)
		},
	}
}

// keygen refuses to overwrite an existing identity.
func keygen(output string, stdout io.Writer) error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	if _, err := file.Write(append(keypair.PrivateKey.Bytes(), '\n')); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}
	fmt.Fprintln(stdout, keypair.PublicKey)
	return nil
}

func sealCommand() *command {
	var (
		recipients []string
		input      string
		output     string
	)
	return &command{
		Name:    "seal",
		Summary: "Encrypt privileged data into a secrets bundle",
		Description: "Encrypt privileged data to one or more recipients. The plaintext is\n" +
			"read from --input, or prompted for without echo when stdin is a\n" +
			"terminal, or read from stdin otherwise.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age public key to encrypt to (repeatable)")
			flagSet.StringVarP(&input, "input", "i", "", "plaintext file, or - for stdin")
			flagSet.StringVarP(&output, "output", "o", "", "bundle path (default: stdout)")
			return flagSet
		},
		Run: func(args []string) error {
			plaintext, err := readPlaintext(input)
			if err != nil {
				return err
			}
			defer plaintext.Close()
			return seal(plaintext, recipients, output, os.Stdout)
		},
	}
}

func readPlaintext(input string) (*secret.Blob, error) {
	if input != "" {
		return secret.ReadFile(input)
	}
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return secret.ReadFile("-")
	}
	fmt.Fprint(os.Stderr, "Secret: ")
	data, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	return secret.NewFromBytes(data)
}

// seal writes the bundle to output, or to stdout when output is empty.
func seal(plaintext *secret.Blob, recipients []string, output string, stdout io.Writer) error {
	bundle, err := sealed.Seal(plaintext.Bytes(), recipients)
	if err != nil {
		return err
	}
	if output == "" {
		_, err := stdout.Write(bundle)
		return err
	}
	if err := os.WriteFile(output, bundle, 0o600); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	return nil
}
