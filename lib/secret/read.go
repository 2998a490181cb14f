// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFile reads a secret from path, or from standard input if path is
// "-". Surrounding whitespace is trimmed. An empty secret is an error.
func ReadFile(path string) (*Blob, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading secret %s: %w", path, err)
	}
	return fromRaw(data)
}

// ReadFrom reads all of reader as a secret, up to limit bytes.
func ReadFrom(reader io.Reader, limit int64) (*Blob, error) {
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	if int64(len(data)) > limit {
		Zero(data)
		return nil, fmt.Errorf("secret exceeds %d bytes", limit)
	}
	return fromRaw(data)
}

func fromRaw(data []byte) (*Blob, error) {
	defer Zero(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}
