// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/bureau-foundation/switchboard/lib/sealed"
	"github.com/bureau-foundation/switchboard/lib/secret"
)

// ErrTargetUnavailable is returned when a delivery target context does
// not exist or has been torn down.
var ErrTargetUnavailable = errors.New("host: target context unavailable")

// OpenDialogResult is the outcome of a file-open dialog.
type OpenDialogResult struct {
	Canceled bool
	Paths    []string
}

// Dialog shows file pickers.
type Dialog interface {
	ShowOpenDialog(ctx context.Context) (OpenDialogResult, error)
}

// StaticDialog answers every open dialog with a fixed result.
type StaticDialog struct {
	Result OpenDialogResult
}

// ShowOpenDialog returns the fixed result.
func (d StaticDialog) ShowOpenDialog(ctx context.Context) (OpenDialogResult, error) {
	if err := ctx.Err(); err != nil {
		return OpenDialogResult{}, err
	}
	return d.Result, nil
}

// SecretSource provides the privileged data blob. The caller owns the
// returned blob and must Close it.
type SecretSource interface {
	Secrets() (*secret.Blob, error)
}

// StaticSecrets serves a fixed value. Each call copies it into a fresh
// protected blob.
type StaticSecrets struct {
	Value []byte
}

// Secrets returns a protected copy of the value.
func (s StaticSecrets) Secrets() (*secret.Blob, error) {
	copied := make([]byte, len(s.Value))
	copy(copied, s.Value)
	return secret.NewFromBytes(copied)
}

// SealedSecrets decrypts an age-sealed bundle from disk on every
// read, so the plaintext only exists while a reply is being built.
type SealedSecrets struct {
	BundlePath   string
	IdentityPath string
}

// Secrets opens the bundle.
func (s SealedSecrets) Secrets() (*secret.Blob, error) {
	blob, err := sealed.OpenFile(s.BundlePath, s.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("reading sealed secrets %s: %w", s.BundlePath, err)
	}
	return blob, nil
}

// Shell opens URLs outside the application.
type Shell interface {
	OpenExternal(url string) error
}

// CommandShell opens URLs by running an opener command such as
// xdg-open, with the URL as the final argument.
type CommandShell struct {
	Command []string
}

// OpenExternal starts the opener and does not wait for it.
func (s CommandShell) OpenExternal(url string) error {
	if len(s.Command) == 0 {
		return fmt.Errorf("host: no opener command configured")
	}
	arguments := append(append([]string(nil), s.Command[1:]...), url)
	command := exec.Command(s.Command[0], arguments...)
	if err := command.Start(); err != nil {
		return fmt.Errorf("starting opener %s: %w", s.Command[0], err)
	}
	go command.Wait()
	return nil
}

// RecordingShell records opened URLs instead of opening them. Used by
// tests and by dry-run deployments.
type RecordingShell struct {
	mu     sync.Mutex
	opened []string
	notify chan string
}

// NewRecordingShell returns a shell that also sends each opened URL on
// the returned channel (buffered; sends are dropped when full).
func NewRecordingShell() (*RecordingShell, <-chan string) {
	notify := make(chan string, 16)
	return &RecordingShell{notify: notify}, notify
}

// OpenExternal records url.
func (s *RecordingShell) OpenExternal(url string) error {
	s.mu.Lock()
	s.opened = append(s.opened, url)
	s.mu.Unlock()
	if s.notify != nil {
		select {
		case s.notify <- url:
		default:
		}
	}
	return nil
}

// Opened returns every URL opened so far.
func (s *RecordingShell) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}
