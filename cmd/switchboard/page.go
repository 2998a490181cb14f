// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/switchboard/capability"
	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// startPage plays the context's page when no renderer is attached: it
// runs the startup handshake through the context's own conduit, then
// keeps a running counter total and reports it back on every update.
// Everything it touches goes through the installed bridge.
func (s *switchboard) startPage(id string) error {
	view, ok := s.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("page %s: context not found", id)
	}
	bridge, ok := s.coordinator.Bridge(id)
	if !ok {
		return fmt.Errorf("page %s: no capability bridge", id)
	}
	logger := s.logger.With("view", id)

	reply, err := capability.Handshake(ipc.NewRenderer(view, s.router), logger)
	if err != nil {
		return fmt.Errorf("page %s: %w", id, err)
	}
	logger.Debug("page handshake complete", "sync_reply", reply)

	// Updates arrive one at a time on the view's loop.
	var total int64
	_, err = bridge.API.Subscribe("subscribe_counter_updates", func(message port.Message) {
		var delta int64
		if err := ipc.DecodeArgs(message, &delta); err != nil {
			logger.Warn("counter update with a non-integer delta", "error", err)
			return
		}
		total += delta
		if err := bridge.API.Send("send_counter_value", total); err != nil {
			logger.Warn("reporting counter value", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("page %s: %w", id, err)
	}
	return nil
}

// stepCounters pushes delta to every live context's counter, the way
// the application menu's Increment and Decrement items do.
func (s *switchboard) stepCounters(delta int) {
	for _, identity := range s.registry.Views() {
		if err := s.coordinator.UpdateCounter(identity.ID, delta); err != nil {
			s.logger.Warn("updating counter", "view", identity.ID, "error", err)
		}
	}
}

// watchCounterSignals maps SIGUSR1 to Increment and SIGUSR2 to
// Decrement until ctx is done.
func (s *switchboard) watchCounterSignals(ctx context.Context) {
	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)
	for {
		select {
		case <-ctx.Done():
			return
		case received := <-signals:
			if received == syscall.SIGUSR1 {
				s.stepCounters(1)
			} else {
				s.stepCounters(-1)
			}
		}
	}
}
