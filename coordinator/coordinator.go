// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/switchboard/broker"
	"github.com/bureau-foundation/switchboard/capability"
	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
	"github.com/bureau-foundation/switchboard/relay"
)

// Router channels served here that no other package names.
const (
	ChannelGetSecrets           = "get-secrets"
	ChannelRequestWorkerChannel = "request-worker-channel"
)

// Acknowledgment is what ping and both legacy echo paths answer with.
const Acknowledgment = "pong"

// PrivilegedDataGate decides read_privileged_data for a context.
type PrivilegedDataGate interface {
	AllowPrivilegedData(requester execctx.Identity) bool
}

// Config wires a Coordinator. Registry, Router, Gate, Broker, and Relay
// are required.
type Config struct {
	Registry *host.Registry
	Router   *ipc.Router
	Gate     PrivilegedDataGate
	Broker   *broker.Broker
	Relay    *relay.Relay

	// Dialog answers dialog:openFile. Nil behaves as a canceled dialog.
	Dialog host.Dialog

	// Secrets backs get-secrets. Nil means there is nothing to read
	// and every call answers null.
	Secrets host.SecretSource

	// FingerprintKey keys the secret fingerprints written to the audit
	// log. The zero key is replaced with a random one, which makes
	// fingerprints comparable only within one process.
	FingerprintKey [32]byte

	// API replaces capability.StandardAPI in installed bridges.
	API []capability.Declaration

	// MainWorldHandler receives replies from a view's main world on
	// ports opened by MainWorldPort. Defaults to logging them.
	MainWorldHandler func(viewID string, message port.Message)

	Logger *slog.Logger
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	registry         *host.Registry
	router           *ipc.Router
	gate             PrivilegedDataGate
	broker           *broker.Broker
	relay            *relay.Relay
	dialog           host.Dialog
	secrets          host.SecretSource
	fingerprintKey   [32]byte
	api              []capability.Declaration
	mainWorldHandler func(string, port.Message)
	logger           *slog.Logger

	mu       sync.Mutex
	views    map[string]*host.View
	bridges  map[string]*capability.Bridge
	counters map[string]int64
}

// New registers every router channel and the bridge installer. Call it
// before the registry creates any context.
func New(config Config) (*Coordinator, error) {
	switch {
	case config.Registry == nil:
		return nil, fmt.Errorf("coordinator: registry is required")
	case config.Router == nil:
		return nil, fmt.Errorf("coordinator: router is required")
	case config.Gate == nil:
		return nil, fmt.Errorf("coordinator: gate is required")
	case config.Broker == nil:
		return nil, fmt.Errorf("coordinator: broker is required")
	case config.Relay == nil:
		return nil, fmt.Errorf("coordinator: relay is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		registry:       config.Registry,
		router:         config.Router,
		gate:           config.Gate,
		broker:         config.Broker,
		relay:          config.Relay,
		dialog:         config.Dialog,
		secrets:        config.Secrets,
		fingerprintKey: config.FingerprintKey,
		api:            config.API,
		logger:         logger,
		views:          make(map[string]*host.View),
		bridges:        make(map[string]*capability.Bridge),
		counters:       make(map[string]int64),
	}
	if c.fingerprintKey == ([32]byte{}) {
		if _, err := rand.Read(c.fingerprintKey[:]); err != nil {
			return nil, fmt.Errorf("coordinator: generating fingerprint key: %w", err)
		}
	}
	c.mainWorldHandler = config.MainWorldHandler
	if c.mainWorldHandler == nil {
		c.mainWorldHandler = c.logMainWorld
	}

	c.registerChannels()
	c.registry.OnCreate(c.installBridge)
	c.registry.OnDestroy(c.removeBridge)
	return c, nil
}

func (c *Coordinator) registerChannels() {
	c.router.Handle(capability.ChannelPing, func(context.Context, *ipc.Event) (any, error) {
		return Acknowledgment, nil
	})
	c.router.Handle(capability.ChannelOpenFile, c.openFile)
	c.router.Handle(ChannelGetSecrets, c.getSecrets)
	c.router.HandleSync(capability.ChannelSyncEcho, func(*ipc.Event) (any, error) {
		return Acknowledgment, nil
	})

	c.router.On(capability.ChannelSetTitle, c.setTitle)
	c.router.On(capability.ChannelAsyncMessage, func(event *ipc.Event) {
		if err := event.Reply(capability.ChannelAsyncReply, Acknowledgment); err != nil {
			c.logger.Debug("asynchronous reply undelivered", "target", event.Sender.ID, "error", err)
		}
	})
	c.router.On(capability.ChannelCounterValue, c.recordCounter)
	c.router.On(broker.ChannelPort, c.broker.AcceptPort)
	c.router.On(ChannelRequestWorkerChannel, c.broker.ConnectWorker)
	c.router.On(relay.Channel, c.relay.Serve)
}

// installBridge runs inside Registry.Create, before the view is
// returned to anyone.
func (c *Coordinator) installBridge(view *host.View) {
	bridge, err := capability.Install(view, ipc.NewRenderer(view, c.router), capability.Options{
		API:    c.api,
		Logger: c.logger,
	})
	if err != nil {
		c.logger.Error("installing capability bridge", "view", view.ID(), "error", err)
		return
	}
	c.mu.Lock()
	c.bridges[view.ID()] = bridge
	c.views[view.ID()] = view
	c.mu.Unlock()
}

// removeBridge runs inside Registry.Destroy. A view recreated under the
// same ID keeps its own bridge.
func (c *Coordinator) removeBridge(view *host.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.views[view.ID()] != view {
		return
	}
	delete(c.views, view.ID())
	delete(c.bridges, view.ID())
	delete(c.counters, view.ID())
}

// Bridge returns the capability bridge installed in the view.
func (c *Coordinator) Bridge(viewID string) (*capability.Bridge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bridge, ok := c.bridges[viewID]
	return bridge, ok
}

func (c *Coordinator) openFile(ctx context.Context, event *ipc.Event) (any, error) {
	if c.dialog == nil {
		return nil, nil
	}
	result, err := c.dialog.ShowOpenDialog(ctx)
	if err != nil {
		return nil, fmt.Errorf("showing open dialog: %w", err)
	}
	if result.Canceled || len(result.Paths) == 0 {
		return nil, nil
	}
	return result.Paths[0], nil
}

// getSecrets answers null to any caller the gate rejects, and to every
// caller when no source is configured. The secret is copied into the
// reply and the blob closed before returning.
func (c *Coordinator) getSecrets(_ context.Context, event *ipc.Event) (any, error) {
	if !c.gate.AllowPrivilegedData(event.Sender) {
		return nil, nil
	}
	if c.secrets == nil {
		c.logger.Warn("privileged data requested but no secret source is configured", "sender", event.Sender.ID)
		return nil, nil
	}
	blob, err := c.secrets.Secrets()
	if err != nil {
		return nil, fmt.Errorf("reading secrets: %w", err)
	}
	defer blob.Close()
	c.logger.Info("privileged data released",
		"sender", event.Sender.ID,
		"sender_url", event.Sender.URL,
		"fingerprint", blob.Fingerprint(c.fingerprintKey),
	)
	return blob.String(), nil
}

// setTitle only ever touches the sender's own window.
func (c *Coordinator) setTitle(event *ipc.Event) {
	var title string
	if err := event.Args(&title); err != nil {
		c.logger.Warn("set-title with a non-string title", "sender", event.Sender.ID, "error", err)
		return
	}
	window, ok := c.registry.WindowFor(event.Sender.ID)
	if !ok {
		c.logger.Debug("set-title from a context without a window", "sender", event.Sender.ID)
		return
	}
	window.SetTitle(title)
}

func (c *Coordinator) recordCounter(event *ipc.Event) {
	var value int64
	if err := event.Args(&value); err != nil {
		c.logger.Warn("counter-value with a non-integer value", "sender", event.Sender.ID, "error", err)
		return
	}
	c.mu.Lock()
	_, live := c.views[event.Sender.ID]
	if live {
		c.counters[event.Sender.ID] = value
	}
	c.mu.Unlock()
	if !live {
		return
	}
	c.logger.Info("counter value", "sender", event.Sender.ID, "value", value)
}

// Counter returns the last counter value the view reported.
func (c *Coordinator) Counter(viewID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.counters[viewID]
	return value, ok
}

// UpdateCounter pushes a signed delta to the view's counter
// subscribers.
func (c *Coordinator) UpdateCounter(viewID string, delta int) error {
	return c.router.Push(viewID, capability.ChannelUpdateCounter, delta)
}

// PairViews opens a channel between two views, each end delivered on
// the port channel once its view is ready to show.
func (c *Coordinator) PairViews(firstID, secondID string) error {
	return c.broker.Handoff(firstID, secondID, broker.ChannelPort)
}

// MainWorldPort opens a channel into the view's main world. A greeting
// is queued on the kept end before the other end is sent, so it is
// waiting when the main world starts listening.
func (c *Coordinator) MainWorldPort(viewID string) error {
	kept, sent := c.broker.CreateChannel()
	if err := kept.Post(port.MustMessage(map[string]int{"test": 21})); err != nil {
		kept.Close()
		sent.Close()
		return fmt.Errorf("priming main world port: %w", err)
	}
	kept.OnMessage(func(message port.Message) {
		c.mainWorldHandler(viewID, message)
	})
	kept.OnClose(func() {
		c.logger.Debug("main world port closed", "view", viewID)
	})
	if err := kept.Start(); err != nil {
		sent.Close()
		return fmt.Errorf("starting main world port: %w", err)
	}
	if !c.broker.Deliver(sent, viewID, capability.ChannelMainWorldPort) {
		kept.Close()
		return fmt.Errorf("delivering main world port to %q: %w", viewID, host.ErrTargetUnavailable)
	}
	return nil
}

func (c *Coordinator) logMainWorld(viewID string, message port.Message) {
	value, err := message.Value()
	if err != nil {
		c.logger.Warn("undecodable message from main world", "view", viewID, "error", err)
		return
	}
	c.logger.Info("message from main world", "view", viewID, "value", value)
}
