// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/clock"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/port"
)

// Channels pushed by the broker.
const (
	ChannelNewClient            = "new-client"
	ChannelProvideWorkerChannel = "provide-worker-channel"
	ChannelPort                 = "port"
)

// Pusher delivers endpoints to contexts. ipc.Router implements it.
type Pusher interface {
	PushPorts(id, channel string, args []any, ports []*port.Endpoint) error
}

// Contexts exposes the readiness and teardown signals of live
// contexts. host.Registry implements it.
type Contexts interface {
	OnceReady(id string, fn func()) bool
	Done(id string) (<-chan struct{}, bool)
}

// ChannelGate decides whether a sender is the context a route expects.
// gate.Gate implements it.
type ChannelGate interface {
	AllowChannel(sender, expected execctx.Identity) bool
}

// PortHandler takes ownership of an endpoint sent up by a context.
type PortHandler func(sender execctx.Identity, endpoint *port.Endpoint)

// Config holds a broker's collaborators.
type Config struct {
	Pusher   Pusher
	Contexts Contexts
	Gate     ChannelGate

	// PortHandler receives inbound endpoints. Nil starts each endpoint
	// and logs what arrives on it.
	PortHandler PortHandler

	// HandoffTimeout closes handoff endpoints whose context is not
	// ready in time. Zero waits indefinitely.
	HandoffTimeout time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

type route struct {
	expected execctx.Identity
	workerID string
}

// Broker is safe for concurrent use.
type Broker struct {
	pusher         Pusher
	contexts       Contexts
	gate           ChannelGate
	portHandler    PortHandler
	handoffTimeout time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

// New returns a broker. Pusher and Gate are required.
func New(config Config) (*Broker, error) {
	if config.Pusher == nil {
		return nil, fmt.Errorf("broker: pusher is required")
	}
	if config.Gate == nil {
		return nil, fmt.Errorf("broker: gate is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	brokerClock := config.Clock
	if brokerClock == nil {
		brokerClock = clock.Real()
	}
	broker := &Broker{
		pusher:         config.Pusher,
		contexts:       config.Contexts,
		gate:           config.Gate,
		handoffTimeout: config.HandoffTimeout,
		clock:          brokerClock,
		logger:         logger,
		routes:         make(map[string]route),
	}
	broker.portHandler = config.PortHandler
	if broker.portHandler == nil {
		broker.portHandler = broker.logPort
	}
	return broker, nil
}

// CreateChannel returns a fresh entangled pair.
func (b *Broker) CreateChannel() (*port.Endpoint, *port.Endpoint) {
	first, second := port.NewChannel()
	b.logger.Debug("channel created", "channel_id", first.ChannelID())
	return first, second
}

// Deliver pushes endpoint to the context targetID on channel. Returns
// false if the context is gone, in which case the endpoint has been
// closed.
func (b *Broker) Deliver(endpoint *port.Endpoint, targetID, channel string) bool {
	channelID := endpoint.ChannelID()
	err := b.pusher.PushPorts(targetID, channel, nil, []*port.Endpoint{endpoint})
	if err == nil {
		b.logger.Debug("endpoint delivered", "target", targetID, "channel", channel, "channel_id", channelID)
		return true
	}
	if !endpoint.Detached() {
		endpoint.Close()
	}
	if errors.Is(err, host.ErrTargetUnavailable) {
		b.logger.Debug("delivery target gone, endpoint closed", "target", targetID, "channel", channel)
	} else {
		b.logger.Warn("endpoint delivery failed", "target", targetID, "channel", channel, "error", err)
	}
	return false
}

// AllowWorkerChannel registers requester as the only context that may
// open a channel to workerID. Registering the same requester ID again
// replaces its route.
func (b *Broker) AllowWorkerChannel(requester execctx.Identity, workerID string) error {
	if requester.ID == "" || workerID == "" {
		return fmt.Errorf("broker: worker route needs a requester ID and a worker ID")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[requester.ID] = route{expected: requester, workerID: workerID}
	return nil
}

// ConnectWorker handles a worker channel request. A sender without a
// route, or one the gate rejects, gets nothing: no channel is created
// and nothing is delivered to anyone.
func (b *Broker) ConnectWorker(event *ipc.Event) {
	b.mu.RLock()
	route, ok := b.routes[event.Sender.ID]
	b.mu.RUnlock()
	if !ok {
		b.logger.Warn("worker channel request without a route", "sender", event.Sender.ID, "sender_url", event.Sender.URL)
		return
	}
	if !b.gate.AllowChannel(event.Sender, route.expected) {
		return
	}

	workerEnd, clientEnd := b.CreateChannel()
	if !b.Deliver(workerEnd, route.workerID, ChannelNewClient) {
		clientEnd.Close()
		return
	}
	if b.Deliver(clientEnd, event.Sender.ID, ChannelProvideWorkerChannel) {
		b.logger.Info("worker channel established", "client", event.Sender.ID, "worker", route.workerID)
	}
}

// Handoff creates a channel between firstID and secondID and delivers
// each end on channel once its context is ready. Returns immediately.
func (b *Broker) Handoff(firstID, secondID, channel string) error {
	if b.contexts == nil {
		return fmt.Errorf("broker: handoff needs a context registry")
	}
	if firstID == secondID {
		return fmt.Errorf("broker: handoff from %q to itself", firstID)
	}
	first, second := b.CreateChannel()
	b.handoffSide(first, firstID, channel)
	b.handoffSide(second, secondID, channel)
	return nil
}

// handoffSide delivers endpoint to id when it becomes ready, or closes
// it when the context goes away or the deadline passes, whichever
// happens first.
func (b *Broker) handoffSide(endpoint *port.Endpoint, id, channel string) {
	var (
		once    sync.Once
		timerMu sync.Mutex
		timer   *clock.Timer
	)
	settled := make(chan struct{})

	settle := func(deliver bool) {
		once.Do(func() {
			close(settled)
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			if deliver {
				b.Deliver(endpoint, id, channel)
				return
			}
			b.logger.Debug("handoff endpoint closed undelivered", "target", id, "channel", channel)
			endpoint.Close()
		})
	}

	done, ok := b.contexts.Done(id)
	if !ok {
		settle(false)
		return
	}
	if b.handoffTimeout > 0 {
		timerMu.Lock()
		timer = b.clock.AfterFunc(b.handoffTimeout, func() { settle(false) })
		timerMu.Unlock()
	}
	go func() {
		select {
		case <-done:
			settle(false)
		case <-settled:
		}
	}()
	if !b.contexts.OnceReady(id, func() { settle(true) }) {
		settle(false)
	}
}

// AcceptPort passes every endpoint in an inbound message to the port
// handler.
func (b *Broker) AcceptPort(event *ipc.Event) {
	if len(event.Message.Ports) == 0 {
		b.logger.Debug("port message without endpoints", "sender", event.Sender.ID)
		return
	}
	for _, endpoint := range event.Message.Ports {
		b.portHandler(event.Sender, endpoint)
	}
}

func (b *Broker) logPort(sender execctx.Identity, endpoint *port.Endpoint) {
	logger := b.logger.With("sender", sender.ID, "channel_id", endpoint.ChannelID())
	endpoint.OnMessage(func(message port.Message) {
		value, err := message.Value()
		if err != nil {
			logger.Debug("undecodable message on inbound port", "error", err)
			return
		}
		logger.Debug("message on inbound port", "value", value)
	})
	endpoint.OnClose(func() {
		logger.Debug("inbound port closed")
	})
	endpoint.Start()
}
