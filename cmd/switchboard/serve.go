// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/switchboard/broker"
	"github.com/bureau-foundation/switchboard/capability"
	"github.com/bureau-foundation/switchboard/coordinator"
	"github.com/bureau-foundation/switchboard/gate"
	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/ipc"
	"github.com/bureau-foundation/switchboard/lib/config"
	"github.com/bureau-foundation/switchboard/lib/execctx"
	"github.com/bureau-foundation/switchboard/lib/version"
	"github.com/bureau-foundation/switchboard/relay"
)

// versionsSocket is the socket name serving the versions table.
const versionsSocket = "versions.sock"

func serveCommand() *command {
	var (
		configPath string
		logLevel   string
	)
	return &command{
		Name:    "serve",
		Summary: "Run the coordinator",
		Description: "Run the coordinator: create the configured contexts, expose each\n" +
			"context's capability bridge on a Unix socket, and serve view content.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvironmentVariable+")")
			flagSet.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serve runs until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting switchboard", "version", version.Info(), "environment", cfg.Environment)
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	board, err := assemble(cfg, logger)
	if err != nil {
		return err
	}
	defer board.close()
	if err := board.start(); err != nil {
		return err
	}

	var resources net.Listener
	if cfg.Resources.Listen != "" {
		resources, err = net.Listen("tcp", cfg.Resources.Listen)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.Resources.Listen, err)
		}
	}

	// One failing listener stops the whole process.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var wait sync.WaitGroup
	fail := func(err error) {
		if err != nil {
			cancel(err)
		}
	}
	if resources != nil {
		wait.Go(func() { fail(board.serveResources(ctx, resources, cfg.Resources.Root)) })
	}
	wait.Go(func() { board.watchCounterSignals(ctx) })
	if cfg.IPC.SocketDir != "" {
		wait.Go(func() { fail(board.serveSockets(ctx)) })
	} else {
		board.markAllReady()
	}

	<-ctx.Done()
	wait.Wait()
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	logger.Info("shutdown complete")
	return nil
}

// switchboard is one assembled coordinator with everything it drives.
type switchboard struct {
	config      *config.Config
	logger      *slog.Logger
	gate        *gate.Gate
	registry    *host.Registry
	router      *ipc.Router
	broker      *broker.Broker
	coordinator *coordinator.Coordinator
}

// assemble builds the component graph without creating any context or
// opening any listener.
func assemble(cfg *config.Config, logger *slog.Logger) (*switchboard, error) {
	accessGate, err := gate.New(gate.Policy{
		Scheme:                cfg.Policy.Scheme,
		Host:                  cfg.Policy.Host,
		Permissions:           cfg.Policy.Permissions,
		PrivilegedDataHost:    cfg.Policy.PrivilegedDataHost,
		ContentSecurityPolicy: cfg.Policy.ContentSecurityPolicy,
	}, logger.With("component", "gate"))
	if err != nil {
		return nil, err
	}

	var shell host.Shell
	if len(cfg.Shell.OpenCommand) > 0 {
		shell = host.CommandShell{Command: cfg.Shell.OpenCommand}
	} else {
		shell, _ = host.NewRecordingShell()
	}
	registry := host.NewRegistry(accessGate, shell, logger.With("component", "host"))
	router := ipc.NewRouter(registry, ipc.Options{
		SyncPayloadLimit: cfg.IPC.SyncPayloadLimit,
		Logger:           logger.With("component", "ipc"),
	})

	portBroker, err := broker.New(broker.Config{
		Pusher:         router,
		Contexts:       registry,
		Gate:           accessGate,
		HandoffTimeout: cfg.HandoffTimeout(),
		Logger:         logger.With("component", "broker"),
	})
	if err != nil {
		router.Close()
		registry.Close()
		return nil, err
	}

	var secrets host.SecretSource
	if cfg.Secrets.File != "" {
		secrets = host.SealedSecrets{BundlePath: cfg.Secrets.File, IdentityPath: cfg.Secrets.IdentityFile}
	}
	board, err := coordinator.New(coordinator.Config{
		Registry: registry,
		Router:   router,
		Gate:     accessGate,
		Broker:   portBroker,
		Relay:    relay.New(relay.Options{MaxCount: cfg.Relay.MaxCount, Logger: logger.With("component", "relay")}),
		Dialog:   host.StaticDialog{Result: host.OpenDialogResult{Canceled: true}},
		Secrets:  secrets,
		Logger:   logger.With("component", "coordinator"),
	})
	if err != nil {
		router.Close()
		registry.Close()
		return nil, err
	}

	return &switchboard{
		config:      cfg,
		logger:      logger,
		gate:        accessGate,
		registry:    registry,
		router:      router,
		broker:      portBroker,
		coordinator: board,
	}, nil
}

// start creates the configured contexts, registers worker routes,
// schedules pair handoffs, and opens main world ports. Handoffs and
// main world ports complete once their contexts become ready and load.
func (s *switchboard) start() error {
	for _, contextConfig := range s.config.Contexts {
		trust, err := execctx.ParseTrust(contextConfig.Trust)
		if err != nil {
			return fmt.Errorf("context %s: %w", contextConfig.ID, err)
		}
		if _, err := s.registry.Create(host.ViewConfig{
			ID:    contextConfig.ID,
			URL:   contextConfig.URL,
			Trust: trust,
			Title: contextConfig.Title,
		}); err != nil {
			return err
		}
	}
	for _, route := range s.config.Broker.WorkerRoutes {
		view, ok := s.registry.Lookup(route.Requester)
		if !ok {
			return fmt.Errorf("worker route requester %q not created", route.Requester)
		}
		if err := s.broker.AllowWorkerChannel(view.Identity(), route.Worker); err != nil {
			return err
		}
	}
	for _, pair := range s.config.Broker.Pairs {
		if err := s.coordinator.PairViews(pair.First, pair.Second); err != nil {
			return fmt.Errorf("pairing %s and %s: %w", pair.First, pair.Second, err)
		}
	}
	for _, contextConfig := range s.config.Contexts {
		if !contextConfig.MainWorldPort {
			continue
		}
		if err := s.coordinator.MainWorldPort(contextConfig.ID); err != nil {
			return err
		}
	}
	return nil
}

// markReady starts the context's page and then signals that its
// surface is reachable.
func (s *switchboard) markReady(id string) {
	view, ok := s.registry.Lookup(id)
	if !ok {
		return
	}
	if err := s.startPage(id); err != nil {
		s.logger.Error("starting page", "view", id, "error", err)
	}
	view.MarkReady()
	view.FinishLoad()
}

func (s *switchboard) markAllReady() {
	for _, identity := range s.registry.Views() {
		s.markReady(identity.ID)
	}
}

// serveSockets serves every context's API table on <id>.sock, and the
// shared versions table on versions.sock. A context becomes ready when
// its socket is listening.
func (s *switchboard) serveSockets(ctx context.Context) error {
	versions, err := capability.NewTable(nil, capability.StandardVersions()...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var (
		wait     sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	serveOne := func(name string, table *capability.Table, onReady func()) {
		path := filepath.Join(s.config.IPC.SocketDir, name)
		server := capability.NewSocketServer(path, table, s.logger.With("socket", name))
		ready := make(chan struct{})
		wait.Go(func() {
			if err := server.Serve(ctx, ready); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				cancel()
			}
		})
		if onReady != nil {
			wait.Go(func() {
				select {
				case <-ready:
					onReady()
				case <-ctx.Done():
				}
			})
		}
	}

	serveOne(versionsSocket, versions, nil)
	for _, identity := range s.registry.Views() {
		bridge, ok := s.coordinator.Bridge(identity.ID)
		if !ok {
			continue
		}
		id := identity.ID
		serveOne(id+".sock", bridge.API, func() { s.markReady(id) })
	}

	<-ctx.Done()
	wait.Wait()
	return firstErr
}

// serveResources serves root over HTTP on listener with the gate's
// headers injected into every response.
func (s *switchboard) serveResources(ctx context.Context, listener net.Listener, root string) error {
	server := &http.Server{
		Handler:           s.gate.Middleware(http.FileServer(http.Dir(root))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("serving resources", "address", listener.Addr().String(), "root", root)
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving resources: %w", err)
	}
	return nil
}

func (s *switchboard) close() {
	s.router.Close()
	s.registry.Close()
}
