// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Switchboard runs the privileged coordinator and its tooling.
//
//	switchboard serve --config switchboard.yaml
//
// creates the configured contexts, installs a capability bridge in each,
// and exposes every context's bridge on its own Unix socket under
// ipc.socket_dir. The socket stands in for the context's renderer: a
// process connected to it can call exactly the capabilities the bridge
// declares and nothing else. View content is served over HTTP with the
// configured Content-Security-Policy injected.
//
// Each context also gets a built-in page: before the context is marked
// ready it runs the startup handshake and keeps the running counter
// total. SIGUSR1 and SIGUSR2 step every context's counter up and down,
// standing in for the application menu.
//
// The remaining commands manage the sealed secrets bundle (keygen,
// seal) and talk to a running capability socket (describe, call).
package main
