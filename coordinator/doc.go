// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator is the privileged side of switchboard. It binds
// every named router channel to the component that serves it: the
// access gate for privileged data, the host services for dialogs and
// windows, the port broker for channel establishment, and the relay for
// streams. It also installs a capability bridge into every context the
// registry creates, before that context runs anything.
//
// The coordinator holds no context state of its own beyond the last
// counter value each context reported. Contexts are looked up by ID in
// the registry at the moment a handler needs them.
package coordinator
