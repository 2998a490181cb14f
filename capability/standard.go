// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import (
	"sort"

	"github.com/bureau-foundation/switchboard/lib/version"
)

// Router channels the standard API forwards to.
const (
	ChannelPing          = "ping"
	ChannelOpenFile      = "dialog:openFile"
	ChannelSetTitle      = "set-title"
	ChannelUpdateCounter = "update-counter"
	ChannelCounterValue  = "counter-value"
	ChannelSyncEcho      = "synchronous-message"
)

// StandardAPI is the API every view gets.
func StandardAPI() []Declaration {
	return []Declaration{
		Invoke("ping", ChannelPing, 0),
		Invoke("open_file", ChannelOpenFile, 0),
		Send("set_title", ChannelSetTitle, 1),
		Subscribe("subscribe_counter_updates", ChannelUpdateCounter),
		Send("send_counter_value", ChannelCounterValue, 1),
		Sync("sync_echo", ChannelSyncEcho, 1),
	}
}

// StandardVersions is the versions table: one value per component.
func StandardVersions() []Declaration {
	snapshot := version.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	declarations := make([]Declaration, 0, len(names))
	for _, name := range names {
		declarations = append(declarations, Value(name, snapshot[name]))
	}
	return declarations
}
