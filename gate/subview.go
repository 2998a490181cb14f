// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/lib/execctx"
)

// SanitizeSubview removes everything a sub-view could use to reach the
// host: the preload script is dropped, host integration is disabled,
// and context isolation is forced on. Applied before every attach
// decision, whether or not the attach is then allowed.
func SanitizeSubview(preferences *host.SubviewPreferences) {
	if preferences == nil {
		return
	}
	preferences.Preload = ""
	preferences.HostIntegration = false
	preferences.ContextIsolation = true
}

// AttachSubview sanitizes preferences and decides whether requester
// may attach a sub-view loading src.
func (g *Gate) AttachSubview(requester execctx.Identity, src string, preferences *host.SubviewPreferences) bool {
	SanitizeSubview(preferences)
	return g.Decide(requester, Request{Action: ActionAttachSubview, URL: src}).Allowed()
}
