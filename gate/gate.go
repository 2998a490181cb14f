// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bureau-foundation/switchboard/lib/execctx"
)

// Action names a gated operation.
type Action string

const (
	ActionGrantPermission    Action = "grant_permission"
	ActionNavigate           Action = "navigate"
	ActionAttachSubview      Action = "attach_subview"
	ActionReadPrivilegedData Action = "read_privileged_data"
	ActionOpenExternal       Action = "open_external"
	ActionOpenChannel        Action = "open_channel"
)

// PermissionScheme is the only scheme permission grants are made to,
// whatever scheme the policy origin uses.
const PermissionScheme = "https"

// Request is the resource half of a decision. Which fields matter
// depends on Action.
type Request struct {
	Action Action

	// Permission is the permission kind for ActionGrantPermission
	// ("notifications", "media", ...).
	Permission string

	// URL is the target for ActionNavigate, ActionAttachSubview, and
	// ActionOpenExternal.
	URL string

	// Expected is the pre-registered identity for ActionOpenChannel.
	Expected execctx.Identity
}

// Decision is the outcome of a gate check.
type Decision int

const (
	// Deny means the operation must be cancelled.
	Deny Decision = iota

	// Allow means the operation may proceed.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DenyReason describes why a check was denied.
type DenyReason int

const (
	// ReasonNone accompanies Allow.
	ReasonNone DenyReason = iota

	// ReasonUnknownAction means no rule exists for the action.
	ReasonUnknownAction

	// ReasonPermissionNotAllowed means the permission kind is not in
	// the policy's permission set.
	ReasonPermissionNotAllowed

	// ReasonOriginMismatch means the scheme or host differs from the
	// policy origin.
	ReasonOriginMismatch

	// ReasonMalformedURL means the URL did not parse to an origin.
	ReasonMalformedURL

	// ReasonHostMismatch means the requester's host is not the
	// privileged data host.
	ReasonHostMismatch

	// ReasonUnsafeURL means the external URL predicate rejected the
	// URL.
	ReasonUnsafeURL

	// ReasonIdentityMismatch means the sender is not the context
	// registered for the request.
	ReasonIdentityMismatch

	// ReasonInsecureOrigin means a permission was requested from an
	// origin whose scheme is not PermissionScheme.
	ReasonInsecureOrigin
)

// String returns a human-readable reason.
func (r DenyReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownAction:
		return "unknown action"
	case ReasonPermissionNotAllowed:
		return "permission kind not allowed"
	case ReasonOriginMismatch:
		return "origin not allowed"
	case ReasonMalformedURL:
		return "malformed URL"
	case ReasonHostMismatch:
		return "host not allowed for privileged data"
	case ReasonUnsafeURL:
		return "URL rejected by external open policy"
	case ReasonIdentityMismatch:
		return "sender is not the expected context"
	case ReasonInsecureOrigin:
		return "permission requested from insecure origin"
	default:
		return "unknown"
	}
}

// Result is the outcome of Decide.
type Result struct {
	Action   Action
	Decision Decision

	// Reason is ReasonNone when Decision is Allow.
	Reason DenyReason
}

// Allowed reports whether the decision is Allow.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// URLPredicate decides whether a URL may be handed to the operating
// system's opener.
type URLPredicate func(rawURL string) bool

// DefaultExternalPredicate accepts only absolute http and https URLs
// with a host.
func DefaultExternalPredicate(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// Policy is the gate's static configuration.
type Policy struct {
	// Scheme is the only scheme allowed for navigation, sub-views, and
	// permission-bearing contexts. Usually "https".
	Scheme string

	// Host is the only host allowed for navigation, sub-views, and
	// permission-bearing contexts. Compared exactly, port included.
	Host string

	// Permissions is the set of permission kinds that may be granted.
	Permissions []string

	// PrivilegedDataHost is the exact host whose frames may read
	// privileged data. Empty denies every read.
	PrivilegedDataHost string

	// ContentSecurityPolicy is the header value injected into resource
	// responses. Empty disables injection.
	ContentSecurityPolicy string

	// ExternalURL decides open_external requests. Nil uses
	// DefaultExternalPredicate.
	ExternalURL URLPredicate
}

// Gate evaluates a Policy. Immutable after New; safe for concurrent
// use.
type Gate struct {
	origin                execctx.Origin
	permissions           map[string]bool
	privilegedDataHost    string
	contentSecurityPolicy string
	externalURL           URLPredicate
	logger                *slog.Logger
}

// New validates policy and returns a gate. A nil logger uses
// slog.Default().
func New(policy Policy, logger *slog.Logger) (*Gate, error) {
	if policy.Scheme == "" {
		return nil, fmt.Errorf("gate: policy scheme is required")
	}
	if policy.Host == "" {
		return nil, fmt.Errorf("gate: policy host is required")
	}
	if strings.ContainsAny(policy.Host, "/*") {
		return nil, fmt.Errorf("gate: policy host %q must be a bare host, not a pattern or URL", policy.Host)
	}
	if logger == nil {
		logger = slog.Default()
	}

	permissions := make(map[string]bool, len(policy.Permissions))
	for _, kind := range policy.Permissions {
		permissions[kind] = true
	}
	externalURL := policy.ExternalURL
	if externalURL == nil {
		externalURL = DefaultExternalPredicate
	}

	return &Gate{
		origin: execctx.Origin{
			Scheme: strings.ToLower(policy.Scheme),
			Host:   strings.ToLower(policy.Host),
		},
		permissions:           permissions,
		privilegedDataHost:    strings.ToLower(policy.PrivilegedDataHost),
		contentSecurityPolicy: policy.ContentSecurityPolicy,
		externalURL:           externalURL,
		logger:                logger,
	}, nil
}

// Origin returns the policy origin.
func (g *Gate) Origin() execctx.Origin {
	return g.origin
}

// Decide evaluates request on behalf of requester. Denials are logged.
func (g *Gate) Decide(requester execctx.Identity, request Request) Result {
	result := g.evaluate(requester, request)
	result.Action = request.Action
	if !result.Allowed() {
		g.logger.Warn("gate denied request",
			"action", string(request.Action),
			"requester", requester.ID,
			"requester_url", requester.URL,
			"reason", result.Reason.String(),
			"permission", request.Permission,
			"url", request.URL,
		)
	}
	return result
}

func (g *Gate) evaluate(requester execctx.Identity, request Request) Result {
	switch request.Action {
	case ActionGrantPermission:
		if !g.permissions[request.Permission] {
			return deny(ReasonPermissionNotAllowed)
		}
		origin, err := execctx.ParseOrigin(requester.URL)
		if err != nil {
			return deny(ReasonMalformedURL)
		}
		// Holds even when the policy origin itself is plain http.
		if origin.Scheme != PermissionScheme {
			return deny(ReasonInsecureOrigin)
		}
		return g.originRule(requester.URL)

	case ActionNavigate, ActionAttachSubview:
		return g.originRule(request.URL)

	case ActionReadPrivilegedData:
		if g.privilegedDataHost == "" {
			return deny(ReasonHostMismatch)
		}
		origin, err := execctx.ParseOrigin(requester.URL)
		if err != nil {
			return deny(ReasonMalformedURL)
		}
		if origin.Host != g.privilegedDataHost {
			return deny(ReasonHostMismatch)
		}
		return allow()

	case ActionOpenExternal:
		if !g.externalURL(request.URL) {
			return deny(ReasonUnsafeURL)
		}
		return allow()

	case ActionOpenChannel:
		expected := request.Expected
		if requester.IsZero() || expected.IsZero() || requester.ID != expected.ID {
			return deny(ReasonIdentityMismatch)
		}
		if expected.URL != "" && requester.Origin() != expected.Origin() {
			return deny(ReasonIdentityMismatch)
		}
		return allow()

	default:
		return deny(ReasonUnknownAction)
	}
}

// originRule allows rawURL only if its parsed origin equals the policy
// origin exactly.
func (g *Gate) originRule(rawURL string) Result {
	origin, err := execctx.ParseOrigin(rawURL)
	if err != nil {
		return deny(ReasonMalformedURL)
	}
	if origin != g.origin {
		return deny(ReasonOriginMismatch)
	}
	return allow()
}

func allow() Result {
	return Result{Decision: Allow, Reason: ReasonNone}
}

func deny(reason DenyReason) Result {
	return Result{Decision: Deny, Reason: reason}
}

// AllowPermission decides a permission request from requester.
func (g *Gate) AllowPermission(requester execctx.Identity, kind string) bool {
	return g.Decide(requester, Request{Action: ActionGrantPermission, Permission: kind}).Allowed()
}

// AllowNavigation decides whether requester may navigate to target.
func (g *Gate) AllowNavigation(requester execctx.Identity, target string) bool {
	return g.Decide(requester, Request{Action: ActionNavigate, URL: target}).Allowed()
}

// AllowPrivilegedData decides whether requester may read privileged
// data.
func (g *Gate) AllowPrivilegedData(requester execctx.Identity) bool {
	return g.Decide(requester, Request{Action: ActionReadPrivilegedData}).Allowed()
}

// AllowExternal decides whether target may be opened by the operating
// system on requester's behalf.
func (g *Gate) AllowExternal(requester execctx.Identity, target string) bool {
	return g.Decide(requester, Request{Action: ActionOpenExternal, URL: target}).Allowed()
}

// AllowChannel decides whether sender is the expected context for a
// brokered channel.
func (g *Gate) AllowChannel(sender, expected execctx.Identity) bool {
	return g.Decide(sender, Request{Action: ActionOpenChannel, Expected: expected}).Allowed()
}
