// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate is the access gate: pure allow/deny decisions over a
// requesting context's identity and the resource it wants.
//
// Every decision goes through [Gate.Decide], which evaluates the rule
// for the request's action and returns a [Result] with the decision and
// a [DenyReason]. Evaluation is first-match, default deny. The rules:
//
//	grant_permission      kind in the permission set AND requester origin == policy origin
//	navigate              target origin == policy origin
//	attach_subview        src origin == policy origin
//	read_privileged_data  requester host == privileged data host, exactly
//	open_external         the external URL predicate returns true
//	open_channel          sender ID (and origin, when registered) == expected
//
// Origins are compared as parsed scheme and host, never by string
// prefix, so "https://example.com.evil.net" and
// "https://sub.example.com" are both denied for an "example.com"
// policy. The permission rule always applies the origin check: a kind
// being in the permission set is necessary, never sufficient.
//
// A denial is not an error. Callers cancel the attempted operation and
// return an empty result; the gate logs the denial on the privileged
// side. Nothing here panics on malformed input.
//
// The gate also owns response hardening: [Gate.InjectHeaders] and
// [Gate.Middleware] add the policy's Content-Security-Policy to every
// resource response without disturbing existing headers, and
// [Gate.AttachSubview] strips preload scripts and host integration from
// sub-view preferences before deciding.
package gate
