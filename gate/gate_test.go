// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/bureau-foundation/switchboard/host"
	"github.com/bureau-foundation/switchboard/lib/execctx"
)

func testPolicy() Policy {
	return Policy{
		Scheme:                "https",
		Host:                  "example.com",
		Permissions:           []string{"notifications"},
		PrivilegedDataHost:    "example.com",
		ContentSecurityPolicy: "default-src 'self'",
	}
}

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := New(testPolicy(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return gate
}

func frame(url string) execctx.Identity {
	return execctx.Identity{ID: "frame-1", URL: url}
}

func TestNewValidatesPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"missing scheme", Policy{Host: "example.com"}},
		{"missing host", Policy{Scheme: "https"}},
		{"wildcard host", Policy{Scheme: "https", Host: "*.example.com"}},
		{"url as host", Policy{Scheme: "https", Host: "example.com/path"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.policy, nil); err == nil {
				t.Error("New succeeded, want error")
			}
		})
	}
}

func TestGrantPermission(t *testing.T) {
	gate := newTestGate(t)
	tests := []struct {
		name       string
		requester  string
		permission string
		want       Decision
		reason     DenyReason
	}{
		{"allowed kind from policy origin", "https://example.com/page", "notifications", Allow, ReasonNone},
		{"kind not in set", "https://example.com/page", "media", Deny, ReasonPermissionNotAllowed},
		{"camera denied", "https://example.com/page", "camera", Deny, ReasonPermissionNotAllowed},
		{"wrong scheme", "http://example.com/page", "notifications", Deny, ReasonInsecureOrigin},
		{"wrong host", "https://evil.com/page", "notifications", Deny, ReasonOriginMismatch},
		{"subdomain", "https://sub.example.com/", "notifications", Deny, ReasonOriginMismatch},
		{"unparsable requester", "::not a url", "notifications", Deny, ReasonMalformedURL},
		{"empty requester URL", "", "notifications", Deny, ReasonMalformedURL},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := gate.Decide(frame(test.requester), Request{
				Action:     ActionGrantPermission,
				Permission: test.permission,
			})
			if result.Decision != test.want || result.Reason != test.reason {
				t.Errorf("Decide = %s/%s, want %s/%s",
					result.Decision, result.Reason, test.want, test.reason)
			}
			if result.Action != ActionGrantPermission {
				t.Errorf("Result.Action = %q", result.Action)
			}
		})
	}
}

func TestGrantPermissionRequiresHTTPSUnderPlainPolicy(t *testing.T) {
	policy := testPolicy()
	policy.Scheme = "http"
	gate, err := New(policy, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	requester := frame("http://example.com/")
	result := gate.Decide(requester, Request{Action: ActionGrantPermission, Permission: "notifications"})
	if result.Allowed() || result.Reason != ReasonInsecureOrigin {
		t.Errorf("Decide = %s/%s, want deny/%s", result.Decision, result.Reason, ReasonInsecureOrigin)
	}
	if gate.AllowPermission(requester, "notifications") {
		t.Error("permission granted to http origin")
	}
	// The plain origin still governs navigation.
	if !gate.AllowNavigation(requester, "http://example.com/next") {
		t.Error("navigation within the policy origin denied")
	}
	// An https page is not the policy origin, so it gets nothing either.
	if gate.AllowPermission(frame("https://example.com/"), "notifications") {
		t.Error("permission granted outside the policy origin")
	}
}

func TestNavigateAndAttachSubview(t *testing.T) {
	gate := newTestGate(t)
	tests := []struct {
		target string
		want   bool
	}{
		{"https://example.com/", true},
		{"https://example.com/deep/path?q=1#frag", true},
		{"HTTPS://EXAMPLE.COM/", true},
		{"https://evil.com/", false},
		{"https://sub.example.com/", false},
		{"https://example.com.evil.net/", false},
		{"http://example.com/", false},
		{"https://example.com:8443/", false},
		{"javascript:alert(1)", false},
		{"not a url", false},
		{"", false},
	}
	for _, test := range tests {
		requester := frame("https://example.com/")
		if got := gate.AllowNavigation(requester, test.target); got != test.want {
			t.Errorf("AllowNavigation(%q) = %v, want %v", test.target, got, test.want)
		}
		if got := gate.AttachSubview(requester, test.target, &host.SubviewPreferences{}); got != test.want {
			t.Errorf("AttachSubview(%q) = %v, want %v", test.target, got, test.want)
		}
	}
}

func TestReadPrivilegedData(t *testing.T) {
	gate := newTestGate(t)
	tests := []struct {
		requester string
		want      bool
	}{
		{"https://example.com/", true},
		{"http://example.com/", true},
		{"https://evil.com/", false},
		{"https://sub.example.com/", false},
		{"", false},
	}
	for _, test := range tests {
		if got := gate.AllowPrivilegedData(frame(test.requester)); got != test.want {
			t.Errorf("AllowPrivilegedData(%q) = %v, want %v", test.requester, got, test.want)
		}
	}

	policy := testPolicy()
	policy.PrivilegedDataHost = ""
	closed, err := New(policy, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if closed.AllowPrivilegedData(frame("https://example.com/")) {
		t.Error("empty privileged data host allowed a read")
	}
}

func TestOpenExternal(t *testing.T) {
	gate := newTestGate(t)
	tests := []struct {
		target string
		want   bool
	}{
		{"https://docs.example.org/guide", true},
		{"http://example.net/", true},
		{"file:///etc/passwd", false},
		{"smb://share/x", false},
		{"https:///nohost", false},
		{"relative/path", false},
	}
	for _, test := range tests {
		if got := gate.AllowExternal(frame("https://example.com/"), test.target); got != test.want {
			t.Errorf("AllowExternal(%q) = %v, want %v", test.target, got, test.want)
		}
	}

	policy := testPolicy()
	policy.ExternalURL = func(string) bool { return false }
	strict, err := New(policy, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if strict.AllowExternal(frame("https://example.com/"), "https://docs.example.org/") {
		t.Error("custom predicate ignored")
	}
}

func TestOpenChannel(t *testing.T) {
	gate := newTestGate(t)
	expected := execctx.Identity{ID: "main", URL: "https://example.com/"}
	tests := []struct {
		name   string
		sender execctx.Identity
		want   bool
	}{
		{"expected context", expected, true},
		{"same frame navigated within origin", execctx.Identity{ID: "main", URL: "https://example.com/other"}, true},
		{"different frame", execctx.Identity{ID: "intruder", URL: "https://example.com/"}, false},
		{"same frame different origin", execctx.Identity{ID: "main", URL: "https://evil.com/"}, false},
		{"zero sender", execctx.Identity{}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := gate.AllowChannel(test.sender, expected); got != test.want {
				t.Errorf("AllowChannel = %v, want %v", got, test.want)
			}
		})
	}
	if gate.AllowChannel(expected, execctx.Identity{}) {
		t.Error("AllowChannel with no registered identity allowed")
	}
}

func TestUnknownActionDenied(t *testing.T) {
	gate := newTestGate(t)
	result := gate.Decide(frame("https://example.com/"), Request{Action: "format_disk"})
	if result.Allowed() || result.Reason != ReasonUnknownAction {
		t.Errorf("Decide(unknown) = %s/%s, want deny/unknown action", result.Decision, result.Reason)
	}
}

func TestDenialsAreLogged(t *testing.T) {
	var output bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&output, nil))
	gate, err := New(testPolicy(), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gate.AllowPermission(frame("https://example.com/"), "notifications")
	if output.Len() != 0 {
		t.Errorf("allowed decision was logged: %s", output.String())
	}
	gate.AllowPermission(frame("https://evil.com/"), "notifications")
	if !strings.Contains(output.String(), "gate denied request") ||
		!strings.Contains(output.String(), "origin not allowed") {
		t.Errorf("denial log = %q", output.String())
	}
}

func TestSanitizeSubview(t *testing.T) {
	gate := newTestGate(t)
	preferences := &host.SubviewPreferences{
		Preload:          "/tmp/inject.js",
		HostIntegration:  true,
		ContextIsolation: false,
	}
	// Sanitized even when the attach is denied.
	if gate.AttachSubview(frame("https://example.com/"), "https://evil.com/", preferences) {
		t.Fatal("foreign sub-view allowed")
	}
	if preferences.Preload != "" || preferences.HostIntegration || !preferences.ContextIsolation {
		t.Errorf("preferences not sanitized: %+v", *preferences)
	}
	SanitizeSubview(nil)
}

func TestGateSatisfiesHostGuard(t *testing.T) {
	var _ host.Guard = newTestGate(t)
}
