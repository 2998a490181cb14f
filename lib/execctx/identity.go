// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package execctx describes the identity of an execution context: the
// privileged coordinator, or a sandboxed view or worker. Identities are
// plain values. The core compares and logs them but never owns the
// contexts they describe; contexts are created and torn down by the
// host and looked up by ID.
package execctx

import (
	"fmt"
	"net/url"
	"strings"
)

// Trust is a context's trust level.
type Trust int

const (
	// Sandboxed contexts run untrusted content and only reach the host
	// through their capability tables.
	Sandboxed Trust = iota

	// Privileged is the coordinator.
	Privileged
)

// String returns "sandboxed" or "privileged".
func (t Trust) String() string {
	if t == Privileged {
		return "privileged"
	}
	return "sandboxed"
}

// ParseTrust parses the String form. The empty string is Sandboxed.
func ParseTrust(value string) (Trust, error) {
	switch value {
	case "", "sandboxed":
		return Sandboxed, nil
	case "privileged":
		return Privileged, nil
	default:
		return Sandboxed, fmt.Errorf("unknown trust level %q (want sandboxed or privileged)", value)
	}
}

// Identity identifies one execution context.
type Identity struct {
	// ID is the context's frame identifier, unique among live contexts.
	ID string

	// URL is the document currently loaded in the context.
	URL string

	// Trust is the context's trust level.
	Trust Trust
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// Origin parses the context's URL. An unparsable URL yields the zero
// Origin, which matches nothing.
func (i Identity) Origin() Origin {
	origin, err := ParseOrigin(i.URL)
	if err != nil {
		return Origin{}
	}
	return origin
}

// Host returns the host (with port, if any) of the context's URL, or
// the empty string when the URL does not parse.
func (i Identity) Host() string {
	return i.Origin().Host
}

// String formats the identity for logs.
func (i Identity) String() string {
	return fmt.Sprintf("%s(%s, %s)", i.ID, i.Trust, i.URL)
}

// Origin is the scheme and host of a URL.
type Origin struct {
	// Scheme is lowercase and has no trailing colon ("https").
	Scheme string

	// Host includes the port when the URL names one ("example.com:8443").
	Host string
}

// ParseOrigin extracts the origin of rawURL. URLs without a scheme or
// host (relative references, "about:blank", opaque URLs) are errors.
func ParseOrigin(rawURL string) (Origin, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}, fmt.Errorf("parsing URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return Origin{}, fmt.Errorf("URL %q has no origin", rawURL)
	}
	return Origin{
		Scheme: strings.ToLower(parsed.Scheme),
		Host:   strings.ToLower(parsed.Host),
	}, nil
}

// IsZero reports whether the origin is unset.
func (o Origin) IsZero() bool {
	return o.Scheme == "" && o.Host == ""
}

// String returns "scheme://host", or "null" for the zero origin.
func (o Origin) String() string {
	if o.IsZero() {
		return "null"
	}
	return o.Scheme + "://" + o.Host
}
