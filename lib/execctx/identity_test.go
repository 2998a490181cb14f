// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package execctx

import "testing"

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Origin
		wantErr bool
	}{
		{name: "https", url: "https://example.com/index.html", want: Origin{Scheme: "https", Host: "example.com"}},
		{name: "port kept", url: "https://example.com:8443/", want: Origin{Scheme: "https", Host: "example.com:8443"}},
		{name: "case folded", url: "HTTPS://Example.COM/x", want: Origin{Scheme: "https", Host: "example.com"}},
		{name: "subdomain", url: "https://evil.example.com/", want: Origin{Scheme: "https", Host: "evil.example.com"}},
		{name: "relative", url: "index.html", wantErr: true},
		{name: "opaque", url: "about:blank", wantErr: true},
		{name: "file", url: "file:///tmp/index.html", wantErr: true},
		{name: "garbage", url: "https://exa mple.com/%zz", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ParseOrigin(test.url)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseOrigin(%q) = %v, want error", test.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOrigin(%q): %v", test.url, err)
			}
			if got != test.want {
				t.Errorf("ParseOrigin(%q) = %+v, want %+v", test.url, got, test.want)
			}
		})
	}
}

func TestIdentityOrigin(t *testing.T) {
	identity := Identity{ID: "main", URL: "https://example.com/app.html"}
	if got := identity.Origin().String(); got != "https://example.com" {
		t.Errorf("Origin() = %q", got)
	}
	if got := identity.Host(); got != "example.com" {
		t.Errorf("Host() = %q", got)
	}

	unparsable := Identity{ID: "x", URL: "index.html"}
	if !unparsable.Origin().IsZero() {
		t.Errorf("relative URL produced origin %v", unparsable.Origin())
	}
	if unparsable.Origin().String() != "null" {
		t.Errorf("zero origin String() = %q, want null", unparsable.Origin().String())
	}
}

func TestParseTrust(t *testing.T) {
	for input, want := range map[string]Trust{"": Sandboxed, "sandboxed": Sandboxed, "privileged": Privileged} {
		got, err := ParseTrust(input)
		if err != nil || got != want {
			t.Errorf("ParseTrust(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseTrust("root"); err == nil {
		t.Error("ParseTrust(root) succeeded")
	}
}
