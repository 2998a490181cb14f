// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"net/http"
)

// HeaderContentSecurityPolicy is the response header the gate injects.
const HeaderContentSecurityPolicy = "Content-Security-Policy"

// InjectHeaders adds the policy's Content-Security-Policy to header.
// Existing values, including other Content-Security-Policy values, are
// kept: browsers enforce every CSP header present, so adding one can
// only restrict. No-op when the policy has no CSP or header already
// carries the exact value.
func (g *Gate) InjectHeaders(header http.Header) {
	if g.contentSecurityPolicy == "" || header == nil {
		return
	}
	for _, existing := range header.Values(HeaderContentSecurityPolicy) {
		if existing == g.contentSecurityPolicy {
			return
		}
	}
	header.Add(HeaderContentSecurityPolicy, g.contentSecurityPolicy)
}

// Middleware injects the policy headers into every response served by
// next. Injection happens when the response header is committed, so
// handlers that Set their own Content-Security-Policy still end up with
// the policy value alongside theirs.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := &injectingWriter{ResponseWriter: w, gate: g}
		next.ServeHTTP(writer, r)
		// Handlers that never write still get the header: the server
		// commits it after ServeHTTP returns.
		writer.commit()
	})
}

type injectingWriter struct {
	http.ResponseWriter
	gate      *Gate
	committed bool
}

func (w *injectingWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	w.gate.InjectHeaders(w.ResponseWriter.Header())
}

func (w *injectingWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *injectingWriter) Write(data []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(data)
}

func (w *injectingWriter) Flush() {
	w.commit()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *injectingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
