// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import "sync"

// Window is the window a view is displayed in. Only the title is
// modelled; layout and rendering belong to the host.
type Window struct {
	mu    sync.Mutex
	title string
}

// SetTitle replaces the window title.
func (w *Window) SetTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.title = title
}

// Title returns the current window title.
func (w *Window) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}
