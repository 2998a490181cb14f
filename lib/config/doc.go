// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads switchboard configuration.
//
// Configuration comes from a single file named by either the
// SWITCHBOARD_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no fallback path.
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas allowed; anything else is YAML. Both formats decode
// into the same struct through the same field names.
//
// The file may carry development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production without an explicit section gets stricter defaults: a
// bounded handoff timeout and a bounded stream count.
//
// ${VAR} and ${VAR:-default} patterns are expanded in path fields after
// loading. No environment variable overrides any other value.
//
// Key exports:
//
//   - [Config] -- policy, broker, relay, ipc, secrets, resources, contexts
//   - [Default] -- development defaults
//   - [Load] and [LoadFile] -- the two entry points
//   - [Config.Validate] -- cross-field checks run before use
package config
