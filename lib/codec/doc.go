// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides switchboard's single CBOR configuration.
//
// CBOR is used in two places:
//
//   - Message payloads. Every value posted on a [port.Endpoint] or sent
//     through the ipc router is encoded at post time, which gives the
//     receiver a structured clone: later mutation of the sender's value
//     can never be observed across the context boundary.
//   - The capability socket protocol, where one CBOR request and one
//     CBOR response cross each Unix socket connection.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). The
// decoder maps untyped CBOR maps to map[string]any so decoded payloads
// behave like JSON objects. A top-level null resets the target, so a
// reply of null reads as the zero value even over a pre-filled
// variable.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For streams (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
