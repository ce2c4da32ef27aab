// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision implements self-service management of links
// between Matrix rooms and IRC channels.
//
// A link request is validated, checked against room power levels and
// channel membership, and then held until a named channel operator
// approves it over IRC (or a timeout settles it). Approved links are
// persisted in the mapping store; the lifecycle of each request is
// mirrored into the Matrix room as m.room.bridging state events
// (pending, then success or failure).
//
// The Engine is the entry point. HTTP transport lives in http.go;
// everything else is transport-agnostic.
package provision
