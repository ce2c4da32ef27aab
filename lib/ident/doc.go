// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package ident defines validated identifier types for the two sides
// of the bridge: Matrix room and user IDs, IRC network names and
// channel names. Raw strings from HTTP requests and config files are
// parsed into these types at the boundary; everything past the
// boundary works with values that are known to be well-formed.
package ident
