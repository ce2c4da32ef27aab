// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. The fake
// implementation lets tests fire authorization timeouts without
// real sleeps.
package clock
