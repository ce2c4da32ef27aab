// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"time"

	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// Origin records how a mapping came to exist.
type Origin string

const (
	// OriginProvisioned marks a mapping created through the
	// provisioning API. It can be removed the same way.
	OriginProvisioned Origin = "provisioned"

	// OriginConfig marks an operator-curated mapping seeded from the
	// bridge configuration. The provisioning API cannot remove it.
	OriginConfig Origin = "config"
)

// Mapping is one room-to-channel link.
type Mapping struct {
	// RoomID is the Matrix side of the link.
	RoomID ident.RoomID

	// Network is the IRC network hostname.
	Network string

	// Channel is the IRC channel with the case it was provisioned
	// with. Uniqueness and lookups use its casefolded key.
	Channel ident.ChannelName

	// CreatedBy is the Matrix user who requested the link. Empty for
	// config mappings.
	CreatedBy string

	// Origin is how the mapping was created.
	Origin Origin

	// CreatedAt is when the mapping was committed.
	CreatedAt time.Time
}
