// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"fmt"

	"github.com/programmerjake/matrix-appservice-irc/irc"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
	"github.com/programmerjake/matrix-appservice-irc/matrix"
)

// MatrixClient is the slice of the Matrix session the engine uses.
// *matrix.Session implements it.
type MatrixClient interface {
	GetRoomState(ctx context.Context, roomID ident.RoomID) ([]matrix.Event, error)
	SendStateEvent(ctx context.Context, roomID ident.RoomID, eventType, stateKey string, content any) (string, error)
}

// roomAuthority is what the power-level check needs to know about a
// user in a room.
type roomAuthority struct {
	joined bool

	// powerLevel is the user's effective power level: their entry in
	// the power_levels users map, falling back to users_default.
	powerLevel int

	// stateDefault is the power level required to send state events.
	// Per the Matrix spec it defaults to 50 when a power_levels event
	// exists without the field, and to 0 when the room has no
	// power_levels event at all.
	stateDefault int
}

// roomAuthorityFor reads the room state and derives the user's
// standing from the m.room.member and m.room.power_levels events.
func roomAuthorityFor(ctx context.Context, client MatrixClient, roomID ident.RoomID, userID ident.UserID) (roomAuthority, error) {
	events, err := client.GetRoomState(ctx, roomID)
	if err != nil {
		return roomAuthority{}, fmt.Errorf("reading state of %s: %w", roomID, err)
	}

	authority := roomAuthority{}
	powerSeen := false

	for _, event := range events {
		switch event.Type {
		case matrix.EventTypeMember:
			if event.StateKey != userID.String() {
				continue
			}
			if membership, _ := event.Content["membership"].(string); membership == "join" {
				authority.joined = true
			}

		case matrix.EventTypePowerLevels:
			if event.StateKey != "" {
				continue
			}
			powerSeen = true
			authority.powerLevel = userPowerLevel(event.Content, userID)
			authority.stateDefault = intField(event.Content, "state_default", 50)
		}
	}

	if !powerSeen {
		authority.powerLevel = 0
		authority.stateDefault = 0
	}
	return authority, nil
}

// mayProvision reports whether the user's power level clears the bar
// for sending state events in the room.
func (a roomAuthority) mayProvision() bool {
	return a.joined && a.powerLevel >= a.stateDefault
}

// userPowerLevel resolves a user's power level from power_levels
// content: the users map entry if present, else users_default, else 0.
func userPowerLevel(content map[string]any, userID ident.UserID) int {
	if users, ok := content["users"].(map[string]any); ok {
		if level, ok := users[userID.String()]; ok {
			return asInt(level)
		}
	}
	return intField(content, "users_default", 0)
}

func intField(content map[string]any, key string, fallback int) int {
	value, ok := content[key]
	if !ok {
		return fallback
	}
	return asInt(value)
}

// asInt converts a decoded JSON number. Unmarshaling into
// map[string]any yields float64 for all numbers.
func asInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// channelStanding is what the operator check needs to know about a
// nick in a channel.
type channelStanding struct {
	present  bool
	operator bool
}

// channelStandingFor queries the channel member list and reports
// whether the nick is present and holds operator status. Nicks fold
// under the same RFC 1459 rules as channel names.
func channelStandingFor(ctx context.Context, network irc.Network, channel ident.ChannelName, nick string) (channelStanding, error) {
	members, err := network.Names(ctx, channel.String())
	if err != nil {
		return channelStanding{}, fmt.Errorf("querying members of %s: %w", channel.String(), err)
	}

	want := ident.Fold(nick)
	for member, prefix := range members {
		if ident.Fold(member) == want {
			return channelStanding{
				present:  true,
				operator: isOperatorPrefix(prefix),
			}, nil
		}
	}
	return channelStanding{}, nil
}

// isOperatorPrefix reports whether a NAMES mode prefix conveys
// operator (or higher) status.
func isOperatorPrefix(prefix string) bool {
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '@', '&', '~':
			return true
		}
	}
	return false
}
