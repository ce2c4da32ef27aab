// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"testing"

	"github.com/programmerjake/matrix-appservice-irc/irc"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
	"github.com/programmerjake/matrix-appservice-irc/matrix"
)

func mustUser(t *testing.T, raw string) ident.UserID {
	t.Helper()
	userID, err := ident.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q) failed: %v", raw, err)
	}
	return userID
}

func joinEvent(userID string) matrix.Event {
	return matrix.Event{
		Type:     matrix.EventTypeMember,
		StateKey: userID,
		Content:  map[string]any{"membership": "join"},
	}
}

func TestRoomAuthority(t *testing.T) {
	alice := mustUser(t, "@alice:bar")
	roomID := mustRoom(t, "!foo:bar")

	tests := []struct {
		name   string
		events []matrix.Event
		want   bool
	}{
		{
			name:   "no power event, joined user may provision",
			events: []matrix.Event{joinEvent("@alice:bar")},
			want:   true,
		},
		{
			name:   "not joined",
			events: []matrix.Event{},
			want:   false,
		},
		{
			name: "power event without state_default requires 50",
			events: []matrix.Event{
				joinEvent("@alice:bar"),
				{Type: matrix.EventTypePowerLevels, Content: map[string]any{
					"users": map[string]any{"@alice:bar": float64(49)},
				}},
			},
			want: false,
		},
		{
			name: "explicit user level clears explicit state_default",
			events: []matrix.Event{
				joinEvent("@alice:bar"),
				{Type: matrix.EventTypePowerLevels, Content: map[string]any{
					"state_default": float64(30),
					"users":         map[string]any{"@alice:bar": float64(30)},
				}},
			},
			want: true,
		},
		{
			name: "users_default applies without a users entry",
			events: []matrix.Event{
				joinEvent("@alice:bar"),
				{Type: matrix.EventTypePowerLevels, Content: map[string]any{
					"users_default": float64(75),
					"users":         map[string]any{"@someone:bar": float64(100)},
				}},
			},
			want: true,
		},
		{
			name: "membership of another user does not count",
			events: []matrix.Event{
				joinEvent("@bob:bar"),
			},
			want: false,
		},
		{
			name: "leave membership does not count",
			events: []matrix.Event{
				{Type: matrix.EventTypeMember, StateKey: "@alice:bar",
					Content: map[string]any{"membership": "leave"}},
			},
			want: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := &fakeMatrix{roomState: map[string][]matrix.Event{
				roomID.String(): test.events,
			}}
			authority, err := roomAuthorityFor(context.Background(), client, roomID, alice)
			if err != nil {
				t.Fatalf("roomAuthorityFor failed: %v", err)
			}
			if authority.mayProvision() != test.want {
				t.Errorf("mayProvision() = %v, want %v (authority %+v)",
					authority.mayProvision(), test.want, authority)
			}
		})
	}
}

func TestChannelStanding(t *testing.T) {
	network := irc.NewMemoryNetwork("irc.example")
	network.SetMembers("#lobby", map[string]string{
		"oprah":     "@",
		"notoprah":  "",
		"halfop":    "%",
		"owner":     "~",
		"Fancy[Op]": "@",
	})

	tests := []struct {
		nick     string
		present  bool
		operator bool
	}{
		{"oprah", true, true},
		{"notoprah", true, false},
		{"halfop", true, false},
		{"owner", true, true},
		{"ghost", false, false},
		// Nick matching is case-insensitive under IRC casefolding.
		{"Oprah", true, true},
		{"fancy{op}", true, true},
	}
	for _, test := range tests {
		standing, err := channelStandingFor(context.Background(), network, mustChannel(t, "#lobby"), test.nick)
		if err != nil {
			t.Fatalf("channelStandingFor(%s) failed: %v", test.nick, err)
		}
		if standing.present != test.present || standing.operator != test.operator {
			t.Errorf("%s: standing = %+v, want present=%v operator=%v",
				test.nick, standing, test.present, test.operator)
		}
	}
}
