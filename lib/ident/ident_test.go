// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package ident

import "testing"

func TestParseRoomID(t *testing.T) {
	valid := []string{"!foo:bar", "!abc123:example.org", "!x:y"}
	for _, raw := range valid {
		if _, err := ParseRoomID(raw); err != nil {
			t.Errorf("ParseRoomID(%q) failed: %v", raw, err)
		}
	}

	invalid := []string{"", "!fooooooo", "foo:bar", "!:bar", "!foo:", "#foo:bar"}
	for _, raw := range invalid {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q) should fail", raw)
		}
	}

	roomID, err := ParseRoomID("!foo:bar")
	if err != nil {
		t.Fatalf("ParseRoomID failed: %v", err)
	}
	if roomID.String() != "!foo:bar" {
		t.Errorf("String() = %q", roomID.String())
	}
	if roomID.IsZero() {
		t.Error("parsed room ID should not be zero")
	}
	if !(RoomID{}).IsZero() {
		t.Error("zero RoomID should report IsZero")
	}
}

func TestParseUserID(t *testing.T) {
	if _, err := ParseUserID("@alice:example.org"); err != nil {
		t.Errorf("ParseUserID failed: %v", err)
	}
	for _, raw := range []string{"", "alice", "@alice", "@:example.org", "@alice:"} {
		if _, err := ParseUserID(raw); err == nil {
			t.Errorf("ParseUserID(%q) should fail", raw)
		}
	}
}

func TestParseNetworkName(t *testing.T) {
	valid := []string{"irc.example", "irc.example.org", "localhost", "irc-1.net"}
	for _, raw := range valid {
		if _, err := ParseNetworkName(raw); err != nil {
			t.Errorf("ParseNetworkName(%q) failed: %v", raw, err)
		}
	}

	invalid := []string{"", "irc./example", ".example", "irc..example", "-irc.example", "irc_example", "irc example"}
	for _, raw := range invalid {
		if _, err := ParseNetworkName(raw); err == nil {
			t.Errorf("ParseNetworkName(%q) should fail", raw)
		}
	}
}

func TestParseChannelName(t *testing.T) {
	valid := []string{"#lobby", "#provisionedchannel", "&local", "+modeless", "#SomeCaps", "#chan[a]"}
	for _, raw := range valid {
		if _, err := ParseChannelName(raw); err != nil {
			t.Errorf("ParseChannelName(%q) failed: %v", raw, err)
		}
	}

	invalid := []string{"", "#", "coffe####e", "lobby", "#with space", "#with,comma", "#with:colon"}
	for _, raw := range invalid {
		if _, err := ParseChannelName(raw); err == nil {
			t.Errorf("ParseChannelName(%q) should fail", raw)
		}
	}
}

func TestChannelKey(t *testing.T) {
	tests := []struct {
		raw, key string
	}{
		{"#SomeCaps", "#somecaps"},
		{"#lobby", "#lobby"},
		{"#CHAN[A]~", "#chan{a}^"},
		{"&Test\\X", "&test|x"},
	}
	for _, test := range tests {
		channel, err := ParseChannelName(test.raw)
		if err != nil {
			t.Fatalf("ParseChannelName(%q) failed: %v", test.raw, err)
		}
		if channel.Key() != test.key {
			t.Errorf("Key(%q) = %q, want %q", test.raw, channel.Key(), test.key)
		}
		if channel.String() != test.raw {
			t.Errorf("String(%q) = %q, case must be preserved", test.raw, channel.String())
		}
	}
}
