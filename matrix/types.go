// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

// Event types the bridge reads and writes.
const (
	// EventTypeMember is the room membership state event.
	EventTypeMember = "m.room.member"
	// EventTypePowerLevels is the room power levels state event.
	EventTypePowerLevels = "m.room.power_levels"
	// EventTypeBridging records the lifecycle of a provisioned bridge
	// link in the Matrix room. Its state key identifies the remote
	// channel; its content carries the creator and status.
	EventTypeBridging = "m.room.bridging"
)

// Event is a Matrix room event as returned by the room state endpoint.
type Event struct {
	EventID  string         `json:"event_id"`
	Type     string         `json:"type"`
	Sender   string         `json:"sender"`
	StateKey string         `json:"state_key"`
	Content  map[string]any `json:"content"`
}

// SendEventResponse is the body returned when an event is sent.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// WhoAmIResponse is the body of /account/whoami.
type WhoAmIResponse struct {
	UserID string `json:"user_id"`
}
