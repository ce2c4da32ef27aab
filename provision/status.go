// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
	"github.com/programmerjake/matrix-appservice-irc/matrix"
)

// BridgingStatus is the lifecycle stage recorded in a room's
// m.room.bridging state event. A pending event always precedes the
// terminal success or failure event for the same channel.
type BridgingStatus string

const (
	StatusPending BridgingStatus = "pending"
	StatusSuccess BridgingStatus = "success"
	StatusFailure BridgingStatus = "failure"
)

// BridgingContent is the content of an m.room.bridging state event.
type BridgingContent struct {
	Creator string         `json:"creator"`
	Status  BridgingStatus `json:"status"`
}

// statusReporter mirrors link request lifecycles into Matrix rooms as
// m.room.bridging state events keyed by the remote channel.
type statusReporter struct {
	matrix MatrixClient
	logger *slog.Logger
}

// emit publishes a bridging status event. The state key pins the
// event to one channel, so successive stages of one request overwrite
// each other and distinct channels never collide.
func (r *statusReporter) emit(ctx context.Context, roomID ident.RoomID, network string, channel ident.ChannelName, creator ident.UserID, status BridgingStatus) error {
	stateKey := bridgingStateKey(network, channel)
	content := BridgingContent{Creator: creator.String(), Status: status}

	if _, err := r.matrix.SendStateEvent(ctx, roomID, matrix.EventTypeBridging, stateKey, content); err != nil {
		return fmt.Errorf("publishing bridging status %q for %s: %w", status, stateKey, err)
	}

	r.logger.Info("bridging status published",
		"room_id", roomID.String(),
		"state_key", stateKey,
		"status", string(status),
	)
	return nil
}

// bridgingStateKey identifies a remote channel in a bridging event's
// state key, using the casefolded channel so that retries under a
// different case address the same event.
func bridgingStateKey(network string, channel ident.ChannelName) string {
	return fmt.Sprintf("irc://%s/%s", network, channel.Key())
}
