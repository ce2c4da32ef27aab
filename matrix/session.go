// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// Session is an authenticated connection to the homeserver: a Client
// plus an access token.
type Session struct {
	client      *Client
	accessToken string
}

// WhoAmI returns the Matrix user ID the access token belongs to.
// Useful as a startup sanity check on the configured token.
func (s *Session) WhoAmI(ctx context.Context) (ident.UserID, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return ident.UserID{}, fmt.Errorf("matrix: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ident.UserID{}, fmt.Errorf("matrix: failed to parse whoami response: %w", err)
	}
	return ident.ParseUserID(response.UserID)
}

// GetRoomState fetches the full current state of a room as a list of
// state events.
func (s *Session) GetRoomState(ctx context.Context, roomID ident.RoomID) ([]Event, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(roomID.String()))

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("matrix: get room state for %q failed: %w", roomID, err)
	}

	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse room state response: %w", err)
	}
	return events, nil
}

// SendStateEvent sends a state event into a room and returns the
// event ID assigned by the homeserver.
func (s *Session) SendStateEvent(ctx context.Context, roomID ident.RoomID, eventType, stateKey string, content any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(stateKey),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return "", fmt.Errorf("matrix: send state event to %q failed: %w", roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse send state response: %w", err)
	}
	return response.EventID, nil
}
