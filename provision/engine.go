// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/programmerjake/matrix-appservice-irc/irc"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// NetworkPolicy holds the per-network provisioning settings.
type NetworkPolicy struct {
	// BotNick is the bridge's nick on the network.
	BotNick string

	// ExcludedChannels can never be provisioned.
	ExcludedChannels []string
}

// EngineConfig wires an Engine to its collaborators.
type EngineConfig struct {
	// Store persists committed mappings. Required.
	Store *Store

	// Matrix reads room state and publishes bridging status events.
	// Required.
	Matrix MatrixClient

	// IRC resolves network connections. Required.
	IRC irc.Pool

	// Authorizer runs the operator consent workflow. Required.
	Authorizer *Authorizer

	// Networks is the provisioning policy per network hostname.
	Networks map[string]NetworkPolicy

	// Logger receives engine messages. Nil means discard.
	Logger *slog.Logger
}

// Engine coordinates the full link lifecycle: request validation,
// authority checks on both sides of the bridge, operator consent,
// commit, and status reporting.
type Engine struct {
	store    *Store
	matrix   MatrixClient
	ircPool  irc.Pool
	auth     *Authorizer
	networks map[string]networkPolicy
	status   *statusReporter
	logger   *slog.Logger

	// inflight tracks channels with a link request between
	// reservation and settlement. Concurrent requests for the same
	// channel are rejected, not queued.
	mu       sync.Mutex
	inflight map[string]struct{}

	// commits tracks the goroutines that wait out authorization.
	commits sync.WaitGroup
}

type networkPolicy struct {
	botNick  string
	excluded map[string]struct{}
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Store == nil || cfg.Matrix == nil || cfg.IRC == nil || cfg.Authorizer == nil {
		panic("provision: EngineConfig requires Store, Matrix, IRC, and Authorizer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	networks := make(map[string]networkPolicy, len(cfg.Networks))
	for name, policy := range cfg.Networks {
		excluded := make(map[string]struct{}, len(policy.ExcludedChannels))
		for _, channel := range policy.ExcludedChannels {
			excluded[ident.Fold(channel)] = struct{}{}
		}
		networks[name] = networkPolicy{botNick: policy.BotNick, excluded: excluded}
	}

	return &Engine{
		store:    cfg.Store,
		matrix:   cfg.Matrix,
		ircPool:  cfg.IRC,
		auth:     cfg.Authorizer,
		networks: networks,
		status:   &statusReporter{matrix: cfg.Matrix, logger: logger},
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// LinkRequest asks for a new room-to-channel link.
type LinkRequest struct {
	MatrixRoomID      string `json:"matrix_room_id"`
	RemoteRoomServer  string `json:"remote_room_server"`
	RemoteRoomChannel string `json:"remote_room_channel"`
	OpNick            string `json:"op_nick"`
	UserID            string `json:"user_id"`
}

// UnlinkRequest asks to remove an existing link.
type UnlinkRequest struct {
	MatrixRoomID      string `json:"matrix_room_id"`
	RemoteRoomServer  string `json:"remote_room_server"`
	RemoteRoomChannel string `json:"remote_room_channel"`
	UserID            string `json:"user_id"`
}

// Link is one entry in a ListLinks result.
type Link struct {
	MatrixRoomID      string `json:"matrix_room_id"`
	RemoteRoomServer  string `json:"remote_room_server"`
	RemoteRoomChannel string `json:"remote_room_channel"`
}

// linkArgs is a LinkRequest after validation.
type linkArgs struct {
	roomID  ident.RoomID
	network string
	channel ident.ChannelName
	opNick  string
	userID  ident.UserID
}

// Link runs the link workflow up to the point where the named
// operator has been prompted and a pending status has been published.
// The final commit (or failure) happens asynchronously once the
// operator answers or the request times out.
//
// A nil return means the request was accepted, not that the link is
// committed.
func (e *Engine) Link(ctx context.Context, request LinkRequest) error {
	args, err := validateLink(request)
	if err != nil {
		return err
	}

	policy, ok := e.networks[args.network]
	if !ok {
		return newError(CodeUnknownNetwork, "provisioning is not enabled for network %q", args.network)
	}
	connection, ok := e.ircPool.Network(args.network)
	if !ok {
		return newError(CodeUnknownNetwork, "bridge is not connected to network %q", args.network)
	}

	if _, excluded := policy.excluded[args.channel.Key()]; excluded {
		return newError(CodeUnknownChannel, "provisioning is disabled for channel %q", args.channel.String())
	}

	key := pendingKey(args.network, args.channel)
	if err := e.checkAvailable(ctx, key, args); err != nil {
		return err
	}

	// Matrix side: the requester must be joined and hold enough power
	// to send state events in the room.
	authority, err := roomAuthorityFor(ctx, e.matrix, args.roomID, args.userID)
	if err != nil {
		e.logger.Error("room authority check failed", "room_id", args.roomID.String(), "error", err)
		return infraError("could not verify room authority")
	}
	if !authority.mayProvision() {
		return newError(CodeNotEnoughPower,
			"%s needs power level %d in %s (has %d)",
			args.userID, authority.stateDefault, args.roomID, authority.powerLevel)
	}

	// IRC side: the named operator must actually be an operator in
	// the channel.
	standing, err := channelStandingFor(ctx, connection, args.channel, args.opNick)
	if err != nil {
		e.logger.Error("channel member query failed",
			"network", args.network,
			"channel", args.channel.String(),
			"error", err,
		)
		return infraError("could not query channel members")
	}
	if !standing.present {
		return newError(CodeBadOpTarget, "%q is not in channel %q", args.opNick, args.channel.String())
	}
	if !standing.operator {
		return newError(CodeBadOpTarget, "%q is not an operator of %q", args.opNick, args.channel.String())
	}

	if err := e.reserve(key, args.channel); err != nil {
		return err
	}

	decisions, err := e.auth.Begin(ctx, connection, AuthRequest{
		Network:   args.network,
		Channel:   args.channel,
		OpNick:    args.opNick,
		Requester: args.userID,
		RoomID:    args.roomID,
	})
	if err != nil {
		e.release(key)
		if errors.Is(err, ErrAuthorizationPending) {
			return newError(CodeExistingMapping,
				"a link request for %q is already awaiting authorization", args.channel.String())
		}
		e.logger.Error("authorization prompt failed", "channel", args.channel.String(), "error", err)
		return infraError("could not reach the channel operator")
	}

	if err := e.status.emit(ctx, args.roomID, args.network, args.channel, args.userID, StatusPending); err != nil {
		e.auth.Cancel(args.network, args.channel)
		e.release(key)
		e.logger.Error("pending status failed", "room_id", args.roomID.String(), "error", err)
		return infraError("could not publish bridging status")
	}

	e.commits.Add(1)
	go e.awaitDecision(context.WithoutCancel(ctx), key, args, decisions)
	return nil
}

// checkAvailable rejects a link request whose channel is already
// mapped or already has a request in flight.
func (e *Engine) checkAvailable(ctx context.Context, key string, args linkArgs) error {
	e.mu.Lock()
	_, busy := e.inflight[key]
	e.mu.Unlock()
	if busy {
		return newError(CodeExistingMapping,
			"a link request for %q is already awaiting authorization", args.channel.String())
	}

	mapping, found, err := e.store.Find(ctx, args.network, args.channel)
	if err != nil {
		e.logger.Error("mapping lookup failed", "error", err)
		return infraError("could not check existing mappings")
	}
	if found {
		return newError(CodeExistingMapping,
			"channel %q on %q is already bridged to %s",
			args.channel.String(), args.network, mapping.RoomID)
	}
	return nil
}

// reserve claims the channel for this request. A losing race with
// another request surfaces as the same conflict the early check
// reports.
func (e *Engine) reserve(key string, channel ident.ChannelName) error {
	e.mu.Lock()
	if _, busy := e.inflight[key]; busy {
		e.mu.Unlock()
		return newError(CodeExistingMapping,
			"a link request for %q is already awaiting authorization", channel.String())
	}
	e.inflight[key] = struct{}{}
	e.mu.Unlock()
	return nil
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	delete(e.inflight, key)
	e.mu.Unlock()
}

// awaitDecision consumes the one-shot decision and finishes the
// request: commit plus success status, or failure status.
func (e *Engine) awaitDecision(ctx context.Context, key string, args linkArgs, decisions <-chan Decision) {
	defer e.commits.Done()
	defer e.release(key)

	decision := <-decisions

	if decision != DecisionAuthorized {
		e.logger.Info("link request not authorized",
			"network", args.network,
			"channel", args.channel.String(),
			"decision", decision.String(),
		)
		e.emitTerminal(ctx, args, StatusFailure)
		return
	}

	err := e.store.Insert(ctx, Mapping{
		RoomID:    args.roomID,
		Network:   args.network,
		Channel:   args.channel,
		CreatedBy: args.userID.String(),
		Origin:    OriginProvisioned,
	})
	if err != nil {
		e.logger.Error("mapping commit failed",
			"network", args.network,
			"channel", args.channel.String(),
			"error", err,
		)
		e.emitTerminal(ctx, args, StatusFailure)
		return
	}

	e.emitTerminal(ctx, args, StatusSuccess)
}

// emitTerminal publishes the terminal status. Failure to publish is
// logged; the mapping outcome already happened and stands.
func (e *Engine) emitTerminal(ctx context.Context, args linkArgs, status BridgingStatus) {
	if err := e.status.emit(ctx, args.roomID, args.network, args.channel, args.userID, status); err != nil {
		e.logger.Error("terminal status failed",
			"room_id", args.roomID.String(),
			"status", string(status),
			"error", err,
		)
	}
}

// Drain blocks until all in-flight commits have settled. Used during
// shutdown and by tests.
func (e *Engine) Drain() {
	e.commits.Wait()
}

// Unlink removes a provisioned link. Links seeded from configuration
// cannot be removed here.
func (e *Engine) Unlink(ctx context.Context, request UnlinkRequest) error {
	args, err := validateUnlink(request)
	if err != nil {
		return err
	}

	if _, ok := e.networks[args.network]; !ok {
		return newError(CodeUnknownNetwork, "provisioning is not enabled for network %q", args.network)
	}

	// The link must exist before the requester's power is examined,
	// so probing for mappings reveals nothing power-gated.
	mappings, err := e.store.FindByRoom(ctx, args.roomID)
	if err != nil {
		e.logger.Error("mapping lookup failed", "error", err)
		return infraError("could not check existing mappings")
	}
	var match *Mapping
	for i := range mappings {
		if mappings[i].Network == args.network && mappings[i].Channel.Key() == args.channel.Key() {
			match = &mappings[i]
			break
		}
	}
	if match == nil {
		return newError(CodeUnknownRoom, "no link between %s and %q on %q",
			args.roomID, args.channel.String(), args.network)
	}
	if match.Origin == OriginConfig {
		return newError(CodeExistingMapping,
			"link between %s and %q is defined in the bridge configuration and cannot be removed",
			args.roomID, args.channel.String())
	}

	authority, err := roomAuthorityFor(ctx, e.matrix, args.roomID, args.userID)
	if err != nil {
		e.logger.Error("room authority check failed", "room_id", args.roomID.String(), "error", err)
		return infraError("could not verify room authority")
	}
	if !authority.mayProvision() {
		return newError(CodeNotEnoughPower,
			"%s needs power level %d in %s (has %d)",
			args.userID, authority.stateDefault, args.roomID, authority.powerLevel)
	}

	switch err := e.store.Remove(ctx, args.roomID, args.network, args.channel); {
	case errors.Is(err, ErrMappingNotFound):
		return newError(CodeUnknownRoom, "no link between %s and %q on %q",
			args.roomID, args.channel.String(), args.network)
	case errors.Is(err, ErrMappingImmutable):
		return newError(CodeExistingMapping,
			"link between %s and %q is defined in the bridge configuration and cannot be removed",
			args.roomID, args.channel.String())
	case err != nil:
		e.logger.Error("mapping removal failed", "error", err)
		return infraError("could not remove the mapping")
	}

	e.logger.Info("link removed",
		"room_id", args.roomID.String(),
		"network", args.network,
		"channel", args.channel.String(),
		"user_id", args.userID.String(),
	)
	return nil
}

// ListLinks returns the links for a room in creation order. The
// result is non-nil even when empty.
func (e *Engine) ListLinks(ctx context.Context, roomID string) ([]Link, error) {
	if roomID == "" {
		return nil, missingField("roomId")
	}
	parsed, err := ident.ParseRoomID(roomID)
	if err != nil {
		return nil, malformedField("roomId")
	}

	mappings, err := e.store.FindByRoom(ctx, parsed)
	if err != nil {
		e.logger.Error("mapping lookup failed", "error", err)
		return nil, infraError("could not list links")
	}

	links := make([]Link, 0, len(mappings))
	for _, mapping := range mappings {
		links = append(links, Link{
			MatrixRoomID:      mapping.RoomID.String(),
			RemoteRoomServer:  mapping.Network,
			RemoteRoomChannel: mapping.Channel.String(),
		})
	}
	return links, nil
}

func validateLink(request LinkRequest) (linkArgs, error) {
	args, err := validateCommon(request.MatrixRoomID, request.RemoteRoomServer, request.RemoteRoomChannel, request.UserID)
	if err != nil {
		return linkArgs{}, err
	}
	if request.OpNick == "" {
		return linkArgs{}, missingField("op_nick")
	}
	if !validNick(request.OpNick) {
		return linkArgs{}, malformedField("op_nick")
	}
	args.opNick = request.OpNick
	return args, nil
}

func validateUnlink(request UnlinkRequest) (linkArgs, error) {
	return validateCommon(request.MatrixRoomID, request.RemoteRoomServer, request.RemoteRoomChannel, request.UserID)
}

func validateCommon(roomID, server, channel, userID string) (linkArgs, error) {
	args := linkArgs{}

	if roomID == "" {
		return args, missingField("matrix_room_id")
	}
	parsedRoom, err := ident.ParseRoomID(roomID)
	if err != nil {
		return args, malformedField("matrix_room_id")
	}
	args.roomID = parsedRoom

	if server == "" {
		return args, missingField("remote_room_server")
	}
	parsedNetwork, err := ident.ParseNetworkName(server)
	if err != nil {
		return args, malformedField("remote_room_server")
	}
	args.network = parsedNetwork.String()

	if channel == "" {
		return args, missingField("remote_room_channel")
	}
	parsedChannel, err := ident.ParseChannelName(channel)
	if err != nil {
		return args, malformedField("remote_room_channel")
	}
	args.channel = parsedChannel

	if userID == "" {
		return args, missingField("user_id")
	}
	parsedUser, err := ident.ParseUserID(userID)
	if err != nil {
		return args, malformedField("user_id")
	}
	args.userID = parsedUser

	return args, nil
}

// validNick checks an IRC nick: a letter or special character
// followed by letters, digits, specials, and hyphens (RFC 2812
// section 2.3.1, with the common relaxed length).
func validNick(nick string) bool {
	if len(nick) == 0 || len(nick) > 32 {
		return false
	}
	for i := 0; i < len(nick); i++ {
		c := nick[i]
		letter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		digit := c >= '0' && c <= '9'
		special := c == '[' || c == ']' || c == '\\' || c == '`' ||
			c == '_' || c == '^' || c == '{' || c == '|' || c == '}'
		switch {
		case letter || special:
		case i > 0 && (digit || c == '-'):
		default:
			return false
		}
	}
	return true
}
