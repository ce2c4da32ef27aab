// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/programmerjake/matrix-appservice-irc/irc"
	"github.com/programmerjake/matrix-appservice-irc/lib/clock"
	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// ErrAuthorizationPending is returned by Begin when an authorization
// request for the same channel is already waiting on its operator.
var ErrAuthorizationPending = errors.New("authorization already pending for this channel")

// Decision is the outcome of an authorization request. Every request
// settles exactly once.
type Decision int

const (
	// DecisionAuthorized means the operator approved the link.
	DecisionAuthorized Decision = iota
	// DecisionDenied means the operator refused the link.
	DecisionDenied
	// DecisionTimedOut means the operator never answered.
	DecisionTimedOut
)

func (d Decision) String() string {
	switch d {
	case DecisionAuthorized:
		return "authorized"
	case DecisionDenied:
		return "denied"
	case DecisionTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// AuthRequest identifies one link request awaiting operator consent.
type AuthRequest struct {
	Network   string
	Channel   ident.ChannelName
	OpNick    string
	Requester ident.UserID
	RoomID    ident.RoomID
}

// Authorizer runs the operator consent workflow: it prompts the named
// operator over IRC and settles each request with the operator's
// reply or, failing that, a timeout. At most one request per channel
// is in flight at a time.
type Authorizer struct {
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingAuth
}

// AuthorizerConfig configures an Authorizer.
type AuthorizerConfig struct {
	// Clock drives the reply timeout. Required.
	Clock clock.Clock

	// Timeout is how long the operator has to answer. Defaults to
	// five minutes.
	Timeout time.Duration

	// Logger receives workflow messages. Nil means discard.
	Logger *slog.Logger
}

// NewAuthorizer creates an Authorizer.
func NewAuthorizer(cfg AuthorizerConfig) *Authorizer {
	if cfg.Clock == nil {
		panic("provision: AuthorizerConfig.Clock is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Authorizer{
		clock:   cfg.Clock,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]*pendingAuth),
	}
}

type pendingAuth struct {
	token    string
	request  AuthRequest
	network  irc.Network
	decision chan Decision
	timer    *clock.Timer
	cancelFn func()
	settled  bool
}

// Begin sends the consent prompt to the operator and returns a
// channel that delivers exactly one Decision: the operator's answer
// or DecisionTimedOut. Returns ErrAuthorizationPending if a request
// for the channel is already waiting.
//
// Replies are accepted from the named operator in the channel or as a
// private message to the bridge: "yes"/"y" approves, "no"/"n" denies.
// Anything else is ignored. Replies arriving after settlement are
// ignored.
func (a *Authorizer) Begin(ctx context.Context, network irc.Network, request AuthRequest) (<-chan Decision, error) {
	key := pendingKey(request.Network, request.Channel)

	a.mu.Lock()
	if _, inFlight := a.pending[key]; inFlight {
		a.mu.Unlock()
		return nil, ErrAuthorizationPending
	}
	pending := &pendingAuth{
		token:    uuid.NewString(),
		request:  request,
		network:  network,
		decision: make(chan Decision, 1),
	}
	a.pending[key] = pending
	a.mu.Unlock()

	cancel := network.OnMessage(func(message irc.Message) {
		a.handleReply(key, pending, message)
	})

	// The reply handler is live the moment it is registered, so a
	// reply may settle the request before the cancel function is
	// recorded. Publish it under the mutex and honor an early
	// settlement here.
	a.mu.Lock()
	if pending.settled {
		a.mu.Unlock()
		cancel()
		return pending.decision, nil
	}
	pending.cancelFn = cancel
	a.mu.Unlock()

	prompt := fmt.Sprintf(
		"%s: %s has requested to bridge %s with %s on this network. "+
			"Respond with 'yes' or 'y' to allow, or simply ignore this message to disallow. "+
			"You have %s from when this message was sent. (request %s)",
		request.OpNick, request.Requester, request.RoomID, request.Channel.String(),
		a.timeout, pending.token,
	)
	if err := network.Say(ctx, request.Channel.String(), prompt); err != nil {
		cancel()
		a.mu.Lock()
		delete(a.pending, key)
		a.mu.Unlock()
		return nil, fmt.Errorf("prompting operator on %s: %w", request.Channel.String(), err)
	}

	timer := a.clock.AfterFunc(a.timeout, func() {
		a.settle(key, pending, DecisionTimedOut)
	})
	// The operator may have answered already, during the prompt Say.
	a.mu.Lock()
	if pending.settled {
		a.mu.Unlock()
		timer.Stop()
	} else {
		pending.timer = timer
		a.mu.Unlock()
	}

	a.logger.Info("authorization requested",
		"network", request.Network,
		"channel", request.Channel.String(),
		"op_nick", request.OpNick,
		"requester", request.Requester.String(),
		"token", pending.token,
	)
	return pending.decision, nil
}

// Cancel tears down a pending request without delivering a decision.
// The engine uses this when a later provisioning step fails after the
// prompt was already sent. Safe to call when nothing is pending.
func (a *Authorizer) Cancel(network string, channel ident.ChannelName) {
	key := pendingKey(network, channel)

	a.mu.Lock()
	pending, ok := a.pending[key]
	if !ok || pending.settled {
		a.mu.Unlock()
		return
	}
	pending.settled = true
	delete(a.pending, key)
	timer := pending.timer
	cancelFn := pending.cancelFn
	a.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
	if timer != nil {
		timer.Stop()
	}
}

// PendingCount returns the number of unsettled requests.
func (a *Authorizer) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Authorizer) handleReply(key string, pending *pendingAuth, message irc.Message) {
	if !strings.EqualFold(message.Nick, pending.request.OpNick) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(message.Text)) {
	case "yes", "y":
		if a.settle(key, pending, DecisionAuthorized) {
			// Acknowledge in the channel so the operator knows the
			// reply landed.
			if err := pending.network.Say(context.Background(), pending.request.Channel.String(), "Thanks!"); err != nil {
				a.logger.Warn("failed to acknowledge authorization",
					"channel", pending.request.Channel.String(),
					"error", err,
				)
			}
		}
	case "no", "n":
		a.settle(key, pending, DecisionDenied)
	}
}

// settle delivers the decision exactly once. Returns false if the
// request was already settled.
func (a *Authorizer) settle(key string, pending *pendingAuth, decision Decision) bool {
	a.mu.Lock()
	if pending.settled {
		a.mu.Unlock()
		return false
	}
	pending.settled = true
	delete(a.pending, key)
	timer := pending.timer
	cancelFn := pending.cancelFn
	a.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
	}
	if timer != nil {
		timer.Stop()
	}

	a.logger.Info("authorization settled",
		"network", pending.request.Network,
		"channel", pending.request.Channel.String(),
		"decision", decision.String(),
		"token", pending.token,
	)
	pending.decision <- decision
	return true
}

func pendingKey(network string, channel ident.ChannelName) string {
	return network + " " + channel.Key()
}
