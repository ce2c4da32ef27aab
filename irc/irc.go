// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

// Package irc defines the narrow surface of an IRC connection pool
// that provisioning consumes: membership queries, outbound messages,
// and inbound message subscription. The bridge's connection machinery
// implements these interfaces; tests use the in-memory versions.
package irc

import "context"

// Message is an inbound IRC message delivered to the bridge's bot
// connection, either in a channel or as a private message.
type Message struct {
	// Nick is the sender's nick.
	Nick string
	// Target is the channel the message was sent to, or the bot's
	// nick for a private message.
	Target string
	// Text is the message body.
	Text string
}

// Network is one connected IRC network.
type Network interface {
	// Names returns the current members of a channel as a map from
	// nick to mode prefix ("@" for operators, "" for regular users).
	// The channel is matched case-insensitively under IRC casefolding.
	Names(ctx context.Context, channel string) (map[string]string, error)

	// Say sends a message to a channel or nick from the bridge's bot.
	Say(ctx context.Context, target, text string) error

	// OnMessage registers a handler for inbound messages. Handlers
	// run on the delivery goroutine and must not block. The returned
	// function cancels the subscription; it is idempotent.
	OnMessage(handler func(Message)) (cancel func())
}

// Pool resolves a network hostname to its connection.
type Pool interface {
	// Network returns the connection for the named IRC network, or
	// false if the bridge is not connected to it.
	Network(name string) (Network, bool)
}
