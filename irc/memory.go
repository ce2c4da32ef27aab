// Copyright 2026 The matrix-appservice-irc Authors
// SPDX-License-Identifier: Apache-2.0

package irc

import (
	"context"
	"fmt"
	"sync"

	"github.com/programmerjake/matrix-appservice-irc/lib/ident"
)

// MemoryPool is an in-memory Pool. It backs tests and the demo mode
// of the bridge binary, where no real IRC connections exist.
type MemoryPool struct {
	mu       sync.Mutex
	networks map[string]*MemoryNetwork
}

// NewMemoryPool creates a pool with one MemoryNetwork per name.
func NewMemoryPool(names ...string) *MemoryPool {
	pool := &MemoryPool{networks: make(map[string]*MemoryNetwork)}
	for _, name := range names {
		pool.networks[name] = NewMemoryNetwork(name)
	}
	return pool
}

// Network returns the named in-memory network.
func (p *MemoryPool) Network(name string) (Network, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	network, ok := p.networks[name]
	return network, ok
}

// MemoryNetwork returns the named network with its concrete type, for
// tests that need to script membership and deliver messages.
func (p *MemoryPool) MemoryNetwork(name string) *MemoryNetwork {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.networks[name]
}

// Said is an outbound message recorded by a MemoryNetwork.
type Said struct {
	Target string
	Text   string
}

// MemoryNetwork is an in-memory Network. Channel membership is
// scripted with SetMembers; inbound messages are injected with
// Deliver; outbound messages are recorded and observable.
type MemoryNetwork struct {
	name string

	mu       sync.Mutex
	members  map[string]map[string]string // channel key -> nick -> prefix
	said     []Said
	handlers map[int]func(Message)
	onSay    map[int]func(Said)
	nextID   int
}

// NewMemoryNetwork creates an empty in-memory network.
func NewMemoryNetwork(name string) *MemoryNetwork {
	return &MemoryNetwork{
		name:     name,
		members:  make(map[string]map[string]string),
		handlers: make(map[int]func(Message)),
		onSay:    make(map[int]func(Said)),
	}
}

// SetMembers replaces the member list of a channel. The map is from
// nick to mode prefix ("@" for operators).
func (n *MemoryNetwork) SetMembers(channel string, members map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	copied := make(map[string]string, len(members))
	for nick, prefix := range members {
		copied[nick] = prefix
	}
	n.members[ident.Fold(channel)] = copied
}

// Names returns the scripted member list for a channel.
func (n *MemoryNetwork) Names(_ context.Context, channel string) (map[string]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	members, ok := n.members[ident.Fold(channel)]
	if !ok {
		return nil, fmt.Errorf("irc: no such channel %q on %s", channel, n.name)
	}
	copied := make(map[string]string, len(members))
	for nick, prefix := range members {
		copied[nick] = prefix
	}
	return copied, nil
}

// Say records the outbound message and notifies OnSay observers.
func (n *MemoryNetwork) Say(_ context.Context, target, text string) error {
	said := Said{Target: target, Text: text}

	n.mu.Lock()
	n.said = append(n.said, said)
	observers := make([]func(Said), 0, len(n.onSay))
	for _, observer := range n.onSay {
		observers = append(observers, observer)
	}
	n.mu.Unlock()

	// Observers run outside the lock so they can call back into the
	// network (e.g., Deliver a scripted reply).
	for _, observer := range observers {
		observer(said)
	}
	return nil
}

// SaidMessages returns a copy of all recorded outbound messages.
func (n *MemoryNetwork) SaidMessages() []Said {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Said(nil), n.said...)
}

// OnSay registers an observer for outbound messages. Tests use this
// to script operator replies to authorization prompts.
func (n *MemoryNetwork) OnSay(observer func(Said)) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.onSay[id] = observer
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.onSay, id)
	}
}

// OnMessage registers a handler for inbound messages.
func (n *MemoryNetwork) OnMessage(handler func(Message)) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.handlers[id] = handler
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.handlers, id)
	}
}

// Deliver injects an inbound message, invoking every registered
// handler. Handlers run outside the network lock.
func (n *MemoryNetwork) Deliver(message Message) {
	n.mu.Lock()
	handlers := make([]func(Message), 0, len(n.handlers))
	for _, handler := range n.handlers {
		handlers = append(handlers, handler)
	}
	n.mu.Unlock()

	for _, handler := range handlers {
		handler(message)
	}
}
