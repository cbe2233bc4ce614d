package raft

import (
	"context"
	"fmt"
	"sync"
)

// FakeNetwork is an in-process substitute for the raw socket layer, used by
// deterministic multi-node tests (scenarios S1-S7). Each node registers a
// handler — typically its own Channel.SubmitInboundRequest — and other
// nodes' FakeTransport.RoundTrip calls dispatch directly into it, skipping
// serialization entirely.
type FakeNetwork struct {
	mu        sync.Mutex
	handlers  map[NodeID]func(context.Context, *Envelope) (*Envelope, error)
	reachable map[NodeID]bool
}

// NewFakeNetwork returns an empty FakeNetwork.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{
		handlers:  make(map[NodeID]func(context.Context, *Envelope) (*Envelope, error)),
		reachable: make(map[NodeID]bool),
	}
}

// Register wires id's inbound handler. Newly registered nodes default to reachable.
func (n *FakeNetwork) Register(id NodeID, handler func(context.Context, *Envelope) (*Envelope, error)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = handler
	n.reachable[id] = true
}

// SetReachable simulates a partition: false makes every RoundTrip to id
// fail as if the connection dropped, and Connected report ready=false.
func (n *FakeNetwork) SetReachable(id NodeID, reachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reachable[id] = reachable
}

func (n *FakeNetwork) lookup(id NodeID) (func(context.Context, *Envelope) (*Envelope, error), bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.handlers[id]
	return h, ok && n.reachable[id]
}

func (n *FakeNetwork) known(id NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.handlers[id]
	return ok
}

// FakeTransport is a Transport backed by a FakeNetwork. Endpoints learned
// via UpdateEndpoint only gate whether this node has bothered to "dial" a
// peer yet; routing itself always goes through the shared FakeNetwork.
type FakeTransport struct {
	network *FakeNetwork

	mu    sync.Mutex
	known map[NodeID]bool
}

// NewFakeTransport returns a Transport for one node against network.
func NewFakeTransport(network *FakeNetwork) *FakeTransport {
	return &FakeTransport{network: network, known: make(map[NodeID]bool)}
}

// UpdateEndpoint implements Transport.
func (t *FakeTransport) UpdateEndpoint(id NodeID, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.known[id] = true
}

// Connected implements Transport.
func (t *FakeTransport) Connected(id NodeID) (ready, unknown bool) {
	t.mu.Lock()
	k := t.known[id]
	t.mu.Unlock()
	if !k {
		return false, true
	}
	if !t.network.known(id) {
		return false, true
	}
	_, reachable := t.network.lookup(id)
	return reachable, false
}

// RoundTrip implements Transport.
func (t *FakeTransport) RoundTrip(ctx context.Context, env *Envelope) (*Envelope, error) {
	handler, reachable := t.network.lookup(env.Destination)
	if !reachable {
		return nil, fmt.Errorf("raft: fake network: peer %d unreachable", env.Destination)
	}
	return handler(ctx, env)
}
