// Package raftgrpc wires raft.Transport and raft.NetworkChannel onto gRPC,
// using a hand-registered gob codec in place of protoc-generated code.
package raftgrpc

import (
	"context"
	"fmt"
	"sync"

	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/status"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// Client implements raft.Transport by dialing a gRPC connection per peer
// NodeID, lazily and lazily re-dialed whenever UpdateEndpoint learns a new
// address for that id.
type Client struct {
	dialOpts []grpc.DialOption
	tracer   oteltrace.Tracer

	mu    sync.RWMutex
	conns map[raft.NodeID]*grpc.ClientConn
	addrs map[raft.NodeID]string
}

// NewClient builds a Client that dials peers with dialOpts (e.g. transport
// credentials, keepalive policy) and records spans on tracer.
func NewClient(tracer oteltrace.Tracer, dialOpts ...grpc.DialOption) *Client {
	return &Client{
		dialOpts: dialOpts,
		tracer:   tracer,
		conns:    make(map[raft.NodeID]*grpc.ClientConn),
		addrs:    make(map[raft.NodeID]string),
	}
}

// UpdateEndpoint implements raft.Transport. grpc.NewClient does not block
// on connect, so this is cheap to call every time FindQuorum/config learns
// an address, including re-learning the same one.
func (c *Client) UpdateEndpoint(id raft.NodeID, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.addrs[id] == address {
		return
	}
	if old, ok := c.conns[id]; ok {
		_ = old.Close()
	}
	conn, err := grpc.NewClient(address, c.dialOpts...)
	if err != nil {
		delete(c.conns, id)
		delete(c.addrs, id)
		return
	}
	c.addrs[id] = address
	c.conns[id] = conn
}

// Connected implements raft.Transport.
func (c *Client) Connected(id raft.NodeID) (ready, unknown bool) {
	c.mu.RLock()
	conn, ok := c.conns[id]
	c.mu.RUnlock()
	if !ok {
		return false, true
	}
	state := conn.GetState()
	if state == connectivity.Idle {
		conn.Connect()
	}
	return state == connectivity.Ready, false
}

// RoundTrip implements raft.Transport.
func (c *Client) RoundTrip(ctx context.Context, env *raft.Envelope) (*raft.Envelope, error) {
	c.mu.RLock()
	conn, ok := c.conns[env.Destination]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("raftgrpc: no endpoint known for node %d", env.Destination)
	}

	ctx, span := c.tracer.Start(ctx, "raftgrpc.client.RoundTrip", oteltrace.WithAttributes(clientEnvelopeAttrs(env)...))
	defer span.End()

	resp, err := newRaftClient(conn).RoundTrip(ctx, env)
	if err != nil {
		recordSpanError(span, err)
		if st, ok := status.FromError(err); ok && (st.Code() == codes.Unauthenticated || st.Code() == codes.PermissionDenied) {
			return nil, raft.ErrTransportClusterAuth(err)
		}
		return nil, err
	}
	return resp, nil
}

// Close closes every connection this client has opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close conn to %d: %w", id, err)
		}
	}
	c.conns = make(map[raft.NodeID]*grpc.ClientConn)
	c.addrs = make(map[raft.NodeID]string)
	return firstErr
}
