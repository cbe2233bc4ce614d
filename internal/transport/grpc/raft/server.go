package raftgrpc

import (
	"context"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// Inbound is the subset of raft.NetworkChannel the gRPC server adapter
// needs: just enough to hand a peer's request to the core and wait for its
// reply.
type Inbound interface {
	SubmitInboundRequest(ctx context.Context, env *raft.Envelope) (*raft.Envelope, error)
}

// Server implements RaftServer by delegating to a NetworkChannel.
type Server struct {
	channel Inbound
	tracer  oteltrace.Tracer
}

// NewServer creates a Raft gRPC server adapter over channel.
func NewServer(channel Inbound, tracer oteltrace.Tracer) *Server {
	return &Server{channel: channel, tracer: tracer}
}

// RoundTrip implements RaftServer. req is handed to the channel exactly as
// decoded from the wire; this adapter does not change its Direction or
// Source.
func (s *Server) RoundTrip(ctx context.Context, req *raft.Envelope) (*raft.Envelope, error) {
	ctx, span := s.tracer.Start(ctx, "raftgrpc.server.RoundTrip", oteltrace.WithAttributes(serverEnvelopeAttrs(req)...))
	defer span.End()

	resp, err := s.channel.SubmitInboundRequest(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return resp, nil
}
