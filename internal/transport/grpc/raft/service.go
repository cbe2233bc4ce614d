package raftgrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	"github.com/i-melnichenko/quorumcore/internal/transport/grpc/gobrpc"
)

// This file hand-writes the gRPC service definition that protoc-gen-go
// would otherwise generate: one bidirectional unary RPC, RoundTrip, whose
// request and response are both *raft.Envelope (§9's tagged message union
// already is the wire message; there is no separate protobuf schema to
// keep in sync with it).

const roundTripMethod = "/raft.QuorumTransport/RoundTrip"

// RaftServer is implemented by the server-side adapter that feeds inbound
// envelopes into a NetworkChannel.
type RaftServer interface {
	RoundTrip(ctx context.Context, req *raft.Envelope) (*raft.Envelope, error)
}

// ServiceDesc is the hand-built grpc.ServiceDesc for RaftServer, the
// generated-code equivalent of a raftv1.QuorumTransport service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft.QuorumTransport",
	HandlerType: (*RaftServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RoundTrip", Handler: roundTripHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpc/raft/service.go",
}

func roundTripHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(raft.Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftServer).RoundTrip(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: roundTripMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftServer).RoundTrip(ctx, req.(*raft.Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterRaftServer registers srv against s using ServiceDesc.
func RegisterRaftServer(s grpc.ServiceRegistrar, srv RaftServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// raftClient is the hand-written equivalent of a generated
// QuorumTransportClient.
type raftClient struct {
	cc grpc.ClientConnInterface
}

func newRaftClient(cc grpc.ClientConnInterface) *raftClient {
	return &raftClient{cc: cc}
}

func (c *raftClient) RoundTrip(ctx context.Context, in *raft.Envelope, opts ...grpc.CallOption) (*raft.Envelope, error) {
	out := new(raft.Envelope)
	opts = append(opts, grpc.CallContentSubtype(gobrpc.Name))
	if err := c.cc.Invoke(ctx, roundTripMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
