// Package admingrpc exposes a read-only admin/diagnostics view of a node
// over gRPC, hand-written against the gob codec (no .proto/protoc-gen-go).
package admingrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	"github.com/i-melnichenko/quorumcore/internal/transport/grpc/gobrpc"
)

// PeerInfo describes one cluster member address, independent of role.
type PeerInfo struct {
	NodeID  string
	Address string
}

// RaftPeerInfo is the wire form of raft.AdminPeerState.
type RaftPeerInfo struct {
	NodeID      raft.NodeID
	FetchOffset raft.Offset
	Endorsed    bool
}

// RaftNodeInfo is the wire form of raft.AdminState.
type RaftNodeInfo struct {
	NodeID         raft.NodeID
	LeaderID       raft.NodeID
	Role           raft.Role
	Status         raft.NodeStatus
	Epoch          raft.Epoch
	HighWatermark  raft.Offset
	EndOffset      raft.Offset
	LastFetchEpoch raft.Epoch
	VoterCount     int
	QuorumSize     int
	IsRunning      bool
	ShuttingDown   bool
	Peers          []RaftPeerInfo
}

// NodeInfo is the top-level response payload for GetNodeInfo.
type NodeInfo struct {
	NodeID string
	Peers  []PeerInfo
	Raft   *RaftNodeInfo
}

// GetNodeInfoRequest/Response carry the single admin RPC this service
// exposes.
type GetNodeInfoRequest struct{}

type GetNodeInfoResponse struct {
	Node *NodeInfo
}

const getNodeInfoMethod = "/admin.AdminService/GetNodeInfo"

// AdminServer is implemented by the server-side adapter over a ConsensusCore.
type AdminServer interface {
	GetNodeInfo(ctx context.Context, req *GetNodeInfoRequest) (*GetNodeInfoResponse, error)
}

// ServiceDesc is the hand-built grpc.ServiceDesc for AdminServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "admin.AdminService",
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetNodeInfo", Handler: getNodeInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpc/admin/service.go",
}

func getNodeInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetNodeInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetNodeInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getNodeInfoMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServer).GetNodeInfo(ctx, req.(*GetNodeInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAdminServer registers srv against s using ServiceDesc.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type adminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient builds a client stub over cc.
func NewAdminClient(cc grpc.ClientConnInterface) *adminClient {
	return &adminClient{cc: cc}
}

func (c *adminClient) GetNodeInfo(ctx context.Context, in *GetNodeInfoRequest, opts ...grpc.CallOption) (*GetNodeInfoResponse, error) {
	out := new(GetNodeInfoResponse)
	opts = append(opts, grpc.CallContentSubtype(gobrpc.Name))
	if err := c.cc.Invoke(ctx, getNodeInfoMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
