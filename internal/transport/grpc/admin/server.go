package admingrpc

import (
	"context"
	"sort"

	"google.golang.org/grpc"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// RaftInspector is the subset of *raft.ConsensusCore required by the admin
// gRPC server. *raft.ConsensusCore satisfies this interface.
type RaftInspector interface {
	AdminState() raft.AdminState
}

// Server implements AdminServer.
type Server struct {
	nodeID    string
	peerAddrs map[string]string
	core      RaftInspector
}

// NewServer creates an admin gRPC server adapter.
func NewServer(nodeID string, peerAddrs map[string]string, core RaftInspector) *Server {
	peerCopy := make(map[string]string, len(peerAddrs))
	for id, addr := range peerAddrs {
		peerCopy[id] = addr
	}
	return &Server{nodeID: nodeID, peerAddrs: peerCopy, core: core}
}

// GetNodeInfo returns administrative information about the current node.
func (s *Server) GetNodeInfo(_ context.Context, _ *GetNodeInfoRequest) (*GetNodeInfoResponse, error) {
	node := &NodeInfo{
		NodeID: s.nodeID,
		Peers:  peerInfosFromMap(s.peerAddrs),
	}

	if s.core != nil {
		rs := s.core.AdminState()
		raftInfo := &RaftNodeInfo{
			NodeID:         rs.NodeID,
			LeaderID:       rs.LeaderID,
			Role:           rs.Role,
			Status:         rs.Status,
			Epoch:          rs.Epoch,
			HighWatermark:  rs.HighWatermark,
			EndOffset:      rs.EndOffset,
			LastFetchEpoch: rs.LastFetchEpoch,
			VoterCount:     rs.VoterCount,
			QuorumSize:     rs.QuorumSize,
			IsRunning:      rs.IsRunning,
			ShuttingDown:   rs.ShuttingDown,
			Peers:          make([]RaftPeerInfo, 0, len(rs.Peers)),
		}
		for _, p := range rs.Peers {
			raftInfo.Peers = append(raftInfo.Peers, RaftPeerInfo{
				NodeID:      p.NodeID,
				FetchOffset: p.FetchOffset,
				Endorsed:    p.Endorsed,
			})
		}
		node.Raft = raftInfo
	}

	return &GetNodeInfoResponse{Node: node}, nil
}

func peerInfosFromMap(peerAddrs map[string]string) []PeerInfo {
	if len(peerAddrs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(peerAddrs))
	for id := range peerAddrs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]PeerInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, PeerInfo{NodeID: id, Address: peerAddrs[id]})
	}
	return out
}

// Client wraps a dialed connection to an admin server.
type Client struct {
	conn   *grpc.ClientConn
	client *adminClient
}

// Dial connects to an admin gRPC server at target.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: NewAdminClient(conn)}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetNodeInfo fetches the remote node's admin snapshot.
func (c *Client) GetNodeInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := c.client.GetNodeInfo(ctx, &GetNodeInfoRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Node, nil
}
