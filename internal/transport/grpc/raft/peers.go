package raftgrpc

import (
	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// BootstrapPeers pre-populates a Client with every known voter/observer
// endpoint, the gRPC analogue of the teacher's DialPeers bulk helper —
// except a Client's connections are lazy, so this simply records addresses
// and lets the first RoundTrip (or a background Connected poll) establish
// them.
func BootstrapPeers(client *Client, addrs map[raft.NodeID]string) {
	for id, addr := range addrs {
		client.UpdateEndpoint(id, addr)
	}
}
