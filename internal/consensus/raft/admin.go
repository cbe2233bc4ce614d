package raft

import "sort"

// AdminPeerState is a point-in-time snapshot of leader-side replication
// progress for one voter, grounded on the teacher's matchIndex/nextIndex
// reporting but expressed in fetch-offset terms (§4.4 "leader ... per-voter
// last-known fetch offset").
type AdminPeerState struct {
	NodeID      NodeID
	FetchOffset Offset
	Endorsed    bool
}

// AdminState is a point-in-time snapshot of ConsensusCore for admin/
// diagnostic APIs, grounded on the teacher's Node.AdminState.
type AdminState struct {
	NodeID          NodeID
	LeaderID        NodeID
	Role            Role
	Status          NodeStatus
	Epoch           Epoch
	HighWatermark   Offset
	EndOffset       Offset
	LastFetchEpoch  Epoch
	VoterCount      int
	QuorumSize      int
	IsRunning       bool
	ShuttingDown    bool
	Peers           []AdminPeerState
}

// AdminState returns a read-only snapshot of core state.
func (c *ConsensusCore) AdminState() AdminState {
	voters := c.quorum.Voters().Voters

	out := AdminState{
		NodeID:         c.selfID,
		LeaderID:       c.quorum.Leader(),
		Role:           c.quorum.Role(),
		Status:         c.Status(),
		Epoch:          c.quorum.Epoch(),
		HighWatermark:  c.highWatermark,
		EndOffset:      c.log.EndOffset(),
		LastFetchEpoch: c.log.LastFetchedEpoch(),
		VoterCount:     len(voters),
		QuorumSize:     c.quorum.Voters().Majority(),
		IsRunning:      c.running,
		ShuttingDown:   c.shuttingDown,
	}

	if !c.quorum.IsLeader() {
		return out
	}

	sorted := append([]NodeID(nil), voters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out.Peers = make([]AdminPeerState, 0, len(sorted))
	for _, id := range sorted {
		off, _ := c.quorum.FetchOffset(id)
		out.Peers = append(out.Peers, AdminPeerState{
			NodeID:      id,
			FetchOffset: off,
			Endorsed:    c.endorsed[id],
		})
	}

	return out
}
