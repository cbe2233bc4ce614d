package raft

import "time"

// Metrics captures the core's metric sinks. A nil Metrics is replaced with
// noopMetrics by NewConsensusCore, mirroring the teacher's pattern.
type Metrics interface {
	IncVoteRequestSent(nodeID NodeID, peerID NodeID)
	IncVoteGranted(nodeID NodeID)
	IncVoteRejected(nodeID NodeID)
	IncElectionStarted(nodeID NodeID)
	IncElectionWon(nodeID NodeID)
	ObserveFetchRPCDuration(nodeID, peerID NodeID, d time.Duration)
	IncFetchError(nodeID, peerID NodeID, kind string)
	IncOffsetOutOfRange(nodeID NodeID)
	SetHighWatermark(nodeID NodeID, hw Offset)
	SetIsLeader(nodeID NodeID, isLeader bool)
	IncPersistenceError(nodeID NodeID, op string)
}

type noopMetrics struct{}

func (noopMetrics) IncVoteRequestSent(NodeID, NodeID)                {}
func (noopMetrics) IncVoteGranted(NodeID)                            {}
func (noopMetrics) IncVoteRejected(NodeID)                           {}
func (noopMetrics) IncElectionStarted(NodeID)                        {}
func (noopMetrics) IncElectionWon(NodeID)                            {}
func (noopMetrics) ObserveFetchRPCDuration(NodeID, NodeID, time.Duration) {}
func (noopMetrics) IncFetchError(NodeID, NodeID, string)             {}
func (noopMetrics) IncOffsetOutOfRange(NodeID)                       {}
func (noopMetrics) SetHighWatermark(NodeID, Offset)                  {}
func (noopMetrics) SetIsLeader(NodeID, bool)                         {}
func (noopMetrics) IncPersistenceError(NodeID, string)               {}
