// Package raft is the consensus backbone of the quorumcore replicated log.
//
// It implements leader election, fetch-driven log replication, high-watermark
// advancement, and leader handoff for a single partition. Nodes are either
// voters (members of the quorum) or observers (replicate but never vote).
// The package owns the ConsensusCore poll loop and its collaborators
// (PersistentElectionStore, ReplicatedLog, NetworkChannel, QuorumState);
// wire framing, the raw socket transport, and the downstream application
// state machine live outside it.
package raft

import "errors"

// NodeID identifies a Raft participant. Zero is not a valid node id.
type NodeID int64

// NoLeader is the sentinel leader id meaning "no known leader".
const NoLeader NodeID = -1

// NoVote is the sentinel votedFor value meaning "no vote cast this epoch".
const NoVote NodeID = -1

// Epoch is a monotonically non-decreasing leadership term counter.
type Epoch int64

// Offset is a position in the replicated log.
type Offset int64

// Role identifies which state-machine variant a node currently occupies.
type Role int

// The five roles a node can occupy. Observer never becomes Candidate/Leader.
const (
	RoleUnattached Role = iota
	RoleCandidate
	RoleLeader
	RoleFollower
	RoleObserver
)

// String renders the role for logging.
func (r Role) String() string {
	switch r {
	case RoleUnattached:
		return "unattached"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RoleFollower:
		return "follower"
	case RoleObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// NodeStatus reports operational health of the core runtime.
type NodeStatus string

// Runtime health states exposed by ConsensusCore.Status.
const (
	NodeStatusHealthy  NodeStatus = "healthy"
	NodeStatusDegraded NodeStatus = "degraded"
)

// ElectionRecord is the durable tuple every voter persists across restarts.
//
// At most one of Leader and VotedFor is set within a given epoch; once
// Leader is set at epoch e, VotedFor at e is cleared.
type ElectionRecord struct {
	Epoch    Epoch
	Leader   NodeID // NoLeader if unknown
	VotedFor NodeID // NoVote if not yet voted this epoch
}

// VoterSet is the fixed set of voter node ids for an epoch.
type VoterSet struct {
	Voters []NodeID
}

// Contains reports whether id is a member of the voter set.
func (v VoterSet) Contains(id NodeID) bool {
	for _, m := range v.Voters {
		if m == id {
			return true
		}
	}
	return false
}

// Majority returns the strict-majority quorum size for this voter set.
func (v VoterSet) Majority() int {
	return len(v.Voters)/2 + 1
}

// EntryType distinguishes application payload batches from control batches.
type EntryType uint8

// Supported log entry types.
const (
	EntryPayload EntryType = iota
	EntryControl
)

// ControlRecordType identifies the kind of control-record payload.
type ControlRecordType uint8

// LeaderChangeRecordType is the only control record kind this core emits.
const LeaderChangeRecordType ControlRecordType = 1

// LeaderChangeRecord is the control-record payload the leader appends on
// every leadership transition; it captures the voter set at that epoch.
type LeaderChangeRecord struct {
	Version  int
	LeaderID NodeID
	Voters   []NodeID
}

// Batch is a run of log entries appended together, tagged with the epoch
// that produced them and (for control batches) a control-record payload.
type Batch struct {
	BaseOffset   Offset
	Epoch        Epoch
	IsControl    bool
	Timestamp    int64 // unix millis
	Records      [][]byte
	ControlValue *LeaderChangeRecord // set only when IsControl
}

// LastOffset returns the offset just past the last record in the batch.
func (b Batch) LastOffset() Offset {
	n := len(b.Records)
	if b.IsControl {
		n = 1
	}
	return b.BaseOffset + Offset(n)
}

// ApiKey identifies one of the five Raft RPC families.
type ApiKey int

// The five apiKeys defined by the message envelope contract.
const (
	ApiVote ApiKey = iota
	ApiBeginQuorumEpoch
	ApiEndQuorumEpoch
	ApiFetchQuorumRecords
	ApiFindQuorum
)

// String renders the apiKey for logging.
func (k ApiKey) String() string {
	switch k {
	case ApiVote:
		return "VOTE"
	case ApiBeginQuorumEpoch:
		return "BEGIN_QUORUM_EPOCH"
	case ApiEndQuorumEpoch:
		return "END_QUORUM_EPOCH"
	case ApiFetchQuorumRecords:
		return "FETCH_QUORUM_RECORDS"
	case ApiFindQuorum:
		return "FIND_QUORUM"
	default:
		return "UNKNOWN"
	}
}

// ErrorCode is the error taxonomy exposed on the wire (§6, §7).
type ErrorCode int

// Error codes exposed by the message envelope contract.
const (
	ErrNone ErrorCode = iota
	ErrBrokerNotAvailable
	ErrClusterAuthorizationFailed
	ErrOffsetOutOfRange
	ErrUnknownServerError
	ErrFencedLeaderEpoch
	ErrNotLeaderForPartitionCode
)

// String renders the error code for logging.
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrBrokerNotAvailable:
		return "BROKER_NOT_AVAILABLE"
	case ErrClusterAuthorizationFailed:
		return "CLUSTER_AUTHORIZATION_FAILED"
	case ErrOffsetOutOfRange:
		return "OFFSET_OUT_OF_RANGE"
	case ErrUnknownServerError:
		return "UNKNOWN_SERVER_ERROR"
	case ErrFencedLeaderEpoch:
		return "FENCED_LEADER_EPOCH"
	case ErrNotLeaderForPartitionCode:
		return "NOT_LEADER_FOR_PARTITION"
	default:
		return "UNKNOWN"
	}
}

// --- payload contracts (§6) ---

// VoteRequest is sent by a candidate soliciting a vote.
type VoteRequest struct {
	CandidateEpoch     Epoch
	CandidateID        NodeID
	LastEpoch          Epoch
	LastEpochEndOffset Offset
}

// VoteResponse answers a VoteRequest.
type VoteResponse struct {
	ErrorCode   ErrorCode
	LeaderEpoch Epoch
	LeaderID    NodeID
	VoteGranted bool
}

// BeginQuorumEpochRequest announces a new leader for an epoch.
type BeginQuorumEpochRequest struct {
	LeaderEpoch Epoch
	LeaderID    NodeID
	ReplicaID   NodeID
}

// BeginQuorumEpochResponse acknowledges a BeginQuorumEpochRequest.
type BeginQuorumEpochResponse struct {
	ErrorCode   ErrorCode
	LeaderEpoch Epoch
	LeaderID    NodeID
}

// EndQuorumEpochRequest signals a graceful leadership handoff.
type EndQuorumEpochRequest struct {
	LeaderEpoch Epoch
	LeaderID    NodeID
	ReplicaID   NodeID
}

// EndQuorumEpochResponse acknowledges an EndQuorumEpochRequest.
type EndQuorumEpochResponse struct {
	ErrorCode   ErrorCode
	LeaderEpoch Epoch
	LeaderID    NodeID
}

// FetchQuorumRecordsRequest is sent continuously by followers/observers.
type FetchQuorumRecordsRequest struct {
	LeaderEpoch     Epoch
	FetchOffset     Offset
	LastFetchedEpoch Epoch
	ReplicaID       NodeID
}

// FetchQuorumRecordsResponse answers a fetch, or reports divergence.
type FetchQuorumRecordsResponse struct {
	ErrorCode           ErrorCode
	LeaderEpoch         Epoch
	LeaderID            NodeID
	HighWatermark       Offset
	Records             []Batch
	NextFetchOffset      Offset // valid only with ErrOffsetOutOfRange
	NextFetchOffsetEpoch Epoch  // valid only with ErrOffsetOutOfRange
}

// VoterInfo describes one voter's endpoint as returned by FindQuorum.
type VoterInfo struct {
	VoterID       NodeID
	BootTimestamp int64
	Host          string
	Port          int
}

// FindQuorumRequest is sent by an observer or unattached voter to discover
// the current leader.
type FindQuorumRequest struct {
	ReplicaID NodeID
}

// FindQuorumResponse carries the leader/epoch and the full voter roster.
type FindQuorumResponse struct {
	ErrorCode   ErrorCode
	LeaderEpoch Epoch
	LeaderID    NodeID
	Voters      []VoterInfo
}

// Sentinel errors surfaced across the package.
var (
	ErrNilStorage          = errors.New("raft: nil election store")
	ErrNilLog              = errors.New("raft: nil replicated log")
	ErrNilChannel          = errors.New("raft: nil network channel")
	ErrNilLogger           = errors.New("raft: nil logger")
	ErrNodeDegraded        = errors.New("raft: core degraded")
	ErrNotLeaderForPartition = errors.New("raft: not leader for partition")
	ErrUnknownDestination  = errors.New("raft: unknown destination node")
	ErrUnknownApiKey       = errors.New("raft: unknown api key")
	ErrQueueOverflow       = errors.New("raft: bounded queue overflow")
	ErrOffsetGap           = errors.New("raft: append would create an offset gap")
)
