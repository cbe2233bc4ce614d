package raft

import (
	"fmt"
	"time"
)

// QuorumState is the in-memory projection of the ElectionRecord plus
// transient per-role bookkeeping (§4.4). Every transition that changes
// (epoch, leader, votedFor) is persisted through the ElectionStore before
// it becomes observable.
type QuorumState struct {
	selfID  NodeID
	voters  VoterSet
	isVoter bool

	store  ElectionStore
	logger Logger

	role Role
	rec  ElectionRecord

	// Candidate bookkeeping.
	granted  map[NodeID]bool
	rejected map[NodeID]bool

	// Follower bookkeeping.
	electionDeadline time.Time

	// Leader bookkeeping: last-known fetch offset per voter (self included).
	fetchOffsets map[NodeID]Offset
}

// NewQuorumState loads the persisted ElectionRecord and derives the initial
// role (§4.6 "Initial state on boot").
func NewQuorumState(selfID NodeID, voters VoterSet, store ElectionStore, logger Logger) (*QuorumState, error) {
	if store == nil {
		return nil, ErrNilStorage
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	rec, ok, err := store.Read()
	if err != nil {
		return nil, err
	}
	if !ok {
		rec = ElectionRecord{Epoch: 0, Leader: NoLeader, VotedFor: NoVote}
	}

	qs := &QuorumState{
		selfID:  selfID,
		voters:  voters,
		isVoter: voters.Contains(selfID),
		store:   store,
		logger:  logger,
		rec:     rec,
	}

	switch {
	case !qs.isVoter:
		qs.role = RoleObserver
	case rec.Leader != NoLeader:
		qs.role = RoleFollower
	default:
		qs.role = RoleUnattached
	}

	return qs, nil
}

// Role returns the current role.
func (q *QuorumState) Role() Role { return q.role }

// Epoch returns the current epoch.
func (q *QuorumState) Epoch() Epoch { return q.rec.Epoch }

// Leader returns the currently known leader, or NoLeader.
func (q *QuorumState) Leader() NodeID { return q.rec.Leader }

// VotedFor returns the current epoch's vote, or NoVote.
func (q *QuorumState) VotedFor() NodeID { return q.rec.VotedFor }

// IsLeader reports whether this node believes it is the leader.
func (q *QuorumState) IsLeader() bool { return q.role == RoleLeader }

// IsCandidate reports whether this node is currently campaigning.
func (q *QuorumState) IsCandidate() bool { return q.role == RoleCandidate }

// IsFollower reports whether this node currently follows a known leader.
func (q *QuorumState) IsFollower() bool { return q.role == RoleFollower }

// IsObserver reports whether this node is a non-voting observer.
func (q *QuorumState) IsObserver() bool { return q.role == RoleObserver }

// IsVoter reports whether id is a member of the voter set.
func (q *QuorumState) IsVoter(id NodeID) bool { return q.voters.Contains(id) }

// Voters returns the current voter set.
func (q *QuorumState) Voters() VoterSet { return q.voters }

// ElectionDeadline returns the follower/unattached election timeout deadline.
func (q *QuorumState) ElectionDeadline() time.Time { return q.electionDeadline }

// GrantedVotes returns the number of votes granted to this candidacy,
// counting self.
func (q *QuorumState) GrantedVotes() int { return len(q.granted) }

// HasMajority reports whether the granted vote set is a strict majority.
func (q *QuorumState) HasMajority() bool {
	return len(q.granted) >= q.voters.Majority()
}

// RecordRejection records a vote rejection from a peer for the current
// candidacy (bookkeeping only, not persisted).
func (q *QuorumState) RecordRejection(id NodeID) {
	if q.rejected == nil {
		q.rejected = make(map[NodeID]bool)
	}
	q.rejected[id] = true
}

// FetchOffset returns the leader's last-known fetch offset for voter id.
func (q *QuorumState) FetchOffset(id NodeID) (Offset, bool) {
	off, ok := q.fetchOffsets[id]
	return off, ok
}

// UpdateFetchOffset records the leader-side matchOffset(v) := max(...) rule
// (§4.5 "High-watermark").
func (q *QuorumState) UpdateFetchOffset(id NodeID, offset Offset) {
	if q.fetchOffsets == nil {
		q.fetchOffsets = make(map[NodeID]Offset)
	}
	if offset > q.fetchOffsets[id] {
		q.fetchOffsets[id] = offset
	}
}

// AllFetchOffsets returns a copy of the leader-side fetch-offset table.
func (q *QuorumState) AllFetchOffsets() map[NodeID]Offset {
	out := make(map[NodeID]Offset, len(q.fetchOffsets))
	for k, v := range q.fetchOffsets {
		out[k] = v
	}
	return out
}

// BecomeUnattached clears leader & votedFor at the given epoch. epoch must
// be >= the current epoch.
func (q *QuorumState) BecomeUnattached(epoch Epoch) error {
	if epoch < q.rec.Epoch {
		return fmt.Errorf("raft: becomeUnattached epoch %d < current %d", epoch, q.rec.Epoch)
	}
	rec := ElectionRecord{Epoch: epoch, Leader: NoLeader, VotedFor: NoVote}
	if err := q.persist(rec); err != nil {
		return err
	}
	q.rec = rec
	q.role = roleForVoterState(q.isVoter, false)
	q.granted, q.rejected, q.fetchOffsets = nil, nil, nil
	q.logger.Debug("quorum state: became unattached", "node_id", q.selfID, "epoch", epoch)
	return nil
}

// BecomeCandidate bumps the epoch, votes for self, and arms the granted-vote
// set to {self}. Voters only.
func (q *QuorumState) BecomeCandidate() error {
	if !q.isVoter {
		return fmt.Errorf("raft: observer cannot become candidate")
	}
	rec := ElectionRecord{Epoch: q.rec.Epoch + 1, Leader: NoLeader, VotedFor: q.selfID}
	if err := q.persist(rec); err != nil {
		return err
	}
	q.rec = rec
	q.role = RoleCandidate
	q.granted = map[NodeID]bool{q.selfID: true}
	q.rejected = nil
	q.fetchOffsets = nil
	q.logger.Debug("quorum state: became candidate", "node_id", q.selfID, "epoch", rec.Epoch)
	return nil
}

// BecomeFollower sets leader/clears votedFor at epoch >= current, and arms
// electionDeadline.
func (q *QuorumState) BecomeFollower(epoch Epoch, leaderID NodeID, electionDeadline time.Time) error {
	if epoch < q.rec.Epoch {
		return fmt.Errorf("raft: becomeFollower epoch %d < current %d", epoch, q.rec.Epoch)
	}
	rec := ElectionRecord{Epoch: epoch, Leader: leaderID, VotedFor: NoVote}
	if err := q.persist(rec); err != nil {
		return err
	}
	q.rec = rec
	q.role = roleForVoterState(q.isVoter, true)
	q.electionDeadline = electionDeadline
	q.granted, q.rejected, q.fetchOffsets = nil, nil, nil
	q.logger.Debug("quorum state: became follower", "node_id", q.selfID, "epoch", epoch, "leader_id", leaderID)
	return nil
}

// BecomeLeader is only valid from Candidate with a granted majority.
func (q *QuorumState) BecomeLeader() error {
	if q.role != RoleCandidate {
		return fmt.Errorf("raft: becomeLeader requires Candidate, have %s", q.role)
	}
	if !q.HasMajority() {
		return fmt.Errorf("raft: becomeLeader requires a majority, have %d/%d", len(q.granted), q.voters.Majority())
	}
	rec := ElectionRecord{Epoch: q.rec.Epoch, Leader: q.selfID, VotedFor: NoVote}
	if err := q.persist(rec); err != nil {
		return err
	}
	q.rec = rec
	q.role = RoleLeader
	q.fetchOffsets = map[NodeID]Offset{}
	q.logger.Debug("quorum state: became leader", "node_id", q.selfID, "epoch", rec.Epoch)
	return nil
}

// RecordVote grants a vote to candidateID at epoch, iff we have not already
// voted for someone else this epoch. Voters only.
func (q *QuorumState) RecordVote(epoch Epoch, candidateID NodeID) error {
	if !q.isVoter {
		return fmt.Errorf("raft: observer cannot vote")
	}
	if epoch != q.rec.Epoch {
		return fmt.Errorf("raft: recordVote epoch %d != current %d", epoch, q.rec.Epoch)
	}
	if q.rec.VotedFor != NoVote && q.rec.VotedFor != candidateID {
		return fmt.Errorf("raft: already voted for %d this epoch", q.rec.VotedFor)
	}
	rec := q.rec
	rec.VotedFor = candidateID
	if err := q.persist(rec); err != nil {
		return err
	}
	q.rec = rec
	return nil
}

// RecordGrant records that a peer granted our candidacy's vote request.
func (q *QuorumState) RecordGrant(id NodeID) {
	if q.granted == nil {
		q.granted = make(map[NodeID]bool)
	}
	q.granted[id] = true
}

// SetElectionDeadline arms/rearms the follower/unattached election timeout
// without otherwise changing state.
func (q *QuorumState) SetElectionDeadline(deadline time.Time) {
	q.electionDeadline = deadline
}

func (q *QuorumState) persist(rec ElectionRecord) error {
	return q.store.Write(rec)
}

func roleForVoterState(isVoter, hasLeader bool) Role {
	if !isVoter {
		return RoleObserver
	}
	if hasLeader {
		return RoleFollower
	}
	return RoleUnattached
}
