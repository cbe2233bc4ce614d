package raft

import "testing"

func TestNewQuorumState_VoterWithNoPersistedRecordStartsUnattached(t *testing.T) {
	t.Parallel()

	q, err := NewQuorumState(1, VoterSet{Voters: []NodeID{1, 2, 3}}, NewInMemoryElectionStore(), testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}
	if q.Role() != RoleUnattached {
		t.Fatalf("Role() = %v, want Unattached", q.Role())
	}
}

func TestNewQuorumState_NonVoterIsAlwaysObserver(t *testing.T) {
	t.Parallel()

	store := NewInMemoryElectionStore()
	if err := store.Write(ElectionRecord{Epoch: 1, Leader: 1, VotedFor: NoVote}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	q, err := NewQuorumState(9, VoterSet{Voters: []NodeID{1, 2, 3}}, store, testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}
	if q.Role() != RoleObserver {
		t.Fatalf("Role() = %v, want Observer even with a known leader", q.Role())
	}
}

func TestQuorumState_BecomeCandidateBumpsEpochAndVotesSelf(t *testing.T) {
	t.Parallel()

	store := NewInMemoryElectionStore()
	q, err := NewQuorumState(1, VoterSet{Voters: []NodeID{1, 2, 3}}, store, testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}

	if err := q.BecomeCandidate(); err != nil {
		t.Fatalf("BecomeCandidate() error = %v", err)
	}
	if q.Epoch() != 1 {
		t.Fatalf("Epoch() = %d, want 1", q.Epoch())
	}
	if q.VotedFor() != 1 {
		t.Fatalf("VotedFor() = %d, want self", q.VotedFor())
	}
	if q.HasMajority() {
		t.Fatalf("expected self-vote alone not to satisfy a 3-voter majority")
	}

	rec, ok, err := store.Read()
	if err != nil || !ok {
		t.Fatalf("Read() = (%+v, %v, %v)", rec, ok, err)
	}
	if rec.Epoch != 1 || rec.VotedFor != 1 {
		t.Fatalf("persisted record = %+v, want epoch=1 votedFor=1", rec)
	}
}

func TestQuorumState_BecomeCandidateRejectsObserver(t *testing.T) {
	t.Parallel()

	q, err := NewQuorumState(9, VoterSet{Voters: []NodeID{1, 2, 3}}, NewInMemoryElectionStore(), testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}
	if err := q.BecomeCandidate(); err == nil {
		t.Fatalf("expected an observer to be rejected from BecomeCandidate")
	}
}

func TestQuorumState_BecomeLeaderRequiresMajority(t *testing.T) {
	t.Parallel()

	q, err := NewQuorumState(1, VoterSet{Voters: []NodeID{1, 2, 3}}, NewInMemoryElectionStore(), testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}
	if err := q.BecomeCandidate(); err != nil {
		t.Fatalf("BecomeCandidate() error = %v", err)
	}
	if err := q.BecomeLeader(); err == nil {
		t.Fatalf("expected BecomeLeader() to fail without a majority")
	}

	q.RecordGrant(2)
	if err := q.BecomeLeader(); err != nil {
		t.Fatalf("BecomeLeader() error = %v", err)
	}
	if !q.IsLeader() {
		t.Fatalf("expected IsLeader() after majority grant")
	}
}

// TestQuorumState_RecordVoteEnforcesUniqueness covers P2: once votedFor is
// set for an epoch, it cannot silently change within that epoch.
func TestQuorumState_RecordVoteEnforcesUniqueness(t *testing.T) {
	t.Parallel()

	store := NewInMemoryElectionStore()
	if err := store.Write(ElectionRecord{Epoch: 4, Leader: NoLeader, VotedFor: NoVote}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	q, err := NewQuorumState(1, VoterSet{Voters: []NodeID{1, 2, 3}}, store, testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}

	if err := q.RecordVote(4, 2); err != nil {
		t.Fatalf("RecordVote(4,2) error = %v", err)
	}
	if err := q.RecordVote(4, 2); err != nil {
		t.Fatalf("re-voting for the same candidate in the same epoch should be idempotent, got %v", err)
	}
	if err := q.RecordVote(4, 3); err == nil {
		t.Fatalf("expected RecordVote(4,3) to fail after already voting for 2 at epoch 4")
	}
}

func TestQuorumState_BecomeFollowerRejectsLowerEpoch(t *testing.T) {
	t.Parallel()

	store := NewInMemoryElectionStore()
	if err := store.Write(ElectionRecord{Epoch: 5, Leader: NoLeader, VotedFor: NoVote}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	q, err := NewQuorumState(1, VoterSet{Voters: []NodeID{1, 2}}, store, testLogger)
	if err != nil {
		t.Fatalf("NewQuorumState() error = %v", err)
	}

	if err := q.BecomeFollower(4, 2, q.ElectionDeadline()); err == nil {
		t.Fatalf("expected BecomeFollower() to reject an epoch lower than current")
	}
}
