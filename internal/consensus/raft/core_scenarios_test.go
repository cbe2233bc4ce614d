package raft

import (
	"context"
	"testing"
	"time"
)

func baseConfig(self NodeID, voters []NodeID) Config {
	return Config{
		SelfID:            self,
		Voters:            voters,
		ElectionTimeoutMs: 1000,
		ElectionJitterMs:  100,
		RetryBackoffMs:    50,
		RequestTimeoutMs:  500,
		MaxQueueSize:      8,
	}
}

// rearmWithFakeClock swaps in a deterministic clock/jitter and re-arms the
// election deadline from it, for tests that need to force a timeout
// without sleeping.
func rearmWithFakeClock(c *ConsensusCore, clock *fakeClock) {
	c.clock = clock.Now
	c.jitter = zeroJitter
	c.armElectionTimeout()
}

// TestScenarioS1_SingleMemberQuorumSelfElects mirrors S1: a lone voter
// self-elects on its first election timeout and, once leader, an append
// reaches a high-watermark of baseline+3 (payload records) plus the one
// leader-change control record already counted in endOffset.
func TestScenarioS1_SingleMemberQuorumSelfElects(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := baseConfig(1, []NodeID{1})
	core := newTestCore(cfg, network)

	clock := newFakeClock(time.Unix(0, 0))
	rearmWithFakeClock(core, clock)
	clock.Advance(cfg.electionTimeout())

	core.Poll(context.Background(), 0)

	if core.Role() != RoleLeader {
		t.Fatalf("Role() = %v, want Leader", core.Role())
	}
	if core.Epoch() != 1 {
		t.Fatalf("Epoch() = %d, want 1", core.Epoch())
	}
	if core.Leader() != 1 {
		t.Fatalf("Leader() = %d, want self", core.Leader())
	}

	future := core.Append([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	core.Poll(context.Background(), 0)

	result := future.Wait()
	if result.Err != nil {
		t.Fatalf("Append() result error = %v", result.Err)
	}
	if result.BaseOffset != 1 {
		t.Fatalf("Append() base offset = %d, want 1 (after the leader-change control record)", result.BaseOffset)
	}

	core.Poll(context.Background(), 0)
	if got := core.HighWatermark(); got != 4 {
		t.Fatalf("HighWatermark() = %d, want 4", got)
	}
}

// TestScenarioS3_RetryElectionAfterReject mirrors S3: a rejected candidacy
// stays Candidate at the same epoch until electionTimeout+jitter elapses,
// then restarts at epoch+1.
func TestScenarioS3_RetryElectionAfterReject(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	network.Register(2, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		return &Envelope{VoteResp: &VoteResponse{ErrorCode: ErrNone, LeaderEpoch: env.Vote.CandidateEpoch, VoteGranted: false}}, nil
	})

	cfg := baseConfig(1, []NodeID{1, 2})
	core := newTestCore(cfg, network)
	core.channel.UpdateEndpoint(2, "peer")

	clock := newFakeClock(time.Unix(0, 0))
	rearmWithFakeClock(core, clock)
	clock.Advance(cfg.electionTimeout())

	core.Poll(context.Background(), 0)
	core.Poll(context.Background(), 100*time.Millisecond) // let the rejection response land

	if core.Epoch() != 1 || core.Role() != RoleCandidate {
		t.Fatalf("Role()/Epoch() = %v/%d, want Candidate/1 after a single rejection", core.Role(), core.Epoch())
	}

	clock.Advance(cfg.electionTimeout())
	core.Poll(context.Background(), 0)

	if core.Epoch() != 2 || core.Role() != RoleCandidate {
		t.Fatalf("Role()/Epoch() = %v/%d, want Candidate/2 after the retry timeout", core.Role(), core.Epoch())
	}
}

// TestScenarioS4_FollowerTruncatesOnDivergence mirrors S4.
func TestScenarioS4_FollowerTruncatesOnDivergence(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := baseConfig(1, []NodeID{1, 5})
	core := newTestCore(cfg, network)

	for i := 0; i < 3; i++ {
		if _, err := core.log.AppendAsLeader([][]byte{[]byte("x")}, 3, 0); err != nil {
			t.Fatalf("AppendAsLeader() error = %v", err)
		}
	}
	if err := core.quorum.BecomeFollower(5, 5, time.Time{}); err != nil {
		t.Fatalf("BecomeFollower() error = %v", err)
	}

	corr := core.channel.NewCorrelationID()
	core.fetchRequest = &outstandingRequest{correlationID: corr, destination: 5, epoch: 5, deadline: time.Now().Add(time.Hour)}

	core.handleFetchResponse(&Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFetchQuorumRecords,
		FetchResp: &FetchQuorumRecordsResponse{
			ErrorCode:            ErrOffsetOutOfRange,
			LeaderEpoch:          5,
			LeaderID:             5,
			NextFetchOffset:      2,
			NextFetchOffsetEpoch: 3,
		},
	})

	if got := core.log.EndOffset(); got != 2 {
		t.Fatalf("EndOffset() after truncation = %d, want 2", got)
	}
}

// TestScenarioS5_StaleFetchResponseIgnoredAfterRoleChange mirrors S5.
func TestScenarioS5_StaleFetchResponseIgnoredAfterRoleChange(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := baseConfig(1, []NodeID{1, 2})
	core := newTestCore(cfg, network)

	if err := core.quorum.BecomeFollower(5, 2, time.Time{}); err != nil {
		t.Fatalf("BecomeFollower() error = %v", err)
	}
	corr := core.channel.NewCorrelationID()
	core.fetchRequest = &outstandingRequest{correlationID: corr, destination: 2, epoch: 5, deadline: time.Now().Add(time.Hour)}

	// Election timeout elapses: Follower(5) -> Candidate(6).
	clock := newFakeClock(time.Unix(0, 0))
	rearmWithFakeClock(core, clock)
	clock.Advance(cfg.electionTimeout())
	core.driveTimeExpiredTransitions()

	if core.Role() != RoleCandidate || core.Epoch() != 6 {
		t.Fatalf("Role()/Epoch() = %v/%d, want Candidate/6", core.Role(), core.Epoch())
	}

	core.handleFetchResponse(&Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFetchQuorumRecords,
		FetchResp: &FetchQuorumRecordsResponse{
			ErrorCode: ErrNone,
			Records: []Batch{
				{BaseOffset: 0, Epoch: 5, Records: [][]byte{[]byte("a"), []byte("b")}},
			},
		},
	})

	if got := core.log.EndOffset(); got != 0 {
		t.Fatalf("EndOffset() = %d, want 0 (stale response must not apply)", got)
	}
	if core.Role() != RoleCandidate || core.Epoch() != 6 {
		t.Fatalf("Role()/Epoch() changed after stale response: %v/%d", core.Role(), core.Epoch())
	}
}

// TestScenarioS6_LeaderGracefulShutdown mirrors S6.
func TestScenarioS6_LeaderGracefulShutdown(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := baseConfig(1, []NodeID{1, 2})
	core := newTestCore(cfg, network)
	core.channel.UpdateEndpoint(2, "peer")

	if err := core.quorum.BecomeCandidate(); err != nil {
		t.Fatalf("BecomeCandidate() error = %v", err)
	}
	core.quorum.RecordGrant(2)
	if err := core.quorum.BecomeLeader(); err != nil {
		t.Fatalf("BecomeLeader() error = %v", err)
	}
	core.onBecameLeader()

	core.Shutdown(5 * time.Second)
	if !core.IsRunning() {
		t.Fatalf("IsRunning() = false immediately after Shutdown, want true for a leader")
	}

	core.emitLeaderRequests(context.Background())
	if len(core.endEpochRequests) != 1 {
		t.Fatalf("endEpochRequests = %v, want one EndQuorumEpoch sent to node 2", core.endEpochRequests)
	}

	core.dispatch(context.Background(), &Envelope{
		ApiKey: ApiVote, Direction: DirInboundRequest, Source: 2,
		Vote: &VoteRequest{CandidateEpoch: 2, CandidateID: 2},
	})

	if core.IsRunning() {
		t.Fatalf("IsRunning() = true, want false after observing epoch 2 > 1")
	}
}

// TestScenarioS7_ObserverRediscoveryAfterBrokerNotAvailable mirrors S7.
func TestScenarioS7_ObserverRediscoveryAfterBrokerNotAvailable(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := Config{SelfID: 9, Voters: []NodeID{5}, BootstrapAddrs: []string{"bootstrap:1"},
		ElectionTimeoutMs: 1000, ElectionJitterMs: 0, RetryBackoffMs: 50, RequestTimeoutMs: 500, MaxQueueSize: 8}
	core := newTestCore(cfg, network)

	if err := core.quorum.BecomeFollower(5, 5, time.Time{}); err != nil {
		t.Fatalf("BecomeFollower() error = %v", err)
	}
	core.voterEndpoints[5] = VoterInfo{VoterID: 5}

	corr := core.channel.NewCorrelationID()
	core.fetchRequest = &outstandingRequest{correlationID: corr, destination: 5, epoch: 5, deadline: time.Now().Add(time.Hour)}

	core.handleFetchResponse(&Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFetchQuorumRecords,
		FetchResp:     &FetchQuorumRecordsResponse{ErrorCode: ErrBrokerNotAvailable},
	})

	if core.Role() != RoleObserver || core.Leader() != NoLeader {
		t.Fatalf("Role()/Leader() = %v/%d, want Observer/NoLeader after BROKER_NOT_AVAILABLE", core.Role(), core.Leader())
	}
	if !core.needsDiscovery() {
		t.Fatalf("needsDiscovery() = false, want true once the leader is lost")
	}
}
