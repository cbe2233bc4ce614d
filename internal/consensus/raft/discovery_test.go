package raft

import (
	"context"
	"testing"
	"time"
)

func TestDiscovery_RoundRobinsBootstrapAddresses(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := Config{
		SelfID:            9,
		Voters:            []NodeID{5, 6},
		BootstrapAddrs:    []string{"host-a:1", "host-b:2"},
		ElectionTimeoutMs: 1000,
		RetryBackoffMs:    50,
		RequestTimeoutMs:  500,
		MaxQueueSize:      8,
	}
	core := newTestCore(cfg, network)

	if !core.needsDiscovery() {
		t.Fatalf("needsDiscovery() = false, want true before any voter endpoint is known")
	}

	core.emitDiscovery(context.Background())
	if core.bootstrapIdx != 1 {
		t.Fatalf("bootstrapIdx = %d, want 1 after the first emitDiscovery", core.bootstrapIdx)
	}
	first := core.findQuorumRequest
	if first == nil || first.destination != bootstrapPeerID {
		t.Fatalf("findQuorumRequest = %+v, want a pending request to bootstrapPeerID", first)
	}

	// A second emitDiscovery before the first request expires must not send
	// another FindQuorum (dedup rule, §4.5 step 2).
	core.emitDiscovery(context.Background())
	if core.findQuorumRequest.correlationID != first.correlationID {
		t.Fatalf("emitDiscovery sent a duplicate FindQuorum while one was still outstanding")
	}
}

func TestDiscovery_LearnsVoterEndpointsAndAdoptsLeader(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := Config{
		SelfID:            9,
		Voters:            []NodeID{5, 6},
		BootstrapAddrs:    []string{"host-a:1"},
		ElectionTimeoutMs: 1000,
		RetryBackoffMs:    50,
		RequestTimeoutMs:  500,
		MaxQueueSize:      8,
	}
	core := newTestCore(cfg, network)

	core.emitDiscovery(context.Background())
	corr := core.findQuorumRequest.correlationID

	core.dispatch(context.Background(), &Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFindQuorum,
		Direction:     DirInboundResponse,
		Source:        bootstrapPeerID,
		FindQuorumResp: &FindQuorumResponse{
			ErrorCode:   ErrNone,
			LeaderEpoch: 3,
			LeaderID:    5,
			Voters: []VoterInfo{
				{VoterID: 5, Host: "node5", Port: 100},
				{VoterID: 6, Host: "node6", Port: 100},
			},
		},
	})

	if _, ok := core.voterEndpoints[5]; !ok {
		t.Fatalf("voterEndpoints missing node 5 after FindQuorum response")
	}
	if _, ok := core.voterEndpoints[6]; !ok {
		t.Fatalf("voterEndpoints missing node 6 after FindQuorum response")
	}
	if core.Role() != RoleObserver || core.Leader() != 5 || core.Epoch() != 3 {
		t.Fatalf("Role()/Leader()/Epoch() = %v/%d/%d, want Observer/5/3", core.Role(), core.Leader(), core.Epoch())
	}
}

func TestDiscovery_ErrorResponseArmsRetryBackoffOnly(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	cfg := Config{
		SelfID:            9,
		Voters:            []NodeID{5},
		BootstrapAddrs:    []string{"host-a:1"},
		ElectionTimeoutMs: 1000,
		RetryBackoffMs:    50,
		RequestTimeoutMs:  500,
		MaxQueueSize:      8,
	}
	core := newTestCore(cfg, network)

	core.emitDiscovery(context.Background())
	corr := core.findQuorumRequest.correlationID

	clock := newFakeClock(time.Unix(0, 0))
	core.clock = clock.Now

	core.dispatch(context.Background(), &Envelope{
		CorrelationID:  corr,
		ApiKey:         ApiFindQuorum,
		Direction:      DirInboundResponse,
		Source:         bootstrapPeerID,
		FindQuorumResp: &FindQuorumResponse{ErrorCode: ErrBrokerNotAvailable},
	})

	if core.findQuorumRequest == nil || core.findQuorumRequest.expired(clock.Now()) {
		t.Fatalf("findQuorumRequest = %+v, want a live backoff-only cooldown", core.findQuorumRequest)
	}
	clock.Advance(cfg.retryBackoff())
	if !core.findQuorumRequest.expired(clock.Now()) {
		t.Fatalf("findQuorumRequest did not expire once the retry backoff elapsed")
	}
}
