package raft

import (
	"context"
	"testing"
	"time"
)

func TestChannel_UnknownDestinationSynthesizesBrokerNotAvailable(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	transport := NewFakeTransport(network)
	ch := NewChannel(1, transport, testLogger, testMetrics, 50*time.Millisecond, 10*time.Millisecond, 8)

	ch.Send(&Envelope{
		CorrelationID: ch.NewCorrelationID(),
		ApiKey:        ApiVote,
		Destination:   99,
		Direction:     DirOutboundRequest,
		Vote:          &VoteRequest{CandidateEpoch: 1, CandidateID: 1},
	})

	got := ch.Receive(context.Background(), 100*time.Millisecond)
	if len(got) != 1 {
		t.Fatalf("Receive() returned %d envelopes, want 1", len(got))
	}
	if got[0].VoteResp == nil || got[0].VoteResp.ErrorCode != ErrBrokerNotAvailable {
		t.Fatalf("Receive() = %+v, want synthesized BROKER_NOT_AVAILABLE", got[0])
	}
}

func TestChannel_NotReadyDestinationIsRetriedNotDropped(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	network.Register(2, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		return &Envelope{VoteResp: &VoteResponse{ErrorCode: ErrNone, VoteGranted: true}}, nil
	})
	network.SetReachable(2, false)

	transport := NewFakeTransport(network)
	ch := NewChannel(1, transport, testLogger, testMetrics, 50*time.Millisecond, 5*time.Millisecond, 8)
	ch.UpdateEndpoint(2, "irrelevant")

	corr := ch.NewCorrelationID()
	ch.Send(&Envelope{CorrelationID: corr, ApiKey: ApiVote, Destination: 2, Direction: DirOutboundRequest, Vote: &VoteRequest{}})

	got := ch.Receive(context.Background(), 5*time.Millisecond)
	if len(got) != 0 {
		t.Fatalf("Receive() = %+v, want nothing while the peer is unreachable", got)
	}

	network.SetReachable(2, true)
	got = ch.Receive(context.Background(), 200*time.Millisecond)
	if len(got) != 1 || got[0].VoteResp == nil || !got[0].VoteResp.VoteGranted {
		t.Fatalf("Receive() = %+v, want the retried request to succeed once reachable", got)
	}
}

func TestChannel_ClusterAuthErrorSynthesizesClusterAuthorizationFailed(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	network.Register(2, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		return nil, ErrTransportClusterAuth(nil)
	})

	transport := NewFakeTransport(network)
	ch := NewChannel(1, transport, testLogger, testMetrics, 50*time.Millisecond, 5*time.Millisecond, 8)
	ch.UpdateEndpoint(2, "irrelevant")

	ch.Send(&Envelope{CorrelationID: ch.NewCorrelationID(), ApiKey: ApiVote, Destination: 2, Direction: DirOutboundRequest, Vote: &VoteRequest{}})

	got := ch.Receive(context.Background(), 200*time.Millisecond)
	if len(got) != 1 || got[0].VoteResp == nil || got[0].VoteResp.ErrorCode != ErrClusterAuthorizationFailed {
		t.Fatalf("Receive() = %+v, want synthesized CLUSTER_AUTHORIZATION_FAILED", got)
	}
}

func TestChannel_SendDoesNotDoubleCountPendingRequestsAgainstTheBound(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	network.Register(2, func(ctx context.Context, env *Envelope) (*Envelope, error) {
		return &Envelope{VoteResp: &VoteResponse{ErrorCode: ErrNone, VoteGranted: true}}, nil
	})

	transport := NewFakeTransport(network)
	ch := NewChannel(1, transport, testLogger, testMetrics, 50*time.Millisecond, 5*time.Millisecond, 3)
	ch.UpdateEndpoint(2, "irrelevant")

	// A burst of exactly maxQueue outbound requests, none of them flushed
	// (dispatched/acknowledged) yet, must not overflow — only undispatched
	// items in outboundQueue count against the bound, not pendingRequests
	// entries that are still awaiting a response.
	for i := 0; i < 3; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Send() panicked on request %d of 3: %v", i+1, r)
				}
			}()
			ch.Send(&Envelope{CorrelationID: ch.NewCorrelationID(), ApiKey: ApiVote, Destination: 2, Direction: DirOutboundRequest, Vote: &VoteRequest{}})
		}()
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("Send() of a 4th request did not panic, want ErrQueueOverflow")
			}
		}()
		ch.Send(&Envelope{CorrelationID: ch.NewCorrelationID(), ApiKey: ApiVote, Destination: 2, Direction: DirOutboundRequest, Vote: &VoteRequest{}})
	}()
}

func TestChannel_InboundRequestIsAnsweredBySend(t *testing.T) {
	t.Parallel()

	network := NewFakeNetwork()
	transport := NewFakeTransport(network)
	ch := NewChannel(1, transport, testLogger, testMetrics, 50*time.Millisecond, 5*time.Millisecond, 8)
	network.Register(1, ch.SubmitInboundRequest)

	done := make(chan *Envelope, 1)
	go func() {
		resp, err := network.handlers[1](context.Background(), &Envelope{
			CorrelationID: 42,
			ApiKey:        ApiVote,
			Direction:     DirInboundRequest,
			Source:        2,
			Vote:          &VoteRequest{CandidateEpoch: 1, CandidateID: 2},
		})
		if err != nil {
			t.Errorf("SubmitInboundRequest() error = %v", err)
		}
		done <- resp
	}()

	inbound := ch.Receive(context.Background(), 200*time.Millisecond)
	if len(inbound) != 1 || inbound[0].Vote == nil {
		t.Fatalf("Receive() = %+v, want the inbound VoteRequest", inbound)
	}

	ch.Send(&Envelope{
		CorrelationID: inbound[0].CorrelationID,
		ApiKey:        ApiVote,
		Direction:     DirOutboundResponse,
		VoteResp:      &VoteResponse{ErrorCode: ErrNone, VoteGranted: true},
	})

	select {
	case resp := <-done:
		if resp.VoteResp == nil || !resp.VoteResp.VoteGranted {
			t.Fatalf("SubmitInboundRequest() result = %+v, want VoteGranted", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for SubmitInboundRequest to unblock")
	}
}
