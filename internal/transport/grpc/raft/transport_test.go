package raftgrpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	raftgrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/raft"
)

const bufSize = 1 << 20 // 1 MB

// fakeInbound stands in for a raft.Channel's SubmitInboundRequest: it hands
// back a canned response without requiring a running ConsensusCore.
type fakeInbound struct {
	resp *raft.Envelope
	err  error
	got  *raft.Envelope
}

func (f *fakeInbound) SubmitInboundRequest(_ context.Context, env *raft.Envelope) (*raft.Envelope, error) {
	f.got = env
	return f.resp, f.err
}

// startServer spins up an in-process gRPC server over bufconn and returns a
// dialed Client plus a cleanup function.
func startServer(t *testing.T, inbound raftgrpc.Inbound) (*raftgrpc.Client, func()) {
	t.Helper()
	tracer := noop.NewTracerProvider().Tracer("test")

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	raftgrpc.RegisterRaftServer(srv, raftgrpc.NewServer(inbound, tracer))
	go func() { _ = srv.Serve(lis) }()

	dialOpts := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	client := raftgrpc.NewClient(tracer, dialOpts...)
	client.UpdateEndpoint(1, "passthrough:///bufconn")

	cleanup := func() {
		_ = client.Close()
		srv.GracefulStop()
	}
	return client, cleanup
}

func TestRoundTrip_VoteRequestResponse(t *testing.T) {
	inbound := &fakeInbound{
		resp: &raft.Envelope{
			ApiKey:    raft.ApiVote,
			Direction: raft.DirInboundResponse,
			VoteResp:  &raft.VoteResponse{LeaderEpoch: 3, LeaderID: 1, VoteGranted: true},
		},
	}
	client, cleanup := startServer(t, inbound)
	defer cleanup()

	req := &raft.Envelope{
		CorrelationID: 7,
		ApiKey:        raft.ApiVote,
		Destination:   1,
		Direction:     raft.DirOutboundRequest,
		Vote: &raft.VoteRequest{
			CandidateEpoch: 3,
			CandidateID:    2,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.RoundTrip(ctx, req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.VoteResp == nil || !resp.VoteResp.VoteGranted {
		t.Fatalf("VoteResp = %+v, want VoteGranted=true", resp.VoteResp)
	}

	if inbound.got == nil || inbound.got.Vote == nil {
		t.Fatal("server did not receive the vote request")
	}
	if inbound.got.Vote.CandidateID != 2 {
		t.Errorf("CandidateID: want 2, got %d", inbound.got.Vote.CandidateID)
	}
}

func TestRoundTrip_FetchWithRecords(t *testing.T) {
	inbound := &fakeInbound{
		resp: &raft.Envelope{
			ApiKey:    raft.ApiFetchQuorumRecords,
			Direction: raft.DirInboundResponse,
			FetchResp: &raft.FetchQuorumRecordsResponse{
				LeaderEpoch:   4,
				LeaderID:      1,
				HighWatermark: 2,
				Records: []raft.Batch{
					{BaseOffset: 1, Epoch: 4, Records: [][]byte{[]byte("a"), []byte("b")}},
				},
			},
		},
	}
	client, cleanup := startServer(t, inbound)
	defer cleanup()

	req := &raft.Envelope{
		CorrelationID: 9,
		ApiKey:        raft.ApiFetchQuorumRecords,
		Destination:   1,
		Direction:     raft.DirOutboundRequest,
		Fetch: &raft.FetchQuorumRecordsRequest{
			LeaderEpoch: 4,
			FetchOffset: 1,
			ReplicaID:   2,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.RoundTrip(ctx, req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	if resp.FetchResp == nil || resp.FetchResp.HighWatermark != 2 {
		t.Fatalf("FetchResp = %+v, want HighWatermark=2", resp.FetchResp)
	}
	if len(resp.FetchResp.Records) != 1 || len(resp.FetchResp.Records[0].Records) != 2 {
		t.Fatalf("Records = %+v, want one batch of two records", resp.FetchResp.Records)
	}
}

func TestRoundTrip_ServerError(t *testing.T) {
	inbound := &fakeInbound{err: context.DeadlineExceeded}
	client, cleanup := startServer(t, inbound)
	defer cleanup()

	req := &raft.Envelope{
		CorrelationID: 1,
		ApiKey:        raft.ApiFindQuorum,
		Destination:   1,
		Direction:     raft.DirOutboundRequest,
		FindQuorum:    &raft.FindQuorumRequest{ReplicaID: 2},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.RoundTrip(ctx, req); err == nil {
		t.Fatal("expected an error from RoundTrip")
	}
}

func TestConnected_UnknownBeforeUpdateEndpoint(t *testing.T) {
	client := raftgrpc.NewClient(noop.NewTracerProvider().Tracer("test"))
	_, unknown := client.Connected(42)
	if !unknown {
		t.Fatal("Connected() = unknown=false for a never-registered node id")
	}
}
