package raft

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
)

var (
	testTracer  = noop.NewTracerProvider().Tracer("test/internal/consensus/raft")
	testMetrics = noopMetrics{}
	testLogger  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// newTestCore builds a ConsensusCore over an InMemoryElectionStore,
// InMemoryLog and FakeTransport, mirroring the teacher's newTestNode
// helper shape.
func newTestCore(cfg Config, network *FakeNetwork) *ConsensusCore {
	transport := NewFakeTransport(network)
	channel := NewChannel(cfg.SelfID, transport, testLogger, testMetrics, cfg.requestTimeout(), cfg.retryBackoff(), cfg.MaxQueueSize)
	network.Register(cfg.SelfID, channel.SubmitInboundRequest)

	c, err := NewConsensusCore(cfg, NewInMemoryElectionStore(), NewInMemoryLog(), channel, testLogger, testMetrics, testTracer)
	if err != nil {
		panic(err)
	}
	return c
}

// fakeClock is a settable clockFunc for deterministic election-timeout tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

// zeroJitter is a jitterFunc that always returns 0, for tests that need
// exact election-timeout arithmetic.
func zeroJitter(time.Duration) time.Duration { return 0 }

func background() context.Context { return context.Background() }
