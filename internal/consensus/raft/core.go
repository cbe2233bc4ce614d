package raft

import (
	"context"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// outstandingRequest tracks one in-flight outbound request so ConsensusCore
// never issues a duplicate for the same logical task while one is already
// in flight and unexpired (§4.5 step 2, §9 "Correlation-id book-keeping").
type outstandingRequest struct {
	correlationID uint32
	destination   NodeID
	epoch         Epoch
	deadline      time.Time
}

func (r *outstandingRequest) expired(now time.Time) bool {
	return r == nil || !now.Before(r.deadline)
}

// ConsensusCore is the single-threaded poll-loop driver described in §4.5.
// Every method except Append must be called from the single goroutine that
// owns Poll; Append is the one documented cross-goroutine edge (§5).
type ConsensusCore struct {
	selfID  NodeID
	quorum  *QuorumState
	log     ReplicatedLog
	channel NetworkChannel
	logger  Logger
	metrics Metrics
	tracer  oteltrace.Tracer

	clock  clockFunc
	jitter jitterFunc

	cfg Config

	electionDeadline time.Time

	// Candidate bookkeeping: one inflight VoteRequest per voter.
	voteRequests map[NodeID]*outstandingRequest

	// Leader bookkeeping: one inflight BeginQuorumEpoch per voter not yet
	// endorsed, one inflight EndQuorumEpoch per voter during shutdown.
	beginEpochRequests map[NodeID]*outstandingRequest
	endEpochRequests   map[NodeID]*outstandingRequest
	endorsed           map[NodeID]bool

	// Follower bookkeeping: the single inflight fetch.
	fetchRequest *outstandingRequest

	// Discovery bookkeeping: the single inflight FindQuorum.
	findQuorumRequest *outstandingRequest
	bootstrapIdx      int
	voterEndpoints    map[NodeID]VoterInfo

	highWatermark Offset

	shuttingDown     bool
	shutdownDeadline time.Time
	running          bool

	appendMailbox chan *appendRequest
}

// NewConsensusCore wires the four collaborators and validates cfg.
func NewConsensusCore(cfg Config, store ElectionStore, log ReplicatedLog, channel NetworkChannel, logger Logger, metrics Metrics, tracer oteltrace.Tracer) (*ConsensusCore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, ErrNilLog
	}
	if channel == nil {
		return nil, ErrNilChannel
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	quorum, err := NewQuorumState(cfg.SelfID, cfg.voterSet(), store, logger)
	if err != nil {
		return nil, err
	}

	c := &ConsensusCore{
		selfID:             cfg.SelfID,
		quorum:             quorum,
		log:                log,
		channel:            channel,
		logger:             logger,
		metrics:            metrics,
		tracer:             tracer,
		clock:              defaultClock,
		jitter:             defaultJitter,
		cfg:                cfg,
		voteRequests:       make(map[NodeID]*outstandingRequest),
		beginEpochRequests: make(map[NodeID]*outstandingRequest),
		endEpochRequests:   make(map[NodeID]*outstandingRequest),
		endorsed:           make(map[NodeID]bool),
		voterEndpoints:     make(map[NodeID]VoterInfo),
		running:            true,
		appendMailbox:      make(chan *appendRequest, 64),
	}

	// Observers never vote and never arm an election timeout; voters do,
	// whether they booted Follower or Unattached (§4.6 "Initial state on
	// boot").
	if quorum.Role() == RoleFollower || quorum.Role() == RoleUnattached {
		c.electionDeadline = c.clock().Add(c.cfg.electionTimeout() + c.jitter(c.cfg.electionJitterBound()))
	}

	c.metrics.SetIsLeader(c.selfID, quorum.IsLeader())

	return c, nil
}

// Status reports coarse operational health (§AMBIENT STACK health checks).
func (c *ConsensusCore) Status() NodeStatus {
	if !c.running {
		return NodeStatusDegraded
	}
	return NodeStatusHealthy
}

// IsRunning reports whether the core should keep being polled (§4.5
// "Graceful shutdown").
func (c *ConsensusCore) IsRunning() bool { return c.running }

// HighWatermark returns the leader's last-computed high-watermark.
func (c *ConsensusCore) HighWatermark() Offset { return c.highWatermark }

// Role, Epoch and Leader expose read-only QuorumState projections.
func (c *ConsensusCore) Role() Role     { return c.quorum.Role() }
func (c *ConsensusCore) Epoch() Epoch   { return c.quorum.Epoch() }
func (c *ConsensusCore) Leader() NodeID { return c.quorum.Leader() }

// emitOutboundRequests implements §4.5 step 2: one outbound request per
// distinct peer per logical task the current role requires.
func (c *ConsensusCore) emitOutboundRequests(ctx context.Context) {
	c.emitDiscovery(ctx)
	c.emitElectionRequests(ctx)
	c.emitLeaderRequests(ctx)
	c.emitFollowerFetch(ctx)
}

// Poll performs one quantum of work and returns the timeout it handed to
// the channel's Receive: the caller's timeout clamped to the core's next
// internal deadline. The channel derives its own poll timeout from that
// value (§4.5, §5 "Scheduling model").
func (c *ConsensusCore) Poll(ctx context.Context, timeout time.Duration) time.Duration {
	ctx, span := c.startSpan(ctx, "raft.poll")
	defer span.End()

	c.drainAppendMailbox()

	c.driveTimeExpiredTransitions()
	c.emitOutboundRequests(ctx)

	remaining := c.remainingTimeout(timeout)
	inbound := c.channel.Receive(ctx, remaining)

	for _, env := range inbound {
		c.dispatch(ctx, env)
	}

	if c.quorum.IsLeader() {
		c.recomputeHighWatermark()
	}

	c.metrics.SetIsLeader(c.selfID, c.quorum.IsLeader())

	return remaining
}

// remainingTimeout clamps the caller's timeout to the next internal
// deadline (election timeout, shutdown deadline), per §5 "Cancellation &
// timeouts".
func (c *ConsensusCore) remainingTimeout(callerTimeout time.Duration) time.Duration {
	now := c.clock()
	best := callerTimeout

	clamp := func(deadline time.Time) {
		if deadline.IsZero() {
			return
		}
		if d := deadline.Sub(now); d < best {
			if d < 0 {
				d = 0
			}
			best = d
		}
	}

	clamp(c.electionDeadline)
	if c.shuttingDown {
		clamp(c.shutdownDeadline)
	}

	return best
}

func (c *ConsensusCore) nextCorrelationID() uint32 {
	return c.channel.NewCorrelationID()
}

func (c *ConsensusCore) sendRequest(env *Envelope) {
	env.Source = c.selfID
	env.Direction = DirOutboundRequest
	c.channel.Send(env)
}

func (c *ConsensusCore) sendResponse(env *Envelope) {
	env.Source = c.selfID
	env.Direction = DirOutboundResponse
	c.channel.Send(env)
}
