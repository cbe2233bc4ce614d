package raft

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// NetworkChannel is the correlation-id-multiplexed request/response
// transport ConsensusCore drives (§4.3). It accepts outbound Raft messages,
// returns inbound Raft messages (requests from peers and responses to prior
// outbound requests), and synthesizes error responses for unroutable
// destinations, disconnects, and request timeouts.
type NetworkChannel interface {
	// NewCorrelationID returns a monotonic, process-unique correlation id.
	NewCorrelationID() uint32

	// Send enqueues an outbound request, an outbound response to a pending
	// inbound request, or records an unknown destination for synthesis.
	Send(env *Envelope)

	// Receive flushes pending outbound sends, polls the transport with a
	// derived timeout, and returns inbound requests/responses plus any
	// responses synthesized since the last call.
	Receive(ctx context.Context, timeout time.Duration) []*Envelope

	// Wakeup unblocks a concurrent Receive.
	Wakeup()

	// UpdateEndpoint learns/updates the address of a peer.
	UpdateEndpoint(id NodeID, address string)

	// SubmitInboundRequest is called by a server-side transport adapter when
	// a peer's request arrives; it blocks until ConsensusCore calls Send
	// with the matching correlation id, or ctx is done.
	SubmitInboundRequest(ctx context.Context, env *Envelope) (*Envelope, error)
}

type pendingRequest struct {
	apiKey      ApiKey
	destination NodeID
	deadline    time.Time
	dispatched  bool
}

// Channel is the default NetworkChannel implementation, layered over a
// pluggable Transport (§9: the raw socket client is an external
// collaborator).
type Channel struct {
	selfID    NodeID
	transport Transport
	logger    Logger
	metrics   Metrics
	now       clockFunc

	requestTimeout time.Duration
	retryBackoff   time.Duration
	maxQueue       int

	corrCounter uint32

	mu              sync.Mutex
	outboundQueue   []*Envelope
	pendingRequests map[uint32]*pendingRequest
	pendingInbound  map[uint32]chan *Envelope
	synthesized     []*Envelope

	results chan *Envelope
	wakeCh  chan struct{}
}

// NewChannel constructs a Channel. maxQueueSize bounds the outbound queue;
// per §9's open question, size it to at least the peer count rather than
// the source's fixed 10.
func NewChannel(selfID NodeID, transport Transport, logger Logger, metrics Metrics, requestTimeout, retryBackoff time.Duration, maxQueueSize int) *Channel {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if maxQueueSize < 1 {
		maxQueueSize = 1
	}
	return &Channel{
		selfID:          selfID,
		transport:       transport,
		logger:          logger,
		metrics:         metrics,
		now:             defaultClock,
		requestTimeout:  requestTimeout,
		retryBackoff:    retryBackoff,
		maxQueue:        maxQueueSize,
		pendingRequests: make(map[uint32]*pendingRequest),
		pendingInbound:  make(map[uint32]chan *Envelope),
		results:         make(chan *Envelope, maxQueueSize*4),
		wakeCh:          make(chan struct{}, 1),
	}
}

// NewCorrelationID implements NetworkChannel.
func (c *Channel) NewCorrelationID() uint32 {
	return atomic.AddUint32(&c.corrCounter, 1)
}

// UpdateEndpoint implements NetworkChannel.
func (c *Channel) UpdateEndpoint(id NodeID, address string) {
	c.transport.UpdateEndpoint(id, address)
}

// Wakeup implements NetworkChannel.
func (c *Channel) Wakeup() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// Send implements NetworkChannel.
func (c *Channel) Send(env *Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Direction {
	case DirOutboundResponse:
		ch, ok := c.pendingInbound[env.CorrelationID]
		if !ok {
			c.logger.Debug("channel: dropping response with no pending inbound request", "correlation_id", env.CorrelationID)
			return
		}
		delete(c.pendingInbound, env.CorrelationID)
		ch <- env
		close(ch)
	case DirOutboundRequest:
		if len(c.outboundQueue) >= c.maxQueue {
			panic(ErrQueueOverflow)
		}
		c.outboundQueue = append(c.outboundQueue, env)
		c.pendingRequests[env.CorrelationID] = &pendingRequest{
			apiKey:      env.ApiKey,
			destination: env.Destination,
		}
	default:
		c.logger.Warn("channel: Send called with an inbound-direction envelope", "direction", env.Direction)
	}
}

// SubmitInboundRequest implements NetworkChannel.
func (c *Channel) SubmitInboundRequest(ctx context.Context, env *Envelope) (*Envelope, error) {
	respCh := make(chan *Envelope, 1)

	c.mu.Lock()
	c.pendingInbound[env.CorrelationID] = respCh
	c.mu.Unlock()

	select {
	case c.results <- env:
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingInbound, env.CorrelationID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingInbound, env.CorrelationID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Receive implements NetworkChannel.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) []*Envelope {
	c.flushOutbound(ctx)

	pollTimeout := c.derivePollTimeout(timeout)

	var out []*Envelope

	c.mu.Lock()
	out = append(out, c.synthesized...)
	c.synthesized = nil
	c.mu.Unlock()

	if len(out) == 0 {
		timer := time.NewTimer(pollTimeout)
		select {
		case env := <-c.results:
			out = append(out, env)
		case <-c.wakeCh:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return out
		}
		timer.Stop()
	}

	// Drain anything else immediately available, non-blocking.
	for {
		select {
		case env := <-c.results:
			out = append(out, env)
			continue
		default:
		}
		break
	}

	for _, env := range out {
		if env.IsResponse() {
			c.mu.Lock()
			delete(c.pendingRequests, env.CorrelationID)
			c.mu.Unlock()
		}
	}

	return out
}

// derivePollTimeout implements the §4.3 formula: 0 if synthesized responses
// are pending, retryBackoffMs if outbound requests are waiting on a
// connection, else the caller-supplied timeout.
func (c *Channel) derivePollTimeout(callerTimeout time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.synthesized) > 0 {
		return 0
	}
	if len(c.outboundQueue) > 0 {
		return c.retryBackoff
	}
	return callerTimeout
}

func (c *Channel) flushOutbound(ctx context.Context) {
	c.mu.Lock()
	pending := c.outboundQueue
	c.outboundQueue = nil
	c.mu.Unlock()

	var stillWaiting []*Envelope

	for _, env := range pending {
		ready, unknown := c.transport.Connected(env.Destination)
		switch {
		case unknown:
			c.synthesizeError(env, ErrBrokerNotAvailable)
		case !ready:
			stillWaiting = append(stillWaiting, env)
		default:
			c.dispatch(ctx, env)
		}
	}

	if len(stillWaiting) > 0 {
		c.mu.Lock()
		c.outboundQueue = append(stillWaiting, c.outboundQueue...)
		c.mu.Unlock()
	}
}

func (c *Channel) dispatch(parent context.Context, env *Envelope) {
	c.mu.Lock()
	if pr, ok := c.pendingRequests[env.CorrelationID]; ok {
		pr.dispatched = true
		pr.deadline = c.now().Add(c.requestTimeout)
	}
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		_ = parent

		start := c.now()
		resp, err := c.transport.RoundTrip(ctx, env)
		c.metrics.ObserveFetchRPCDuration(c.selfID, env.Destination, c.now().Sub(start))

		if err != nil {
			code := ErrBrokerNotAvailable
			kind := "unreachable"
			if isClusterAuthError(err) {
				code = ErrClusterAuthorizationFailed
				kind = "auth"
			}
			c.metrics.IncFetchError(c.selfID, env.Destination, kind)
			c.synthesizeErrorAsync(env, code)
			return
		}
		resp.CorrelationID = env.CorrelationID
		resp.ApiKey = env.ApiKey
		resp.Direction = DirInboundResponse
		resp.Source = env.Destination
		c.results <- resp
	}()
}

func (c *Channel) synthesizeError(env *Envelope, code ErrorCode) {
	resp := buildErrorResponse(env.ApiKey, code)
	resp.CorrelationID = env.CorrelationID
	resp.Source = env.Destination

	c.mu.Lock()
	delete(c.pendingRequests, env.CorrelationID)
	c.synthesized = append(c.synthesized, resp)
	c.mu.Unlock()
}

func (c *Channel) synthesizeErrorAsync(env *Envelope, code ErrorCode) {
	resp := buildErrorResponse(env.ApiKey, code)
	resp.CorrelationID = env.CorrelationID
	resp.Source = env.Destination
	c.results <- resp
}
