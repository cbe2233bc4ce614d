package raft

import "context"

// emitFollowerFetch implements §4.5 "Followers continuously send
// FetchQuorumRecords ... to the leader".
func (c *ConsensusCore) emitFollowerFetch(ctx context.Context) {
	if !c.hasKnownLeader() {
		return
	}
	now := c.clock()
	if c.fetchRequest != nil && !c.fetchRequest.expired(now) {
		return
	}

	epoch := c.quorum.Epoch()
	corr := c.nextCorrelationID()
	c.fetchRequest = &outstandingRequest{
		correlationID: corr,
		destination:   c.quorum.Leader(),
		epoch:         epoch,
		deadline:      now.Add(c.cfg.requestTimeout()),
	}
	c.sendRequest(&Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFetchQuorumRecords,
		Destination:   c.quorum.Leader(),
		Fetch: &FetchQuorumRecordsRequest{
			LeaderEpoch:      epoch,
			FetchOffset:      c.log.EndOffset(),
			LastFetchedEpoch: c.log.LastFetchedEpoch(),
			ReplicaID:        c.selfID,
		},
	})
	_ = ctx
}

// hasKnownLeader reports whether we should be fetching: a follower always
// knows its leader; an observer fetches once it has discovered one.
func (c *ConsensusCore) hasKnownLeader() bool {
	if c.quorum.IsLeader() || c.quorum.IsCandidate() {
		return false
	}
	return c.quorum.Leader() != NoLeader
}

// handleFetchResponse implements the follower side of §4.5 "Replication"
// and the OFFSET_OUT_OF_RANGE recovery of §7 category 3. Stale responses
// (role changed, epoch advanced) are discarded per §4.5/§5's ordering
// guarantee (scenario S5).
func (c *ConsensusCore) handleFetchResponse(env *Envelope) {
	req := c.fetchRequest
	if req == nil || req.correlationID != env.CorrelationID {
		c.logger.Debug("raft: discarding fetch response with no matching outstanding request", "correlation_id", env.CorrelationID)
		return
	}
	c.fetchRequest = nil

	if req.epoch != c.quorum.Epoch() || (!c.quorum.IsFollower() && !c.quorum.IsObserver()) {
		return
	}

	resp := env.FetchResp

	switch resp.ErrorCode {
	case ErrFencedLeaderEpoch:
		if err := c.quorum.BecomeUnattached(resp.LeaderEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on fenced fetch failed", "err", err)
		}
		c.armElectionTimeout()
		return
	case ErrOffsetOutOfRange:
		c.log.TruncateTo(resp.NextFetchOffset)
		return
	case ErrBrokerNotAvailable, ErrClusterAuthorizationFailed:
		c.metrics.IncFetchError(c.selfID, req.destination, "unreachable")
		if err := c.quorum.BecomeUnattached(c.quorum.Epoch()); err != nil {
			c.logger.Error("raft: becomeUnattached on unreachable leader failed", "err", err)
		}
		c.armElectionTimeout()
		return
	case ErrNone:
		// fall through
	default:
		c.metrics.IncFetchError(c.selfID, req.destination, "server_error")
		return
	}

	c.armElectionTimeout()
	for _, batch := range resp.Records {
		if err := c.log.AppendAsFollower(batch); err != nil {
			c.metrics.IncPersistenceError(c.selfID, "append_as_follower")
			c.logger.Error("raft: append as follower failed", "err", err, "base_offset", batch.BaseOffset)
			return
		}
	}
	if resp.HighWatermark > c.highWatermark {
		c.highWatermark = resp.HighWatermark
		c.metrics.SetHighWatermark(c.selfID, c.highWatermark)
	}
}

// handleFetchRequest implements the leader side of §4.5 "Replication",
// divergence detection (§4.2), and implicit endorsement (§4.5 "Leadership
// endorsement").
func (c *ConsensusCore) handleFetchRequest(env *Envelope) {
	req := env.Fetch
	resp := &FetchQuorumRecordsResponse{LeaderEpoch: c.quorum.Epoch(), LeaderID: c.quorum.Leader(), HighWatermark: -1}

	if !c.quorum.IsLeader() {
		resp.ErrorCode = ErrNotLeaderForPartitionCode
		c.replyFetch(env, resp)
		return
	}

	if req.LeaderEpoch > c.quorum.Epoch() {
		if err := c.quorum.BecomeUnattached(req.LeaderEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on higher fetch epoch failed", "err", err)
		}
		c.armElectionTimeout()
		resp.ErrorCode = ErrNotLeaderForPartitionCode
		resp.LeaderEpoch = c.quorum.Epoch()
		resp.LeaderID = c.quorum.Leader()
		c.replyFetch(env, resp)
		return
	}

	if req.LeaderEpoch < c.quorum.Epoch() {
		resp.ErrorCode = ErrFencedLeaderEpoch
		c.replyFetch(env, resp)
		return
	}

	// Implicit endorsement: a Fetch at our own epoch is as good as an
	// acknowledged BeginQuorumEpoch.
	c.endorsed[req.ReplicaID] = true
	delete(c.beginEpochRequests, req.ReplicaID)
	c.quorum.UpdateFetchOffset(req.ReplicaID, req.FetchOffset)

	endOffset := c.log.EndOffset()
	if req.FetchOffset > endOffset {
		resp.ErrorCode = ErrOffsetOutOfRange
		resp.NextFetchOffset = endOffset
		resp.NextFetchOffsetEpoch = c.log.LastFetchedEpoch()
		c.replyFetch(env, resp)
		return
	}

	if epoch, ok := c.log.EpochAndOffsetAt(req.FetchOffset); ok && epoch != req.LastFetchedEpoch {
		nextOffset := c.log.EpochEndOffset(req.LastFetchedEpoch)
		nextEpoch, _ := c.log.EpochAndOffsetAt(nextOffset)
		resp.ErrorCode = ErrOffsetOutOfRange
		resp.NextFetchOffset = nextOffset
		resp.NextFetchOffsetEpoch = nextEpoch
		c.replyFetch(env, resp)
		return
	}

	resp.ErrorCode = ErrNone
	resp.HighWatermark = c.highWatermark
	resp.Records = c.log.Read(req.FetchOffset, 0)
	c.replyFetch(env, resp)
}

func (c *ConsensusCore) replyFetch(env *Envelope, resp *FetchQuorumRecordsResponse) {
	c.sendResponse(&Envelope{
		CorrelationID: env.CorrelationID,
		ApiKey:        ApiFetchQuorumRecords,
		Destination:   env.Source,
		FetchResp:     resp,
	})
}

// recomputeHighWatermark implements §4.5 "High-watermark": leader-only,
// monotonic, bounded by endOffset, with the single-voter fast path.
func (c *ConsensusCore) recomputeHighWatermark() {
	c.quorum.UpdateFetchOffset(c.selfID, c.log.EndOffset())

	voters := c.quorum.Voters().Voters
	offsets := make([]Offset, 0, len(voters))
	for _, v := range voters {
		off, _ := c.quorum.FetchOffset(v)
		offsets = append(offsets, off)
	}
	sortOffsetsDesc(offsets)

	majority := c.quorum.Voters().Majority()
	if majority > len(offsets) {
		return
	}
	candidate := offsets[majority-1]
	if candidate > c.log.EndOffset() {
		candidate = c.log.EndOffset()
	}
	if candidate <= c.highWatermark {
		return
	}
	if candidate > 0 {
		epoch, ok := c.log.EpochAndOffsetAt(candidate)
		if !ok || epoch != c.quorum.Epoch() {
			return
		}
	}

	c.highWatermark = candidate
	c.metrics.SetHighWatermark(c.selfID, candidate)
}

func sortOffsetsDesc(offsets []Offset) {
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j-1] < offsets[j]; j-- {
			offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
		}
	}
}
