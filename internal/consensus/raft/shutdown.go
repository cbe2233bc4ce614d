package raft

import "time"

// Shutdown implements §4.5 "Graceful shutdown". It is non-blocking: it
// arms a deadline and lets subsequent Poll calls drive the handoff.
// Followers and observers stop on their very next poll; a leader keeps
// polling (broadcasting EndQuorumEpoch) until it observes an epoch bump or
// the deadline elapses.
func (c *ConsensusCore) Shutdown(timeout time.Duration) {
	if c.shuttingDown {
		return
	}
	c.shuttingDown = true
	c.shutdownDeadline = c.clock().Add(timeout)

	if !c.quorum.IsLeader() {
		c.running = false
	}
}

// handleEndQuorumEpochRequest implements the follower side of a graceful
// leadership handoff: treat it like a fencing signal at epoch e', stepping
// down to Unattached and re-discovering.
func (c *ConsensusCore) handleEndQuorumEpochRequest(env *Envelope) {
	req := env.EndEpoch
	resp := &EndQuorumEpochResponse{ErrorCode: ErrNone, LeaderEpoch: c.quorum.Epoch(), LeaderID: c.quorum.Leader()}

	if req.LeaderEpoch < c.quorum.Epoch() {
		resp.ErrorCode = ErrFencedLeaderEpoch
		c.sendResponse(&Envelope{CorrelationID: env.CorrelationID, ApiKey: ApiEndQuorumEpoch, Destination: env.Source, EndEpochResp: resp})
		return
	}

	if !c.quorum.IsObserver() {
		if err := c.quorum.BecomeUnattached(req.LeaderEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on EndQuorumEpoch failed", "err", err)
		}
		c.armElectionTimeout()
	}

	resp.LeaderEpoch = c.quorum.Epoch()
	resp.LeaderID = c.quorum.Leader()
	c.sendResponse(&Envelope{CorrelationID: env.CorrelationID, ApiKey: ApiEndQuorumEpoch, Destination: env.Source, EndEpochResp: resp})
}

func (c *ConsensusCore) handleEndQuorumEpochResponse(env *Envelope) {
	req, ok := c.findOutstandingByCorrelation(c.endEpochRequests, env.CorrelationID)
	if !ok {
		return
	}
	delete(c.endEpochRequests, req.destination)
}

// observeEpochFromAnyMessage implements §4.5's shutdown-completion
// condition (b): any inbound message carrying an epoch higher than ours
// ends a leader's shutdown wait. The §4.6 "Any(ep) → Unattached(e')"
// transition itself is applied by dispatch right after this call.
func (c *ConsensusCore) observeEpochFromAnyMessage(observedEpoch Epoch) {
	if observedEpoch <= c.quorum.Epoch() {
		return
	}
	if c.shuttingDown && c.quorum.IsLeader() {
		c.running = false
	}
}
