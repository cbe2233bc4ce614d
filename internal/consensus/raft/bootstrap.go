package raft

import (
	"context"
	"time"
)

// onBecameLeader implements §4.5 "Leader bootstrap": append the
// LeaderChange control record, then (via emitLeaderRequests) announce the
// new epoch to every other voter.
func (c *ConsensusCore) onBecameLeader() {
	epoch := c.quorum.Epoch()
	rec := LeaderChangeRecord{
		Version:  0,
		LeaderID: c.selfID,
		Voters:   append([]NodeID(nil), c.quorum.Voters().Voters...),
	}
	if _, err := c.log.AppendLeaderChange(rec, epoch, c.clock().UnixMilli()); err != nil {
		c.metrics.IncPersistenceError(c.selfID, "append_leader_change")
		c.logger.Error("raft: appending leader-change control record failed", "err", err)
	}

	c.endorsed = make(map[NodeID]bool)
	c.endorsed[c.selfID] = true
	c.beginEpochRequests = make(map[NodeID]*outstandingRequest)
	c.quorum.UpdateFetchOffset(c.selfID, c.log.EndOffset())

	c.logger.Info("raft: became leader", "node_id", c.selfID, "epoch", epoch)
}

// emitLeaderRequests sends BeginQuorumEpoch to every voter not yet endorsed
// (§4.5 "the leader therefore does not need to resend BeginEpoch to voters
// that have already started fetching"), and EndQuorumEpoch to every voter
// while shutting down (§4.5 "Graceful shutdown").
func (c *ConsensusCore) emitLeaderRequests(ctx context.Context) {
	if !c.quorum.IsLeader() {
		return
	}
	now := c.clock()
	epoch := c.quorum.Epoch()

	for _, voter := range c.quorum.Voters().Voters {
		if voter == c.selfID || c.endorsed[voter] {
			continue
		}
		if req, ok := c.beginEpochRequests[voter]; ok && !req.expired(now) {
			continue
		}

		corr := c.nextCorrelationID()
		c.beginEpochRequests[voter] = &outstandingRequest{
			correlationID: corr,
			destination:   voter,
			epoch:         epoch,
			deadline:      now.Add(c.cfg.requestTimeout()),
		}
		c.sendRequest(&Envelope{
			CorrelationID: corr,
			ApiKey:        ApiBeginQuorumEpoch,
			Destination:   voter,
			BeginEpoch: &BeginQuorumEpochRequest{
				LeaderEpoch: epoch,
				LeaderID:    c.selfID,
				ReplicaID:   c.selfID,
			},
		})
	}

	if c.shuttingDown {
		c.emitEndQuorumRequests(now)
	}
	_ = ctx
}

func (c *ConsensusCore) emitEndQuorumRequests(now time.Time) {
	epoch := c.quorum.Epoch()
	for _, voter := range c.quorum.Voters().Voters {
		if voter == c.selfID {
			continue
		}
		if req, ok := c.endEpochRequests[voter]; ok && !req.expired(now) {
			continue
		}

		corr := c.nextCorrelationID()
		c.endEpochRequests[voter] = &outstandingRequest{
			correlationID: corr,
			destination:   voter,
			epoch:         epoch,
			deadline:      now.Add(c.cfg.requestTimeout()),
		}
		c.sendRequest(&Envelope{
			CorrelationID: corr,
			ApiKey:        ApiEndQuorumEpoch,
			Destination:   voter,
			EndEpoch: &EndQuorumEpochRequest{
				LeaderEpoch: epoch,
				LeaderID:    c.selfID,
				ReplicaID:   c.selfID,
			},
		})
	}
}

// handleBeginQuorumEpochRequest implements §4.5 "Leadership endorsement".
func (c *ConsensusCore) handleBeginQuorumEpochRequest(env *Envelope) {
	req := env.BeginEpoch
	resp := &BeginQuorumEpochResponse{ErrorCode: ErrNone, LeaderEpoch: c.quorum.Epoch(), LeaderID: c.quorum.Leader()}

	if req.LeaderEpoch < c.quorum.Epoch() {
		resp.ErrorCode = ErrFencedLeaderEpoch
		resp.LeaderEpoch = c.quorum.Epoch()
		c.replyBeginEpoch(env, resp)
		return
	}

	if c.quorum.IsObserver() {
		resp.ErrorCode = ErrNone
	} else if err := c.quorum.BecomeFollower(req.LeaderEpoch, req.LeaderID, c.nextElectionDeadline()); err != nil {
		c.logger.Error("raft: becomeFollower on BeginQuorumEpoch failed", "err", err)
		resp.ErrorCode = ErrUnknownServerError
		c.replyBeginEpoch(env, resp)
		return
	}
	c.armElectionTimeout()

	resp.LeaderEpoch = c.quorum.Epoch()
	resp.LeaderID = c.quorum.Leader()
	c.replyBeginEpoch(env, resp)
}

func (c *ConsensusCore) replyBeginEpoch(env *Envelope, resp *BeginQuorumEpochResponse) {
	c.sendResponse(&Envelope{
		CorrelationID: env.CorrelationID,
		ApiKey:        ApiBeginQuorumEpoch,
		Destination:   env.Source,
		BeginEpochResp: resp,
	})
}

func (c *ConsensusCore) handleBeginQuorumEpochResponse(env *Envelope) {
	req, ok := c.findOutstandingByCorrelation(c.beginEpochRequests, env.CorrelationID)
	if !ok {
		return
	}
	if env.BeginEpochResp.ErrorCode == ErrNone {
		c.endorsed[req.destination] = true
	}
	if env.BeginEpochResp.LeaderEpoch > c.quorum.Epoch() {
		if err := c.quorum.BecomeUnattached(env.BeginEpochResp.LeaderEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on stale leadership failed", "err", err)
		}
		c.armElectionTimeout()
	}
	delete(c.beginEpochRequests, req.destination)
}

func (c *ConsensusCore) nextElectionDeadline() time.Time {
	return c.clock().Add(c.cfg.electionTimeout() + c.jitter(c.cfg.electionJitterBound()))
}
