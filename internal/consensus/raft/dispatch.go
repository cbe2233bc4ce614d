package raft

import "context"

// dispatch implements §4.5 step 4 and the ordering guarantee of §5:
// "an implementation must re-check role/epoch before applying each one".
// It first applies the epoch-observation rule of §4.6 ("Any(ep) →
// Unattached(e'): observed epoch e' > ep via any request/response before
// classification"), then routes by apiKey/direction. An apiKey outside the
// five defined ones is a protocol error, per §9's explicit resolution of
// that open question.
func (c *ConsensusCore) dispatch(ctx context.Context, env *Envelope) {
	epoch, hasEpoch := envelopeEpoch(env)

	// Checked against pre-transition state: a shutting-down leader's wait
	// ends the instant it observes a higher epoch, before that epoch bump
	// demotes it below the IsLeader() check (scenario S6).
	if hasEpoch {
		c.observeEpochFromAnyMessage(epoch)
	}

	if hasEpoch && epoch > c.quorum.Epoch() {
		if err := c.quorum.BecomeUnattached(epoch); err != nil {
			c.logger.Error("raft: becomeUnattached on observed higher epoch failed", "err", err)
		} else {
			c.armElectionTimeout()
		}
	}

	switch env.ApiKey {
	case ApiVote:
		if env.Direction == DirInboundRequest {
			c.handleVoteRequest(env)
		} else {
			c.handleVoteResponse(env)
		}
	case ApiBeginQuorumEpoch:
		if env.Direction == DirInboundRequest {
			c.handleBeginQuorumEpochRequest(env)
		} else {
			c.handleBeginQuorumEpochResponse(env)
		}
	case ApiEndQuorumEpoch:
		if env.Direction == DirInboundRequest {
			c.handleEndQuorumEpochRequest(env)
		} else {
			c.handleEndQuorumEpochResponse(env)
		}
	case ApiFetchQuorumRecords:
		if env.Direction == DirInboundRequest {
			c.handleFetchRequest(env)
		} else {
			c.handleFetchResponse(env)
		}
	case ApiFindQuorum:
		if env.Direction == DirInboundRequest {
			c.handleFindQuorumRequest(env)
		} else {
			c.handleFindQuorumResponse(env)
		}
	default:
		c.logger.Error("raft: rejecting message with unknown apiKey", "api_key", env.ApiKey, "correlation_id", env.CorrelationID)
	}
	_ = ctx
}

// envelopeEpoch extracts the leader/candidate epoch carried by env's
// populated payload, if any.
func envelopeEpoch(env *Envelope) (Epoch, bool) {
	switch {
	case env.Vote != nil:
		return env.Vote.CandidateEpoch, true
	case env.VoteResp != nil:
		return env.VoteResp.LeaderEpoch, true
	case env.BeginEpoch != nil:
		return env.BeginEpoch.LeaderEpoch, true
	case env.BeginEpochResp != nil:
		return env.BeginEpochResp.LeaderEpoch, true
	case env.EndEpoch != nil:
		return env.EndEpoch.LeaderEpoch, true
	case env.EndEpochResp != nil:
		return env.EndEpochResp.LeaderEpoch, true
	case env.Fetch != nil:
		return env.Fetch.LeaderEpoch, true
	case env.FetchResp != nil:
		return env.FetchResp.LeaderEpoch, true
	case env.FindQuorumResp != nil:
		return env.FindQuorumResp.LeaderEpoch, true
	default:
		return 0, false
	}
}
