package raft

import (
	"context"
)

// driveTimeExpiredTransitions implements §4.5 per-poll step 1.
func (c *ConsensusCore) driveTimeExpiredTransitions() {
	now := c.clock()

	if c.shuttingDown && c.quorum.IsLeader() && !c.shutdownDeadline.IsZero() && !now.Before(c.shutdownDeadline) {
		c.logger.Info("raft: shutdown deadline elapsed while leader", "node_id", c.selfID, "epoch", c.quorum.Epoch())
		c.running = false
		return
	}

	if !c.electionDeadline.IsZero() && !now.Before(c.electionDeadline) {
		c.startElection()
	}
}

// startElection implements §4.5 "A voter starts Unattached ... On entering
// Candidate, it bumps epoch, votes for self, writes persistence".
func (c *ConsensusCore) startElection() {
	if c.quorum.IsObserver() || c.quorum.IsLeader() {
		return
	}
	if err := c.quorum.BecomeCandidate(); err != nil {
		c.logger.Error("raft: becomeCandidate failed", "node_id", c.selfID, "err", err)
		return
	}
	c.metrics.IncElectionStarted(c.selfID)
	c.armElectionTimeout()

	c.voteRequests = make(map[NodeID]*outstandingRequest)
	c.logger.Info("raft: starting election", "node_id", c.selfID, "epoch", c.quorum.Epoch())

	// Single-voter fast path (scenario S1): self-vote alone already forms
	// a majority, so there is no peer to wait on.
	c.tryBecomeLeaderFromCandidate()
}

// tryBecomeLeaderFromCandidate promotes a Candidate that already has a
// granted majority — reached either via the self-vote alone (single-voter
// quorum) or after a peer's grant in handleVoteResponse.
func (c *ConsensusCore) tryBecomeLeaderFromCandidate() {
	if !c.quorum.IsCandidate() || !c.quorum.HasMajority() {
		return
	}
	if err := c.quorum.BecomeLeader(); err != nil {
		c.logger.Error("raft: becomeLeader failed", "err", err)
		return
	}
	c.metrics.IncElectionWon(c.selfID)
	c.onBecameLeader()
}

// armElectionTimeout resamples jitter per election (§4.5 "Jitter is
// resampled per election").
func (c *ConsensusCore) armElectionTimeout() {
	bound := c.cfg.electionTimeout() + c.jitter(c.cfg.electionJitterBound())
	c.electionDeadline = c.clock().Add(bound)
}

// emitElectionRequests sends a VoteRequest to every voter that doesn't
// already have one inflight (§4.5 step 2 dedup rule).
func (c *ConsensusCore) emitElectionRequests(ctx context.Context) {
	if !c.quorum.IsCandidate() {
		return
	}
	now := c.clock()
	lastEpoch := c.log.LastFetchedEpoch()
	endOffset := c.log.EndOffset()
	epoch := c.quorum.Epoch()

	for _, voter := range c.quorum.Voters().Voters {
		if voter == c.selfID {
			continue
		}
		if req, ok := c.voteRequests[voter]; ok && !req.expired(now) {
			continue
		}

		corr := c.nextCorrelationID()
		c.voteRequests[voter] = &outstandingRequest{
			correlationID: corr,
			destination:   voter,
			epoch:         epoch,
			deadline:      now.Add(c.cfg.requestTimeout()),
		}
		c.sendRequest(&Envelope{
			CorrelationID: corr,
			ApiKey:        ApiVote,
			Destination:   voter,
			Vote: &VoteRequest{
				CandidateEpoch:     epoch,
				CandidateID:        c.selfID,
				LastEpoch:          lastEpoch,
				LastEpochEndOffset: endOffset,
			},
		})
		c.metrics.IncVoteRequestSent(c.selfID, voter)
		_ = ctx
	}
}

// handleVoteRequest implements the grant rule of §4.5 "A recipient grants
// the vote iff ...".
func (c *ConsensusCore) handleVoteRequest(env *Envelope) {
	req := env.Vote
	resp := &VoteResponse{ErrorCode: ErrNone, LeaderEpoch: c.quorum.Epoch(), LeaderID: c.quorum.Leader()}

	if req.CandidateEpoch < c.quorum.Epoch() {
		resp.VoteGranted = false
		c.replyVote(env, resp)
		return
	}

	if c.quorum.IsObserver() {
		resp.VoteGranted = false
		c.replyVote(env, resp)
		return
	}

	if req.CandidateEpoch > c.quorum.Epoch() {
		if err := c.quorum.BecomeUnattached(req.CandidateEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on higher vote epoch failed", "err", err)
		}
	}

	votedFor := c.quorum.VotedFor()
	alreadyOtherVote := votedFor != NoVote && votedFor != req.CandidateID
	logOK := req.LastEpoch > c.log.LastFetchedEpoch() ||
		(req.LastEpoch == c.log.LastFetchedEpoch() && req.LastEpochEndOffset >= c.log.EndOffset())

	if alreadyOtherVote || !logOK {
		resp.VoteGranted = false
		resp.LeaderEpoch = c.quorum.Epoch()
		c.metrics.IncVoteRejected(c.selfID)
		c.replyVote(env, resp)
		return
	}

	if err := c.quorum.RecordVote(c.quorum.Epoch(), req.CandidateID); err != nil {
		c.logger.Error("raft: recordVote failed", "err", err)
		resp.VoteGranted = false
		c.replyVote(env, resp)
		return
	}
	c.armElectionTimeout()

	resp.VoteGranted = true
	resp.LeaderEpoch = c.quorum.Epoch()
	c.replyVote(env, resp)
}

func (c *ConsensusCore) replyVote(env *Envelope, resp *VoteResponse) {
	c.sendResponse(&Envelope{
		CorrelationID: env.CorrelationID,
		ApiKey:        ApiVote,
		Destination:   env.Source,
		VoteResp:      resp,
	})
}

// handleVoteResponse implements the candidate's majority-count and
// rejection/timeout-retry rules of §4.5, discarding stale responses per
// §4.5 "Late vote responses ... are discarded without effect".
func (c *ConsensusCore) handleVoteResponse(env *Envelope) {
	req, ok := c.findOutstandingByCorrelation(c.voteRequests, env.CorrelationID)
	if !ok {
		c.logger.Debug("raft: discarding vote response with no matching outstanding request", "correlation_id", env.CorrelationID)
		return
	}
	delete(c.voteRequests, req.destination)

	if !c.quorum.IsCandidate() || req.epoch != c.quorum.Epoch() {
		return
	}

	resp := env.VoteResp
	if resp.LeaderEpoch > c.quorum.Epoch() {
		if err := c.quorum.BecomeUnattached(resp.LeaderEpoch); err != nil {
			c.logger.Error("raft: becomeUnattached on stale candidacy failed", "err", err)
		}
		c.armElectionTimeout()
		return
	}

	if !resp.VoteGranted {
		c.quorum.RecordRejection(req.destination)
		return
	}

	c.quorum.RecordGrant(req.destination)
	c.metrics.IncVoteGranted(c.selfID)

	c.tryBecomeLeaderFromCandidate()
}

func (c *ConsensusCore) findOutstandingByCorrelation(m map[NodeID]*outstandingRequest, corr uint32) (*outstandingRequest, bool) {
	for _, req := range m {
		if req.correlationID == corr {
			return req, true
		}
	}
	return nil, false
}
