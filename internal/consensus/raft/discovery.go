package raft

import (
	"context"
	"fmt"
)

// bootstrapPeerID is a reserved pseudo node id used to address whichever
// bootstrap address LeaderDiscovery is currently contacting. It is never a
// valid voter id (voter ids are required to be non-zero and are compared
// against this only for routing, never for quorum membership).
const bootstrapPeerID NodeID = -2

// emitDiscovery implements §4.5 "Observer path (LeaderDiscovery)". It also
// covers voter address bootstrap: scenario S2 shows a Candidate still
// issuing FindQuorum on its first poll to learn peer endpoints before it
// can address a VoteRequest to them.
func (c *ConsensusCore) emitDiscovery(ctx context.Context) {
	if !c.needsDiscovery() {
		return
	}
	now := c.clock()
	if c.findQuorumRequest != nil && !c.findQuorumRequest.expired(now) {
		return
	}
	if len(c.cfg.BootstrapAddrs) == 0 {
		c.logger.Warn("raft: discovery needed but no bootstrap addresses configured", "node_id", c.selfID)
		return
	}

	addr := c.cfg.BootstrapAddrs[c.bootstrapIdx%len(c.cfg.BootstrapAddrs)]
	c.bootstrapIdx++
	c.channel.UpdateEndpoint(bootstrapPeerID, addr)

	corr := c.nextCorrelationID()
	c.findQuorumRequest = &outstandingRequest{
		correlationID: corr,
		destination:   bootstrapPeerID,
		epoch:         c.quorum.Epoch(),
		deadline:      now.Add(c.cfg.requestTimeout()),
	}
	c.sendRequest(&Envelope{
		CorrelationID: corr,
		ApiKey:        ApiFindQuorum,
		Destination:   bootstrapPeerID,
		FindQuorum:    &FindQuorumRequest{ReplicaID: c.selfID},
	})
	_ = ctx
}

// needsDiscovery reports whether the core still needs to run FindQuorum:
// either it hasn't resolved every voter's address yet, or it is an
// observer/unattached node with no known leader.
func (c *ConsensusCore) needsDiscovery() bool {
	if !c.haveAllVoterEndpoints() {
		return true
	}
	if (c.quorum.IsObserver() || c.quorum.Role() == RoleUnattached) && c.quorum.Leader() == NoLeader {
		return true
	}
	return false
}

func (c *ConsensusCore) haveAllVoterEndpoints() bool {
	for _, v := range c.quorum.Voters().Voters {
		if v == c.selfID {
			continue
		}
		if _, ok := c.voterEndpoints[v]; !ok {
			return false
		}
	}
	return true
}

// handleFindQuorumResponse implements the observer/unattached recovery
// rules of §4.5 and §7 category 1 (retry after backoff on error).
func (c *ConsensusCore) handleFindQuorumResponse(env *Envelope) {
	req := c.findQuorumRequest
	if req == nil || req.correlationID != env.CorrelationID {
		return
	}
	c.findQuorumRequest = nil

	resp := env.FindQuorumResp
	if resp.ErrorCode != ErrNone {
		c.logger.Warn("raft: FindQuorum returned an error, backing off", "error_code", resp.ErrorCode)
		c.findQuorumRequest = &outstandingRequest{deadline: c.clock().Add(c.cfg.retryBackoff())}
		return
	}

	for _, vi := range resp.Voters {
		if vi.VoterID == c.selfID {
			continue
		}
		c.voterEndpoints[vi.VoterID] = vi
		c.channel.UpdateEndpoint(vi.VoterID, fmt.Sprintf("%s:%d", vi.Host, vi.Port))
	}

	if resp.LeaderID != NoLeader && resp.LeaderEpoch >= c.quorum.Epoch() {
		if err := c.quorum.BecomeFollower(resp.LeaderEpoch, resp.LeaderID, c.nextElectionDeadline()); err != nil {
			c.logger.Error("raft: becomeFollower on discovered leader failed", "err", err)
			return
		}
		c.armElectionTimeout()
	}
}

// handleFindQuorumRequest answers a peer's discovery request with whatever
// this node currently knows (§GLOSSARY "FindQuorum").
func (c *ConsensusCore) handleFindQuorumRequest(env *Envelope) {
	resp := &FindQuorumResponse{ErrorCode: ErrNone, LeaderEpoch: c.quorum.Epoch(), LeaderID: c.quorum.Leader()}

	if c.cfg.AdvertisedHost != "" {
		resp.Voters = append(resp.Voters, VoterInfo{VoterID: c.selfID, Host: c.cfg.AdvertisedHost, Port: c.cfg.AdvertisedPort})
	}
	for id, vi := range c.voterEndpoints {
		if id == c.selfID {
			continue
		}
		resp.Voters = append(resp.Voters, vi)
	}

	c.sendResponse(&Envelope{
		CorrelationID:  env.CorrelationID,
		ApiKey:         ApiFindQuorum,
		Destination:    env.Source,
		FindQuorumResp: resp,
	})
}
