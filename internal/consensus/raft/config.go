package raft

import (
	"fmt"
	"time"
)

// Config carries the four recognized tunables (§6) plus the static cluster
// shape ConsensusCore needs at construction time.
type Config struct {
	// SelfID is this node's id.
	SelfID NodeID
	// Voters is the fixed voter set. A node not listed here is an observer.
	Voters []NodeID
	// BootstrapAddrs seeds LeaderDiscovery (§4.5 "Observer path").
	BootstrapAddrs []string

	ElectionTimeoutMs int
	ElectionJitterMs  int
	RetryBackoffMs    int
	RequestTimeoutMs  int

	// MaxQueueSize bounds the NetworkChannel's outbound queue. Per §9's
	// open question, this should be sized to at least the peer count
	// rather than the source's fixed constant of 10.
	MaxQueueSize int

	// AdvertisedHost/AdvertisedPort are handed back to peers answering
	// FindQuorum on our behalf; unset means we don't advertise ourselves
	// as a voter contact point (observers typically leave these unset).
	AdvertisedHost string
	AdvertisedPort int
}

// Validate applies sane defaults and rejects nonsensical configuration.
func (c *Config) Validate() error {
	if c.SelfID == 0 {
		return fmt.Errorf("raft: config.SelfID must be set to a non-zero node id")
	}
	if c.ElectionTimeoutMs <= 0 {
		c.ElectionTimeoutMs = 1000
	}
	if c.ElectionJitterMs < 0 {
		return fmt.Errorf("raft: config.ElectionJitterMs must be >= 0")
	}
	if c.RetryBackoffMs <= 0 {
		c.RetryBackoffMs = 200
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = 5000
	}
	minQueue := len(c.Voters) + 1
	if c.MaxQueueSize < minQueue {
		c.MaxQueueSize = minQueue
	}
	return nil
}

func (c *Config) electionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutMs) * time.Millisecond
}

func (c *Config) electionJitterBound() time.Duration {
	return time.Duration(c.ElectionJitterMs) * time.Millisecond
}

func (c *Config) retryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

func (c *Config) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c *Config) voterSet() VoterSet {
	return VoterSet{Voters: append([]NodeID(nil), c.Voters...)}
}
