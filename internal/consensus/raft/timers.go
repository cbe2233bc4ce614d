package raft

import (
	"math/rand"
	"time"
)

// clockFunc returns the current time; injectable for deterministic tests,
// mirroring the teacher's timerFactory/tickerFactory seam.
type clockFunc func() time.Time

func defaultClock() time.Time { return time.Now() }

// jitterFunc returns a uniform jitter duration in [0, bound); injectable so
// election-timeout tests are deterministic.
type jitterFunc func(bound time.Duration) time.Duration

func defaultJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	//nolint:gosec // election jitter needs pseudo-random spread, not cryptographic randomness.
	return time.Duration(rand.Int63n(int64(bound)))
}
