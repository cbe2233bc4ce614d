package raft

import (
	"context"
	"time"
)

// Transport is the underlying socket/RPC client the NetworkChannel
// dispatches onto. Wire framing, byte serialization, and the raw connection
// lifecycle are out of core scope (§1) — this is the seam the core
// consumes (§9 design notes treat the transport as an external
// collaborator).
type Transport interface {
	// UpdateEndpoint learns/updates the address of a peer.
	UpdateEndpoint(id NodeID, address string)

	// Connected reports readiness for id: unknown=true if no endpoint is
	// known at all (never attempt I/O); otherwise ready=true iff a usable
	// connection exists right now.
	Connected(id NodeID) (ready, unknown bool)

	// RoundTrip sends env (an outbound request envelope) to its
	// Destination and blocks up to ctx's deadline for the raw response.
	// Implementations must be safe to call concurrently for distinct
	// destinations. A connection-level failure (including auth failures,
	// which the implementation wraps with ErrTransportClusterAuth) is returned as
	// an error; the channel classifies it.
	RoundTrip(ctx context.Context, env *Envelope) (*Envelope, error)
}

// clusterAuthError is returned by a Transport.RoundTrip when the peer
// rejected the request for authorization reasons (§4.3, §7 category 4).
type clusterAuthError struct{ error }

// ErrTransportClusterAuth wraps err so the channel synthesizes
// CLUSTER_AUTHORIZATION_FAILED instead of BROKER_NOT_AVAILABLE.
func ErrTransportClusterAuth(err error) error { return clusterAuthError{err} }

func isClusterAuthError(err error) bool {
	_, ok := err.(clusterAuthError) //nolint:errorlint // sentinel wrapper checked directly by design
	return ok
}

// defaultRequestTimeout is a default per-request timeout of five seconds.
// Envelope carries no per-request timeout override.
const defaultRequestTimeout = 5 * time.Second
