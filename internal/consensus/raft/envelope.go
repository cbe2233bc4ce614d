package raft

// This file implements §9 "Tagged message variants": a sum type over the
// five apiKeys and the four directions (outbound request, outbound
// response, inbound request, inbound response), instead of discriminating
// by runtime type. Exactly one request/response field is populated,
// matching the ApiKey.

// Envelope carries every Raft message that crosses the NetworkChannel
// boundary, in either direction.
type Envelope struct {
	CorrelationID uint32
	ApiKey        ApiKey

	// Destination is set on outbound envelopes; Source is set on inbound ones.
	Destination NodeID
	Source      NodeID

	Direction Direction

	Vote           *VoteRequest
	VoteResp       *VoteResponse
	BeginEpoch     *BeginQuorumEpochRequest
	BeginEpochResp *BeginQuorumEpochResponse
	EndEpoch       *EndQuorumEpochRequest
	EndEpochResp   *EndQuorumEpochResponse
	Fetch          *FetchQuorumRecordsRequest
	FetchResp      *FetchQuorumRecordsResponse
	FindQuorum     *FindQuorumRequest
	FindQuorumResp *FindQuorumResponse
}

// Direction distinguishes the four message variants of §9.
type Direction int

// The four envelope directions.
const (
	DirOutboundRequest Direction = iota
	DirOutboundResponse
	DirInboundRequest
	DirInboundResponse
)

// IsRequest reports whether the envelope carries a request payload.
func (e *Envelope) IsRequest() bool {
	return e.Direction == DirOutboundRequest || e.Direction == DirInboundRequest
}

// IsResponse reports whether the envelope carries a response payload.
func (e *Envelope) IsResponse() bool { return !e.IsRequest() }

// buildErrorResponse constructs the sentinel error-response envelope for
// code carrying the given apiKey, mirroring §6 "Error responses carry ...
// sentinel fields".
func buildErrorResponse(apiKey ApiKey, code ErrorCode) *Envelope {
	env := &Envelope{ApiKey: apiKey, Direction: DirInboundResponse}
	switch apiKey {
	case ApiVote:
		env.VoteResp = &VoteResponse{ErrorCode: code, LeaderEpoch: -1, LeaderID: NoLeader}
	case ApiBeginQuorumEpoch:
		env.BeginEpochResp = &BeginQuorumEpochResponse{ErrorCode: code, LeaderEpoch: -1, LeaderID: NoLeader}
	case ApiEndQuorumEpoch:
		env.EndEpochResp = &EndQuorumEpochResponse{ErrorCode: code, LeaderEpoch: -1, LeaderID: NoLeader}
	case ApiFetchQuorumRecords:
		env.FetchResp = &FetchQuorumRecordsResponse{ErrorCode: code, LeaderEpoch: -1, LeaderID: NoLeader, HighWatermark: -1}
	case ApiFindQuorum:
		env.FindQuorumResp = &FindQuorumResponse{ErrorCode: code, LeaderEpoch: -1, LeaderID: NoLeader}
	}
	return env
}
