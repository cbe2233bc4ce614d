package raftgrpc

import (
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

func recordSpanError(span oteltrace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

// envelopeAttrs builds the attribute set common to both client and server
// spans: apiKey/correlation id identify the message regardless of which
// one-of field (Vote, Fetch, ...) is populated, mirroring §9's envelope
// sum-type.
func envelopeAttrs(env *raft.Envelope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("raft.correlation_id", int64(env.CorrelationID)),
		attribute.String("raft.api_key", env.ApiKey.String()),
		attribute.Int("raft.direction", int(env.Direction)),
	}
}

func clientEnvelopeAttrs(env *raft.Envelope) []attribute.KeyValue {
	attrs := envelopeAttrs(env)
	return append(attrs, attribute.Int64("raft.destination", int64(env.Destination)))
}

func serverEnvelopeAttrs(env *raft.Envelope) []attribute.KeyValue {
	attrs := envelopeAttrs(env)
	return append(attrs, attribute.Int64("raft.source", int64(env.Source)))
}
