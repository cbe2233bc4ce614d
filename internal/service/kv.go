// Package service contains application services exposed via transports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	"github.com/i-melnichenko/quorumcore/internal/kv"
)

// ErrNotLeader is returned when a write is proposed to a non-leader node.
var ErrNotLeader = errors.New("service: not leader")

// ErrCommitTimeout is returned when a write is accepted for replication but
// does not get committed/applied before the request deadline.
var ErrCommitTimeout = errors.New("service: write not committed before deadline")

// Logger is a minimal structured logger interface, compatible with slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Metrics captures service-level metric sinks used by KV.
type Metrics interface {
	ObserveKVWaitAppliedDuration(nodeID string, d time.Duration, ok bool)
	ObserveKVStartToApplyDuration(nodeID string, d time.Duration)
	ObserveKVApplyToWakeDuration(nodeID string, d time.Duration)
	AddKVWaitAppliedWakeups(nodeID string, n int)
	IncKVWaitAppliedCall(nodeID string, ok bool)
	IncKVProposalResult(nodeID, result string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveKVWaitAppliedDuration(string, time.Duration, bool) {}
func (noopMetrics) ObserveKVStartToApplyDuration(string, time.Duration)      {}
func (noopMetrics) ObserveKVApplyToWakeDuration(string, time.Duration)       {}
func (noopMetrics) AddKVWaitAppliedWakeups(string, int)                      {}
func (noopMetrics) IncKVWaitAppliedCall(string, bool)                        {}
func (noopMetrics) IncKVProposalResult(string, string)                       {}

// KV is the application service that bridges the KV store and the
// consensus core. It consumes committed records purely by watching
// HighWatermark() advance and reading newly-committed batches out of the
// same ReplicatedLog the core writes to — there is no separate commit
// notification channel (§1 scopes the downstream state machine's pipeline
// down to "the interface the core consumes").
type KV struct {
	core   *raft.ConsensusCore
	log    raft.ReplicatedLog
	store  *kv.Store
	logger Logger
	tracer oteltrace.Tracer
	metrics Metrics
	nodeID string

	mu               sync.Mutex
	appliedOffset    raft.Offset
	appliedAtByOffset map[raft.Offset]time.Time
	applyNotifyCh    chan struct{}
}

// PollInterval is how often RunApplyLoop checks HighWatermark() for new
// committed batches when it has nothing outstanding to wait on.
const PollInterval = 20 * time.Millisecond

// NewKV creates a KV service backed by the provided consensus core, its
// log, and a store. core and log must be the same pair wired into the same
// ConsensusCore instance.
func NewKV(core *raft.ConsensusCore, log raft.ReplicatedLog, store *kv.Store, logger Logger, tracer oteltrace.Tracer, metrics Metrics, nodeID string) *KV {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &KV{
		core:              core,
		log:               log,
		store:             store,
		logger:            logger,
		tracer:            tracer,
		metrics:           metrics,
		nodeID:            nodeID,
		applyNotifyCh:     make(chan struct{}, 1),
		appliedAtByOffset: make(map[raft.Offset]time.Time),
	}
}

func (s *KV) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func kvSpanRecordError(span oteltrace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

func kvAppliedOffsetAttr(v raft.Offset) attribute.KeyValue {
	if int64(v) > math.MaxInt64 {
		return attribute.Int64("kv.applied_offset", math.MaxInt64)
	}
	return attribute.Int64("kv.applied_offset", int64(v))
}

// Get returns a value from the local KV state machine.
func (s *KV) Get(key string) (string, bool) {
	_, span := s.startSpan(context.Background(), "kv.service.Get", attribute.String("kv.key", key))
	defer span.End()
	return s.store.Get(key)
}

// Put proposes a replicated write through consensus.
func (s *KV) Put(ctx context.Context, key, value string) (int64, error) {
	ctx, span := s.startSpan(
		ctx,
		"kv.service.Put",
		attribute.String("kv.key", key),
		attribute.Int("kv.value.bytes", len(value)),
	)
	defer span.End()
	s.logger.Debug("proposing put", "key", key)
	offset, err := s.startCommand(ctx, kv.Command{Type: kv.PutCmd, Key: key, Value: value})
	if err != nil {
		kvSpanRecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("raft.log.offset", offset))
	return offset, nil
}

// Delete proposes a replicated delete through consensus.
func (s *KV) Delete(ctx context.Context, key string) (int64, error) {
	ctx, span := s.startSpan(ctx, "kv.service.Delete", attribute.String("kv.key", key))
	defer span.End()
	s.logger.Debug("proposing delete", "key", key)
	offset, err := s.startCommand(ctx, kv.Command{Type: kv.DeleteCmd, Key: key})
	if err != nil {
		kvSpanRecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("raft.log.offset", offset))
	return offset, nil
}

// IsLeader reports whether the underlying consensus core is currently leader.
func (s *KV) IsLeader() bool {
	return s.core.Role() == raft.RoleLeader
}

// RunApplyLoop applies newly-committed log batches to the KV store until
// ctx is canceled. It polls HighWatermark() on PollInterval since
// ConsensusCore exposes no push-based commit notification.
func (s *KV) RunApplyLoop(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		s.applyCommitted(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *KV) applyCommitted(ctx context.Context) {
	s.mu.Lock()
	from := s.appliedOffset
	s.mu.Unlock()

	hw := s.core.HighWatermark()
	if hw <= from {
		return
	}

	for _, batch := range s.log.Read(from, hw) {
		if batch.IsControl {
			s.mu.Lock()
			s.appliedOffset = batch.LastOffset()
			s.mu.Unlock()
			continue
		}
		for i, rec := range batch.Records {
			offset := batch.BaseOffset + raft.Offset(i)
			if offset >= hw {
				break
			}
			s.applyOne(ctx, offset, rec)
		}
		s.mu.Lock()
		if batch.LastOffset() <= hw {
			s.appliedOffset = batch.LastOffset()
		}
		s.mu.Unlock()
	}
	s.notifyApply()
}

func (s *KV) applyOne(ctx context.Context, offset raft.Offset, raw []byte) {
	ctx, span := s.startSpan(
		ctx,
		"kv.service.handleApplyCommand",
		attribute.Int64("raft.log.offset", int64(offset)),
		attribute.Int("kv.command.bytes", len(raw)),
	)
	defer span.End()

	if err := s.store.Apply(ctx, raw); err != nil {
		kvSpanRecordError(span, err)
		s.logger.Debug("apply failed", "offset", offset, "err", err)
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.appliedAtByOffset[offset] = now
	const retention = raft.Offset(4096)
	if cutoff := offset - retention; cutoff > 0 {
		delete(s.appliedAtByOffset, cutoff)
	}
	s.mu.Unlock()

	s.logger.Debug("command applied", "offset", offset)
}

func (s *KV) notifyApply() {
	select {
	case s.applyNotifyCh <- struct{}{}:
	default:
	}
}

func (s *KV) startCommand(ctx context.Context, cmd kv.Command) (int64, error) {
	ctx, span := s.startSpan(
		ctx,
		"kv.service.startCommand",
		attribute.String("kv.command.type", string(cmd.Type)),
		attribute.String("kv.key", cmd.Key),
	)
	defer span.End()

	raw, err := json.Marshal(cmd)
	if err != nil {
		kvSpanRecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("kv.command.bytes", len(raw)))

	result := s.core.Append([][]byte{raw}).Wait()
	if result.Err != nil {
		if errors.Is(result.Err, raft.ErrNotLeaderForPartition) {
			s.metrics.IncKVProposalResult(s.nodeID, "not_leader")
			kvSpanRecordError(span, ErrNotLeader)
			return 0, ErrNotLeader
		}
		kvSpanRecordError(span, result.Err)
		return 0, result.Err
	}
	offset := int64(result.BaseOffset)
	s.metrics.IncKVProposalResult(s.nodeID, "accepted")
	span.SetAttributes(attribute.Int64("raft.log.offset", offset))
	s.logger.Debug("command accepted by consensus", "offset", offset, "type", cmd.Type, "key", cmd.Key)

	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.waitApplied(ctx, result.BaseOffset); err != nil {
		kvSpanRecordError(span, err)
		return 0, err
	}
	return offset, nil
}

func (s *KV) waitApplied(ctx context.Context, offset raft.Offset) error {
	ctx, span := s.startSpan(ctx, "kv.service.waitApplied", attribute.Int64("raft.log.offset", int64(offset)))
	defer span.End()
	start := time.Now()
	wakeups := 0

	for {
		s.mu.Lock()
		applied := s.appliedOffset
		appliedAt := s.appliedAtByOffset[offset]
		s.mu.Unlock()
		span.SetAttributes(kvAppliedOffsetAttr(applied))
		if applied > offset {
			span.SetAttributes(attribute.Bool("kv.wait_applied.done", true))
			total := time.Since(start)
			s.metrics.ObserveKVWaitAppliedDuration(s.nodeID, total, true)
			s.metrics.AddKVWaitAppliedWakeups(s.nodeID, wakeups)
			s.metrics.IncKVWaitAppliedCall(s.nodeID, true)
			if !appliedAt.IsZero() {
				now := time.Now()
				if !appliedAt.Before(start) {
					s.metrics.ObserveKVStartToApplyDuration(s.nodeID, appliedAt.Sub(start))
				}
				if !now.Before(appliedAt) {
					s.metrics.ObserveKVApplyToWakeDuration(s.nodeID, now.Sub(appliedAt))
				}
				s.mu.Lock()
				delete(s.appliedAtByOffset, offset)
				s.mu.Unlock()
			}
			return nil
		}
		select {
		case <-ctx.Done():
			kvSpanRecordError(span, ErrCommitTimeout)
			s.metrics.ObserveKVWaitAppliedDuration(s.nodeID, time.Since(start), false)
			s.metrics.AddKVWaitAppliedWakeups(s.nodeID, wakeups)
			s.metrics.IncKVWaitAppliedCall(s.nodeID, false)
			s.metrics.IncKVProposalResult(s.nodeID, "commit_timeout")
			return ErrCommitTimeout
		case <-s.applyNotifyCh:
			wakeups++
		case <-time.After(PollInterval):
			wakeups++
		}
	}
}
