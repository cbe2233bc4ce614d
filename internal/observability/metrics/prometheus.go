//revive:disable:var-naming
//revive:disable:exported
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// Prometheus exposes application metrics and is injected into both the
// service and raft layers. It implements internal/service.Metrics and
// internal/consensus/raft.Metrics directly.
type Prometheus struct {
	kvWaitAppliedDuration     *prometheus.HistogramVec
	kvStartToApplyDuration    *prometheus.HistogramVec
	kvApplyToWakeDuration     *prometheus.HistogramVec
	kvWaitAppliedWakeupsTotal *prometheus.CounterVec
	kvWaitAppliedCallsTotal   *prometheus.CounterVec
	kvProposalTotal           *prometheus.CounterVec

	raftVoteRequestSentTotal *prometheus.CounterVec
	raftVoteGrantedTotal     *prometheus.CounterVec
	raftVoteRejectedTotal    *prometheus.CounterVec
	raftElectionStartedTotal *prometheus.CounterVec
	raftElectionWonTotal     *prometheus.CounterVec
	raftFetchRPCDuration     *prometheus.HistogramVec
	raftFetchErrorTotal      *prometheus.CounterVec
	raftOffsetOutOfRangeTot  *prometheus.CounterVec
	raftHighWatermark        *prometheus.GaugeVec
	raftIsLeader             *prometheus.GaugeVec
	raftPersistenceErrorTot  *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Prometheus{
		kvWaitAppliedDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "wait_applied_duration_seconds",
				Help:      "Time spent waiting for a proposed command to be applied in the KV service.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
			},
			[]string{"node_id", "result"},
		),
		kvStartToApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "start_to_apply_duration_seconds",
				Help:      "Time from entering KV waitApplied to the command becoming applied in the state machine.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"node_id"},
		),
		kvApplyToWakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "apply_to_waiter_wakeup_duration_seconds",
				Help:      "Time from state machine apply to request waiter completion in KV service.",
				Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02},
			},
			[]string{"node_id"},
		),
		kvWaitAppliedWakeupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "wait_applied_wakeups_total",
				Help:      "Total apply-notify wakeups observed by waitApplied calls.",
			},
			[]string{"node_id"},
		),
		kvWaitAppliedCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "wait_applied_calls_total",
				Help:      "Total number of waitApplied calls by result.",
			},
			[]string{"node_id", "result"},
		),
		kvProposalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "kv",
				Name:      "proposal_total",
				Help:      "KV write proposal outcomes (accepted, not_leader, commit_timeout, etc.).",
			},
			[]string{"node_id", "result"},
		),
		raftVoteRequestSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "vote_request_sent_total",
				Help:      "VoteRequest RPCs sent by a candidate to a peer.",
			},
			[]string{"node_id", "peer_id"},
		),
		raftVoteGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "vote_granted_total",
				Help:      "Votes granted to a node as candidate.",
			},
			[]string{"node_id"},
		),
		raftVoteRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "vote_rejected_total",
				Help:      "Votes rejected for a node as candidate.",
			},
			[]string{"node_id"},
		),
		raftElectionStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "election_started_total",
				Help:      "Number of times a node started an election as candidate.",
			},
			[]string{"node_id"},
		),
		raftElectionWonTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "election_won_total",
				Help:      "Number of elections won by a node.",
			},
			[]string{"node_id"},
		),
		raftFetchRPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "fetch_rpc_duration_seconds",
				Help:      "Duration of outbound Fetch RPC calls from a follower/leader to a peer.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"node_id", "peer_id"},
		),
		raftFetchErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "fetch_error_total",
				Help:      "Outbound Fetch RPC errors by kind.",
			},
			[]string{"node_id", "peer_id", "kind"},
		),
		raftOffsetOutOfRangeTot: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "offset_out_of_range_total",
				Help:      "OFFSET_OUT_OF_RANGE responses observed by a node.",
			},
			[]string{"node_id"},
		),
		raftHighWatermark: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "high_watermark",
				Help:      "Current high-watermark offset known to a node.",
			},
			[]string{"node_id"},
		),
		raftIsLeader: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "is_leader",
				Help:      "1 if node currently believes it is leader, otherwise 0.",
			},
			[]string{"node_id"},
		),
		raftPersistenceErrorTot: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "quorumcore",
				Subsystem: "raft",
				Name:      "persistence_error_total",
				Help:      "Election-store persistence errors by operation.",
			},
			[]string{"node_id", "op"},
		),
	}

	if err := m.register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Prometheus) register(reg prometheus.Registerer) error {
	if err := registerOrReuseHistogramVec(reg, &m.kvWaitAppliedDuration); err != nil {
		return fmt.Errorf("register kv waitApplied histogram: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.kvStartToApplyDuration); err != nil {
		return fmt.Errorf("register kv start->apply histogram: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.kvApplyToWakeDuration); err != nil {
		return fmt.Errorf("register kv apply->wake histogram: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.kvWaitAppliedWakeupsTotal); err != nil {
		return fmt.Errorf("register kv wait wakeups counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.kvWaitAppliedCallsTotal); err != nil {
		return fmt.Errorf("register kv wait calls counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.kvProposalTotal); err != nil {
		return fmt.Errorf("register kv proposal counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftVoteRequestSentTotal); err != nil {
		return fmt.Errorf("register raft vote request counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftVoteGrantedTotal); err != nil {
		return fmt.Errorf("register raft vote granted counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftVoteRejectedTotal); err != nil {
		return fmt.Errorf("register raft vote rejected counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftElectionStartedTotal); err != nil {
		return fmt.Errorf("register raft election started counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftElectionWonTotal); err != nil {
		return fmt.Errorf("register raft election won counter: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.raftFetchRPCDuration); err != nil {
		return fmt.Errorf("register raft fetch rpc histogram: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftFetchErrorTotal); err != nil {
		return fmt.Errorf("register raft fetch error counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftOffsetOutOfRangeTot); err != nil {
		return fmt.Errorf("register raft offset out of range counter: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &m.raftHighWatermark); err != nil {
		return fmt.Errorf("register raft high watermark gauge: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &m.raftIsLeader); err != nil {
		return fmt.Errorf("register raft is_leader gauge: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftPersistenceErrorTot); err != nil {
		return fmt.Errorf("register raft persistence error counter: %w", err)
	}
	return nil
}

func registerOrReuseHistogramVec(reg prometheus.Registerer, c **prometheus.HistogramVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

func registerOrReuseCounterVec(reg prometheus.Registerer, c **prometheus.CounterVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

func registerOrReuseGaugeVec(reg prometheus.Registerer, c **prometheus.GaugeVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

// ---- internal/service.Metrics -----------------------------------------

func (m *Prometheus) ObserveKVWaitAppliedDuration(nodeID string, d time.Duration, ok bool) {
	result := "timeout"
	if ok {
		result = "ok"
	}
	m.kvWaitAppliedDuration.WithLabelValues(nodeID, result).Observe(d.Seconds())
}

func (m *Prometheus) ObserveKVStartToApplyDuration(nodeID string, d time.Duration) {
	m.kvStartToApplyDuration.WithLabelValues(nodeID).Observe(d.Seconds())
}

func (m *Prometheus) ObserveKVApplyToWakeDuration(nodeID string, d time.Duration) {
	m.kvApplyToWakeDuration.WithLabelValues(nodeID).Observe(d.Seconds())
}

func (m *Prometheus) AddKVWaitAppliedWakeups(nodeID string, n int) {
	if n <= 0 {
		return
	}
	m.kvWaitAppliedWakeupsTotal.WithLabelValues(nodeID).Add(float64(n))
}

func (m *Prometheus) IncKVWaitAppliedCall(nodeID string, ok bool) {
	result := "timeout"
	if ok {
		result = "ok"
	}
	m.kvWaitAppliedCallsTotal.WithLabelValues(nodeID, result).Inc()
}

func (m *Prometheus) IncKVProposalResult(nodeID, result string) {
	m.kvProposalTotal.WithLabelValues(nodeID, result).Inc()
}

// ---- internal/consensus/raft.Metrics -----------------------------------

func (m *Prometheus) IncVoteRequestSent(nodeID, peerID raft.NodeID) {
	m.raftVoteRequestSentTotal.WithLabelValues(nodeIDString(nodeID), nodeIDString(peerID)).Inc()
}

func (m *Prometheus) IncVoteGranted(nodeID raft.NodeID) {
	m.raftVoteGrantedTotal.WithLabelValues(nodeIDString(nodeID)).Inc()
}

func (m *Prometheus) IncVoteRejected(nodeID raft.NodeID) {
	m.raftVoteRejectedTotal.WithLabelValues(nodeIDString(nodeID)).Inc()
}

func (m *Prometheus) IncElectionStarted(nodeID raft.NodeID) {
	m.raftElectionStartedTotal.WithLabelValues(nodeIDString(nodeID)).Inc()
}

func (m *Prometheus) IncElectionWon(nodeID raft.NodeID) {
	m.raftElectionWonTotal.WithLabelValues(nodeIDString(nodeID)).Inc()
}

func (m *Prometheus) ObserveFetchRPCDuration(nodeID, peerID raft.NodeID, d time.Duration) {
	m.raftFetchRPCDuration.WithLabelValues(nodeIDString(nodeID), nodeIDString(peerID)).Observe(d.Seconds())
}

func (m *Prometheus) IncFetchError(nodeID, peerID raft.NodeID, kind string) {
	m.raftFetchErrorTotal.WithLabelValues(nodeIDString(nodeID), nodeIDString(peerID), kind).Inc()
}

func (m *Prometheus) IncOffsetOutOfRange(nodeID raft.NodeID) {
	m.raftOffsetOutOfRangeTot.WithLabelValues(nodeIDString(nodeID)).Inc()
}

func (m *Prometheus) SetHighWatermark(nodeID raft.NodeID, hw raft.Offset) {
	m.raftHighWatermark.WithLabelValues(nodeIDString(nodeID)).Set(float64(hw))
}

func (m *Prometheus) SetIsLeader(nodeID raft.NodeID, isLeader bool) {
	if isLeader {
		m.raftIsLeader.WithLabelValues(nodeIDString(nodeID)).Set(1)
		return
	}
	m.raftIsLeader.WithLabelValues(nodeIDString(nodeID)).Set(0)
}

func (m *Prometheus) IncPersistenceError(nodeID raft.NodeID, op string) {
	m.raftPersistenceErrorTot.WithLabelValues(nodeIDString(nodeID), op).Inc()
}

func nodeIDString(id raft.NodeID) string {
	return strconv.FormatInt(int64(id), 10)
}
