package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
)

// Config contains runtime settings for a node process.
type Config struct {
	// NodeID is this node's identity, both the human-facing label used in
	// logs/metrics and (parsed as int64) the raft.NodeID the consensus core
	// operates on.
	NodeID   string
	LogLevel string

	// GRPCAddr is the single listener the KV, Raft, and admin gRPC services
	// are all registered against.
	GRPCAddr string

	MetricsAddr string
	PprofAddr   string

	TracingEnabled     bool
	TracingEndpoint    string
	TracingServiceName string

	DataDir string

	// PeerAddrs lists every other cluster member as "node-id=host:port".
	PeerAddrs []string

	// Voters is the fixed voter set as raft node ids. If empty, it defaults
	// to this node's id plus every id in PeerAddrs (i.e. every configured
	// member votes).
	Voters []string

	// Observer leaves this node out of the default voter set (see
	// VoterIDs). An explicit Voters list that names this node still makes
	// it a voter.
	Observer bool

	// BootstrapAddrs seeds LeaderDiscovery's FindQuorum probing (the
	// observer join path) independently of PeerAddrs.
	BootstrapAddrs []string

	ElectionTimeoutMs int
	ElectionJitterMs  int
	RetryBackoffMs    int
	RequestTimeoutMs  int
	MaxQueueSize      int

	// AdvertisedHost/AdvertisedPort are handed back to peers answering
	// FindQuorum on our behalf.
	AdvertisedHost string
	AdvertisedPort int
}

// DefaultConfig returns a local-development configuration.
func DefaultConfig() Config {
	return Config{
		NodeID:             "1",
		LogLevel:           "info",
		GRPCAddr:           ":9090",
		DataDir:            "./var/node-1",
		TracingServiceName: "quorumcore-node",
		ElectionTimeoutMs:  1000,
		ElectionJitterMs:   250,
		RetryBackoffMs:     200,
		RequestTimeoutMs:   5000,
	}
}

// LoadConfigFromEnv loads config from environment variables.
//
// Supported vars:
// - APP_NODE_ID
// - APP_LOG_LEVEL (debug|info|warn|error)
// - APP_GRPC_ADDR
// - APP_METRICS_ADDR
// - APP_PPROF_ADDR
// - APP_TRACING_ENABLED (true|false)
// - APP_TRACING_ENDPOINT
// - APP_TRACING_SERVICE_NAME
// - APP_DATA_DIR
// - APP_PEERS (comma-separated "node-id=host:port")
// - APP_VOTERS (comma-separated node ids; empty means every configured member)
// - APP_OBSERVER (true|false)
// - APP_BOOTSTRAP_ADDRS (comma-separated host:port)
// - APP_ELECTION_TIMEOUT_MS / APP_ELECTION_JITTER_MS / APP_RETRY_BACKOFF_MS / APP_REQUEST_TIMEOUT_MS
// - APP_MAX_QUEUE_SIZE
// - APP_ADVERTISED_HOST / APP_ADVERTISED_PORT
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("APP_NODE_ID")); v != "" {
		cfg.NodeID = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_GRPC_ADDR")); v != "" {
		cfg.GRPCAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_METRICS_ADDR")); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_PPROF_ADDR")); v != "" {
		cfg.PprofAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_TRACING_ENABLED %q: %w", v, err)
		}
		cfg.TracingEnabled = b
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_ENDPOINT")); v != "" {
		cfg.TracingEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_TRACING_SERVICE_NAME")); v != "" {
		cfg.TracingServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_PEERS")); v != "" {
		cfg.PeerAddrs = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_VOTERS")); v != "" {
		cfg.Voters = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_OBSERVER")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_OBSERVER %q: %w", v, err)
		}
		cfg.Observer = b
	}
	if v := strings.TrimSpace(os.Getenv("APP_BOOTSTRAP_ADDRS")); v != "" {
		cfg.BootstrapAddrs = splitCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("APP_ELECTION_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_ELECTION_TIMEOUT_MS %q: %w", v, err)
		}
		cfg.ElectionTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv("APP_ELECTION_JITTER_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_ELECTION_JITTER_MS %q: %w", v, err)
		}
		cfg.ElectionJitterMs = n
	}
	if v := strings.TrimSpace(os.Getenv("APP_RETRY_BACKOFF_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_RETRY_BACKOFF_MS %q: %w", v, err)
		}
		cfg.RetryBackoffMs = n
	}
	if v := strings.TrimSpace(os.Getenv("APP_REQUEST_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_REQUEST_TIMEOUT_MS %q: %w", v, err)
		}
		cfg.RequestTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv("APP_MAX_QUEUE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_MAX_QUEUE_SIZE %q: %w", v, err)
		}
		cfg.MaxQueueSize = n
	}
	if v := strings.TrimSpace(os.Getenv("APP_ADVERTISED_HOST")); v != "" {
		cfg.AdvertisedHost = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ADVERTISED_PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("app: invalid APP_ADVERTISED_PORT %q: %w", v, err)
		}
		cfg.AdvertisedPort = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and supported.
func (c Config) Validate() error {
	if strings.TrimSpace(c.NodeID) == "" {
		return fmt.Errorf("app: node id is required")
	}
	if _, err := c.SelfNodeID(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("app: unsupported log level %q", c.LogLevel)
	}
	if strings.TrimSpace(c.GRPCAddr) == "" {
		return fmt.Errorf("app: grpc addr is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("app: data dir is required")
	}
	if c.TracingEnabled && strings.TrimSpace(c.TracingEndpoint) == "" {
		return fmt.Errorf("app: tracing endpoint is required when tracing is enabled")
	}
	if _, err := c.PeerAddrMap(); err != nil {
		return err
	}
	if _, err := c.VoterIDs(); err != nil {
		return err
	}
	return nil
}

// SelfNodeID parses NodeID as the raft.NodeID this node runs as.
func (c Config) SelfNodeID() (raft.NodeID, error) {
	return parseNodeID(c.NodeID)
}

// PeerAddrMap parses PeerAddrs into a map of peer-id -> address.
// Each entry must be "node-id=host:port".
func (c Config) PeerAddrMap() (map[string]string, error) {
	out := make(map[string]string, len(c.PeerAddrs))
	for _, raw := range c.PeerAddrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		id, addr, ok := strings.Cut(raw, "=")
		id = strings.TrimSpace(id)
		addr = strings.TrimSpace(addr)
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("app: invalid peer entry %q (want node-id=host:port)", raw)
		}
		if _, exists := out[id]; exists {
			return nil, fmt.Errorf("app: duplicate peer id %q", id)
		}
		out[id] = addr
	}
	return out, nil
}

// RaftPeerAddrMap is PeerAddrMap keyed by raft.NodeID, for seeding a
// raftgrpc.Client's endpoint table.
func (c Config) RaftPeerAddrMap() (map[raft.NodeID]string, error) {
	byString, err := c.PeerAddrMap()
	if err != nil {
		return nil, err
	}
	out := make(map[raft.NodeID]string, len(byString))
	for idStr, addr := range byString {
		id, err := parseNodeID(idStr)
		if err != nil {
			return nil, err
		}
		out[id] = addr
	}
	return out, nil
}

// VoterIDs returns the fixed voter set. An explicit Voters list is parsed
// as-is; otherwise every configured member (self plus PeerAddrs) votes,
// unless this node is an Observer, in which case it is excluded.
func (c Config) VoterIDs() ([]raft.NodeID, error) {
	if len(c.Voters) > 0 {
		out := make([]raft.NodeID, 0, len(c.Voters))
		for _, raw := range c.Voters {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			id, err := parseNodeID(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		return out, nil
	}

	peers, err := c.RaftPeerAddrMap()
	if err != nil {
		return nil, err
	}
	self, err := c.SelfNodeID()
	if err != nil {
		return nil, err
	}
	out := make([]raft.NodeID, 0, len(peers)+1)
	if !c.Observer {
		out = append(out, self)
	}
	for id := range peers {
		out = append(out, id)
	}
	return out, nil
}

// RaftConfig builds the raft.Config this node's ConsensusCore is
// constructed with.
func (c Config) RaftConfig() (raft.Config, error) {
	self, err := c.SelfNodeID()
	if err != nil {
		return raft.Config{}, err
	}
	voters, err := c.VoterIDs()
	if err != nil {
		return raft.Config{}, err
	}
	rc := raft.Config{
		SelfID:            self,
		Voters:            voters,
		BootstrapAddrs:    append([]string(nil), c.BootstrapAddrs...),
		ElectionTimeoutMs: c.ElectionTimeoutMs,
		ElectionJitterMs:  c.ElectionJitterMs,
		RetryBackoffMs:    c.RetryBackoffMs,
		RequestTimeoutMs:  c.RequestTimeoutMs,
		MaxQueueSize:      c.MaxQueueSize,
		AdvertisedHost:    c.AdvertisedHost,
		AdvertisedPort:    c.AdvertisedPort,
	}
	if err := rc.Validate(); err != nil {
		return raft.Config{}, err
	}
	return rc, nil
}

func parseNodeID(raw string) (raft.NodeID, error) {
	raw = strings.TrimSpace(raw)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("app: invalid node id %q: %w", raw, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("app: node id must be non-zero")
	}
	return raft.NodeID(n), nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
