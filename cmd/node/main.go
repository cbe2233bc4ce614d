// Package main implements the node process that runs KRaft consensus and the KV gRPC API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	apppkg "github.com/i-melnichenko/quorumcore/internal/app"
	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	"github.com/i-melnichenko/quorumcore/internal/kv"
	"github.com/i-melnichenko/quorumcore/internal/observability/metrics"
	"github.com/i-melnichenko/quorumcore/internal/service"
	admingrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/admin"
	raftgrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/raft"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "node: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := apppkg.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
	logger := slog.Default()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}

	raftCfg, err := cfg.RaftConfig()
	if err != nil {
		return err
	}
	peerAddrs, err := cfg.RaftPeerAddrMap()
	if err != nil {
		return err
	}
	adminPeerAddrs, err := cfg.PeerAddrMap()
	if err != nil {
		return err
	}

	promMetrics, err := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	tracer := otel.Tracer("quorumcore/node")

	client := raftgrpc.NewClient(tracer, grpc.WithTransportCredentials(insecure.NewCredentials()))
	raftgrpc.BootstrapPeers(client, peerAddrs)

	store := raft.NewFileElectionStore(filepath.Join(cfg.DataDir, "election.json"))
	log := raft.NewInMemoryLog()
	channel := raft.NewChannel(
		raftCfg.SelfID,
		client,
		logger,
		promMetrics,
		time.Duration(raftCfg.RequestTimeoutMs)*time.Millisecond,
		time.Duration(raftCfg.RetryBackoffMs)*time.Millisecond,
		raftCfg.MaxQueueSize,
	)

	core, err := raft.NewConsensusCore(raftCfg, store, log, channel, logger, promMetrics, tracer)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("init consensus core: %w", err)
	}

	kvStore := kv.NewStore(tracer)
	kvSvc := service.NewKV(core, log, kvStore, logger, tracer, promMetrics, cfg.NodeID)

	raftSrv := raftgrpc.NewServer(channel, tracer)
	adminSrv := admingrpc.NewServer(cfg.NodeID, adminPeerAddrs, core)

	app, err := apppkg.New(cfg, logger, core, kvSvc, raftSrv, adminSrv)
	if err != nil {
		_ = client.Close()
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := app.Run(ctx)
	_ = client.Close()
	return runErr
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
