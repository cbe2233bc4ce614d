// Package app wires the consensus node, state machine, and transports together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/i-melnichenko/quorumcore/internal/consensus/raft"
	"github.com/i-melnichenko/quorumcore/internal/service"
	admingrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/admin"
	kvgrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/kv"
	raftgrpc "github.com/i-melnichenko/quorumcore/internal/transport/grpc/raft"
)

// Logger is the logging interface required by App.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// pollMaxTimeout caps how long a single ConsensusCore.Poll call may block,
// so shutdown via ctx cancellation is never delayed by more than this.
const pollMaxTimeout = 250 * time.Millisecond

// App wires consensus and the KV state machine into a runnable service.
// All dependencies are injected; App does not create transport connections.
type App struct {
	config   Config
	logger   Logger
	core     *raft.ConsensusCore
	kv       *service.KV
	raftSrv  raftgrpc.RaftServer
	kvSrv    kvgrpc.KVServer
	adminSrv admingrpc.AdminServer
}

// New validates dependencies and constructs a runnable application.
func New(
	cfg Config,
	logger Logger,
	core *raft.ConsensusCore,
	kvSvc *service.KV,
	raftSrv raftgrpc.RaftServer,
	adminSrv admingrpc.AdminServer,
) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("app: nil logger")
	}
	if core == nil {
		return nil, fmt.Errorf("app: nil consensus core")
	}
	if kvSvc == nil {
		return nil, fmt.Errorf("app: nil kv service")
	}
	if raftSrv == nil {
		return nil, fmt.Errorf("app: nil raft server")
	}
	if adminSrv == nil {
		return nil, fmt.Errorf("app: nil admin server")
	}
	return &App{
		config:   cfg,
		logger:   logger,
		core:     core,
		kv:       kvSvc,
		raftSrv:  raftSrv,
		kvSrv:    kvgrpc.NewServer(kvSvc),
		adminSrv: adminSrv,
	}, nil
}

// Run starts consensus polling, tracing, metrics, and a shared gRPC server
// and blocks until shutdown or fatal error.
func (a *App) Run(ctx context.Context) error {
	shutdownTracing, err := a.initTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutCtx)
	}()

	lis, err := net.Listen("tcp", a.config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.config.GRPCAddr, err)
	}
	defer func() { _ = lis.Close() }()

	metricsSrv, metricsLis, err := a.metricsServer()
	if err != nil {
		return err
	}
	pprofSrv, pprofLis, err := a.pprofServer()
	if err != nil {
		return err
	}

	a.logger.Info(
		"node started",
		"node_id", a.config.NodeID,
		"grpc_addr", a.config.GRPCAddr,
	)

	return a.serve(ctx, lis, []debugServer{
		{srv: metricsSrv, lis: metricsLis, name: "metrics server"},
		{srv: pprofSrv, lis: pprofLis, name: "pprof server"},
	})
}

// debugServer pairs an optional auxiliary HTTP server (metrics, pprof) with
// its already-bound listener. srv is nil when the corresponding address was
// left unconfigured.
type debugServer struct {
	srv  *http.Server
	lis  net.Listener
	name string
}

// serve registers gRPC services, starts goroutines, and blocks until ctx is
// canceled or a fatal error occurs.
func (a *App) serve(ctx context.Context, lis net.Listener, debugSrvs []debugServer) error {
	server := grpc.NewServer()
	kvgrpc.RegisterKVServer(server, a.kvSrv)
	admingrpc.RegisterAdminServer(server, a.adminSrv)
	raftgrpc.RegisterRaftServer(server, a.raftSrv)
	reflection.Register(server)

	errCh := make(chan error, 2+len(debugSrvs))

	go a.runConsensusLoop(ctx, errCh)
	go func() {
		if err := a.kv.RunApplyLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("kv apply loop: %w", err)
		}
	}()
	go func() {
		if err := server.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	for _, d := range debugSrvs {
		if d.srv == nil {
			continue
		}
		d := d
		go func() {
			if err := d.srv.Serve(d.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s serve: %w", d.name, err)
			}
		}()
	}

	shutdownDebugServers := func() {
		for _, d := range debugSrvs {
			shutdownHTTPServer(d.srv, a.logger, d.name)
		}
	}

	select {
	case <-ctx.Done():
		server.GracefulStop()
		shutdownDebugServers()
		return nil
	case err := <-errCh:
		server.Stop()
		shutdownDebugServers()
		return err
	}
}

// runConsensusLoop cooperatively drives ConsensusCore.Poll until ctx is
// canceled, since ConsensusCore exposes no Run/Stop of its own — it is a
// single-threaded state machine advanced by repeated Poll calls.
func (a *App) runConsensusLoop(ctx context.Context, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := a.core.Poll(ctx, pollMaxTimeout)
		if wait <= 0 {
			continue
		}
		if wait > pollMaxTimeout {
			wait = pollMaxTimeout
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
