// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package control provides the gRPC health endpoint used for process
// management and the `vidtube status` command.
package control

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCheckInterval is how often readiness is re-evaluated.
const DefaultCheckInterval = 5 * time.Second

// ReadinessFunc reports whether the process can serve requests.
type ReadinessFunc func(ctx context.Context) bool

// GRPCServer runs the grpc.health.v1 service. The overall status ("") and
// the component's own service name both follow the readiness function.
type GRPCServer struct {
	component string
	ready     ReadinessFunc
	interval  time.Duration

	mu         sync.Mutex
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	stopWatch  chan struct{}
	watchDone  chan struct{}
	running    atomic.Bool
}

// Option configures a GRPCServer.
type Option func(*GRPCServer)

// WithCheckInterval overrides DefaultCheckInterval.
func WithCheckInterval(d time.Duration) Option {
	return func(s *GRPCServer) { s.interval = d }
}

// NewGRPCServer creates a health server for component. A nil ready func
// means always serving.
func NewGRPCServer(component string, ready ReadinessFunc, opts ...Option) (*GRPCServer, error) {
	if component == "" {
		return nil, oops.Code("CONTROL_INVALID").Errorf("component name cannot be empty")
	}
	s := &GRPCServer{
		component: component,
		ready:     ready,
		interval:  DefaultCheckInterval,
		health:    health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start listens on addr (plaintext; bind it to loopback) and serves health
// checks. It returns an error channel that receives the server's exit error,
// or is closed on graceful stop.
func (s *GRPCServer) Start(addr string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prevent double-start which would leak the first listener
	if s.listener != nil {
		return nil, oops.Code("CONTROL_ALREADY_RUNNING").Errorf("server is already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, oops.Code("CONTROL_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	s.Check(context.Background())
	s.running.Store(true)
	s.stopWatch = make(chan struct{})
	s.watchDone = make(chan struct{})
	go s.watch(s.stopWatch, s.watchDone)

	srv := s.grpcServer
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil {
			slog.Error("control gRPC server error",
				"component", s.component,
				"error", err,
			)
			errCh <- err
		}
	}()

	slog.Info("control server started", "component", s.component, "addr", listener.Addr().String())
	return errCh, nil
}

// Check evaluates readiness once and publishes the result.
func (s *GRPCServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ok := s.ready(checkCtx)
		cancel()
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.component, status)
	return status
}

func (s *GRPCServer) watch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Check(context.Background())
		}
	}
}

// Stop marks every service NOT_SERVING and shuts the server down gracefully.
func (s *GRPCServer) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopWatch != nil {
		close(s.stopWatch)
		<-s.watchDone
		s.stopWatch = nil
	}
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	s.running.Store(false)
	return nil
}

// Addr returns the listen address, or "" before Start.
func (s *GRPCServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *GRPCServer) Running() bool {
	return s.running.Load()
}

// CheckHealth dials addr and queries the health of service ("" for the whole
// process).
func CheckHealth(ctx context.Context, addr, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, oops.Code("CONTROL_DIAL_FAILED").With("addr", addr).Wrap(err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, oops.Code("CONTROL_UNREACHABLE").
			With("addr", addr).
			With("service", service).
			Wrap(err)
	}
	return resp.GetStatus(), nil
}
