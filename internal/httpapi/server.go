// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package httpapi serves the VidTube account API: login, token refresh,
// logout, password change, registration and the current user.
//
// Routes are mounted both at the root and under /api/v1/users. Every
// response uses the Envelope shape.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/rs/cors"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/media"
)

// APIPrefix is the versioned mount point for the user routes.
const APIPrefix = "/api/v1/users"

// AuthService is the part of *auth.Service the handlers use.
type AuthService interface {
	Login(ctx context.Context, identifier, password string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Logout(ctx context.Context, accountID ulid.ULID) error
	ChangePassword(ctx context.Context, accountID ulid.ULID, oldPassword, newPassword string) error
	Register(ctx context.Context, reg auth.Registration) (*auth.Profile, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Account, error)
	TokenTTL(kind auth.TokenKind) time.Duration
}

// RequestRecorder receives one call per handled request.
type RequestRecorder interface {
	RecordHTTPRequest(route string, status int, elapsed time.Duration)
}

// Config configures the API server.
type Config struct {
	Addr           string
	CORSOrigins    []string
	CookieSecure   bool
	MaxUploadBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the request recorder.
func WithMetrics(m RequestRecorder) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracer = tp.Tracer("github.com/vidtube/vidtube/internal/httpapi") }
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	auth     AuthService
	media    media.Store
	logger   *slog.Logger
	metrics  RequestRecorder
	tracer   trace.Tracer
	validate *validator.Validate
	handler  http.Handler

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer builds the API server and its routes.
func NewServer(cfg Config, svc AuthService, store media.Store, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("auth service is required")
	}
	if store == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("media store is required")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	s := &Server{
		cfg:      cfg,
		auth:     svc,
		media:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/vidtube/vidtube/internal/httpapi"),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "httpapi")
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	type route struct {
		method, path string
		handler      http.HandlerFunc
	}
	table := []route{
		{http.MethodPost, "/login", s.handleLogin},
		{http.MethodPost, "/refresh-token", s.handleRefresh},
		{http.MethodPost, "/logout", s.requireAuth(s.handleLogout)},
		{http.MethodPatch, "/password", s.requireAuth(s.handleChangePassword)},
		{http.MethodPost, "/register", s.handleRegister},
		{http.MethodGet, "/current-user", s.requireAuth(s.handleCurrentUser)},
		{http.MethodGet, "/healthcheck", s.handleHealthcheck},
	}
	for _, rt := range table {
		name := rt.method + " " + rt.path
		h := s.instrument(name, rt.handler)
		mux.Handle(rt.method+" "+rt.path, h)
		mux.Handle(rt.method+" "+APIPrefix+rt.path, h)
	}

	var h http.Handler = s.recoverPanics(mux)
	// rs/cors allows every origin when the list is empty.
	if len(s.cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
			ExposedHeaders:   []string{RequestIDHeader},
			AllowCredentials: true,
		}).Handler(h)
	}
	return withRequestID(h)
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address. The returned channel receives
// a serve error, or is closed after a graceful Stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpSrv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	httpSrv := s.httpServer
	s.mu.Unlock()

	if err := httpSrv.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
