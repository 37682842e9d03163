// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package main

import (
	"context"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/config"
	"github.com/vidtube/vidtube/internal/control"
	"github.com/vidtube/vidtube/internal/httpapi"
	"github.com/vidtube/vidtube/internal/media"
	"github.com/vidtube/vidtube/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ConfigLoader reads the layered configuration.
	// Default: config.Load
	ConfigLoader func(opts config.Options) (*config.Config, error)

	// StoreOpener connects the account store selected by cfg.Driver. The
	// returned func releases its connections.
	// Default: openAccountStore
	StoreOpener func(ctx context.Context, cfg config.StoreConfig) (AccountStore, func(), error)

	// MediaStoreFactory builds the avatar and cover image store.
	// Default: newMediaStore
	MediaStoreFactory func(ctx context.Context, cfg config.MediaConfig) (media.Store, error)

	// ControlServerFactory creates a control gRPC server.
	// Default: control.NewGRPCServer
	ControlServerFactory func(component string, ready control.ReadinessFunc) (ControlServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the HTTP API server.
	// Default: httpapi.NewServer
	APIServerFactory func(cfg httpapi.Config, svc httpapi.AuthService, store media.Store, opts ...httpapi.Option) (APIServer, error)
}

// AccountStore is an auth.AccountStore that can report its health.
type AccountStore interface {
	auth.AccountStore
	Ping(ctx context.Context) error
}

// ControlServer interface wraps the methods used from control.GRPCServer.
type ControlServer interface {
	Start(addr string) (<-chan error, error)
	Stop(ctx context.Context) error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// withDefaults fills every nil factory.
func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.StoreOpener == nil {
		d.StoreOpener = openAccountStore
	}
	if d.MediaStoreFactory == nil {
		d.MediaStoreFactory = newMediaStore
	}
	if d.ControlServerFactory == nil {
		d.ControlServerFactory = func(component string, ready control.ReadinessFunc) (ControlServer, error) {
			return control.NewGRPCServer(component, ready)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.APIServerFactory == nil {
		d.APIServerFactory = func(cfg httpapi.Config, svc httpapi.AuthService, store media.Store, opts ...httpapi.Option) (APIServer, error) {
			return httpapi.NewServer(cfg, svc, store, opts...)
		}
	}
	return d
}
