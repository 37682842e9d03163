// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/vidtube/vidtube/internal/auth"
	"github.com/vidtube/vidtube/internal/auth/memory"
	authpostgres "github.com/vidtube/vidtube/internal/auth/postgres"
	authredis "github.com/vidtube/vidtube/internal/auth/redis"
	"github.com/vidtube/vidtube/internal/config"
	"github.com/vidtube/vidtube/internal/httpapi"
	"github.com/vidtube/vidtube/internal/logging"
	"github.com/vidtube/vidtube/internal/media"
	"github.com/vidtube/vidtube/internal/store"
)

const (
	serviceName   = "vidtube"
	componentName = "api"

	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long: `Start the HTTP account API together with the control gRPC health
endpoint and the metrics server.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := deps.ConfigLoader(config.Options{
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
	if err != nil {
		return oops.With("operation", "load configuration").Wrap(err)
	}

	logger := setupLogging(cfg.Log)
	logger.Info("starting vidtube",
		"version", version,
		"config", cfg,
	)

	accounts, closeStore, err := deps.StoreOpener(ctx, cfg.Store)
	if err != nil {
		return oops.With("operation", "open account store").With("driver", cfg.Store.Driver).Wrap(err)
	}
	defer closeStore()
	logger.Info("account store ready", "driver", cfg.Store.Driver)

	mediaStore, err := deps.MediaStoreFactory(ctx, cfg.Media)
	if err != nil {
		return oops.With("operation", "create media store").Wrap(err)
	}

	ready := func(ctx context.Context) bool {
		return accounts.Ping(ctx) == nil
	}

	// The observability server always exists so its metrics can be recorded;
	// it only listens when an address is configured.
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready)
	metrics := obsServer.Metrics()

	svc, err := newAuthService(cfg.Auth, accounts, logger, metrics)
	if err != nil {
		return err
	}

	apiServer, err := deps.APIServerFactory(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		CookieSecure:   cfg.HTTP.CookieSecure,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
	}, svc, mediaStore, httpapi.WithLogger(logger), httpapi.WithMetrics(metrics))
	if err != nil {
		return oops.With("operation", "create api server").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	controlServer, err := deps.ControlServerFactory(componentName, ready)
	if err != nil {
		return oops.With("operation", "create control server").Wrap(err)
	}
	controlErrChan, err := controlServer.Start(cfg.Control.Addr)
	if err != nil {
		return oops.With("operation", "start control server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, controlErrChan, "control-grpc")
	logger.Info("control gRPC server started", "addr", cfg.Control.Addr)

	// stopAll runs the shutdown sequence for whatever has started so far.
	var started []func(context.Context) error
	started = append(started, controlServer.Stop)
	stopAll := func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i](shutdownCtx); err != nil {
				logger.Warn("error during shutdown", "error", err)
			}
		}
	}

	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopAll()
			return oops.With("operation", "start observability server").Wrap(err)
		}
		started = append(started, obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiErrChan, err := apiServer.Start()
	if err != nil {
		stopAll()
		return oops.With("operation", "start api server").Wrap(err)
	}
	started = append(started, apiServer.Stop)
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("VidTube API started on " + apiServer.Addr())
	logger.Info("vidtube ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopAll()
	logger.Info("shutdown complete")
	return nil
}

// setupLogging installs the process-wide logger.
func setupLogging(cfg config.LogConfig) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Format, cfg.Level)
}

// newAuthService wires the token codec and hasher into an auth.Service.
func newAuthService(cfg config.AuthConfig, accounts auth.AccountStore, logger *slog.Logger, recorder auth.EventRecorder) (*auth.Service, error) {
	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		return nil, oops.With("operation", "create token codec").Wrap(err)
	}

	svc, err := auth.NewService(accounts, auth.NewArgon2idHasher(), codec,
		auth.WithLogger(logger),
		auth.WithEventRecorder(recorder),
		auth.WithConcealUnknownAccount(cfg.ConcealUnknownAccount),
	)
	if err != nil {
		return nil, oops.With("operation", "create auth service").Wrap(err)
	}
	return svc, nil
}

// openAccountStore connects the backend named by cfg.Driver.
func openAccountStore(ctx context.Context, cfg config.StoreConfig) (AccountStore, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.OpenPool(ctx, cfg.DatabaseURL, store.DefaultConnectOptions())
		if err != nil {
			return nil, nil, err
		}
		return authpostgres.NewAccountStore(pool), pool.Close, nil

	case config.DriverRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		}
		return authredis.NewAccountStore(rdb, authredis.WithPrefix(cfg.RedisPrefix)), closeFn, nil

	case config.DriverMemory:
		slog.Warn("using in-memory account store; accounts are lost on restart")
		return memory.NewAccountStore(), func() {}, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown store driver")
	}
}

// openRedis parses url and pings the server, retrying while it starts up.
func openRedis(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	rdb := goredis.NewClient(opts)

	backoff := retry.WithMaxRetries(7, retry.WithCappedDuration(5*time.Second,
		retry.NewExponential(250*time.Millisecond)))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "redis not reachable, retrying", "attempt", attempt, "addr", opts.Addr, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = rdb.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).With("attempts", attempt).Wrap(err)
	}
	return rdb, nil
}

// newMediaStore returns an S3 store when media storage is enabled and an
// in-process store otherwise.
func newMediaStore(ctx context.Context, cfg config.MediaConfig) (media.Store, error) {
	if !cfg.Enabled {
		baseURL := cfg.PublicBaseURL
		if baseURL == "" {
			baseURL = "http://localhost/media"
		}
		slog.Warn("media storage disabled; uploads are kept in memory")
		return media.NewMemoryStore(baseURL), nil
	}
	s3Store, err := media.NewS3Store(ctx, media.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		PublicBaseURL:   cfg.PublicBaseURL,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PathStyle:       cfg.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3Store, nil
}

// monitorServerErrors watches a server error channel and cancels the context on error.
// This allows the main loop to initiate graceful shutdown when a server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
