// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package store owns the PostgreSQL connection pool and schema migrations
// behind the account store.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions controls how OpenPool waits for the database.
type ConnectOptions struct {
	// Attempts is the number of connection attempts before giving up.
	Attempts uint64
	// Backoff is the initial delay between attempts; it doubles each time.
	Backoff time.Duration
	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration
	Logger     *slog.Logger
}

// DefaultConnectOptions suits a container starting alongside its database.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		Attempts:   8,
		Backoff:    250 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		Logger:     slog.Default(),
	}
}

// backoff builds the go-retry policy described by opts.
func (o ConnectOptions) backoff() retry.Backoff {
	b := retry.NewExponential(o.Backoff)
	b = retry.WithCappedDuration(o.MaxBackoff, b)
	if o.Attempts > 0 {
		b = retry.WithMaxRetries(o.Attempts-1, b)
	}
	return b
}

// OpenPool parses dsn and pings the database, retrying while it is
// unreachable. A malformed dsn fails immediately.
func OpenPool(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var pool *pgxpool.Pool
	attempt := 0
	err = retry.Do(ctx, opts.backoff(), func(ctx context.Context) error {
		attempt++
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return retry.RetryableError(err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			opts.Logger.WarnContext(ctx, "database not reachable, retrying",
				"attempt", attempt, "host", cfg.ConnConfig.Host, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", cfg.ConnConfig.Host).
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
