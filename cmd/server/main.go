// Datagate - Time-Series Dataset Access Gateway
// Copyright 2026 SensorLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sensorlab/datagate

// Package main is the entry point for the Datagate server.
//
// Datagate sits between sensor-network clients and an OpenTSDB-style
// time-series store. It owns the permission model (users, groups,
// datasets, apps) in an embedded DuckDB database and proxies datapoint
// queries, windowed TSV exports and metadata edits for callers that
// are allowed to see them.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layering defaults, config file and
//     environment variables (see config.example.yaml)
//  2. Logging: zerolog, level and format from config
//  3. Permissions store: embedded DuckDB
//  4. Upstream client: REST client for the time-series store, wrapped
//     in a circuit breaker when TSDB_BREAKER_ENABLED is set
//  5. HTTP server: chi router with JWT authentication
//
// # Required configuration
//
//	export TSDB_URL=http://opentsdb:4242
//	export JWT_SECRET=$(openssl rand -base64 32)
//	./datagate
//
// # Signal handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the listener stops
// accepting connections, in-flight requests (including running TSV
// exports) get the configured shutdown timeout to finish, then the
// permissions store is checkpointed and closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sensorlab/datagate/internal/access"
	"github.com/sensorlab/datagate/internal/api"
	"github.com/sensorlab/datagate/internal/config"
	"github.com/sensorlab/datagate/internal/database"
	"github.com/sensorlab/datagate/internal/idp"
	"github.com/sensorlab/datagate/internal/logging"
	"github.com/sensorlab/datagate/internal/middleware"
	"github.com/sensorlab/datagate/internal/tsdb"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", api.Version).
		Str("tsdb_url", cfg.TSDB.URL).
		Msg("Starting Datagate")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening permissions store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close permissions store")
		}
	}()

	var upstream tsdb.Client = tsdb.NewHTTPClient(&cfg.TSDB)
	if cfg.TSDB.BreakerEnabled {
		upstream = tsdb.NewBreakerClient(upstream, &cfg.TSDB)
		logging.Info().
			Uint32("max_failures", cfg.TSDB.BreakerMaxFailures).
			Dur("timeout", cfg.TSDB.BreakerTimeout).
			Msg("Upstream circuit breaker enabled")
	}

	resolver := access.NewResolver(db, access.WithBypassGroup(cfg.Auth.BypassGroup))
	provider := idp.NewJWTProvider(&cfg.Auth)
	limiter := idp.NewLoginLimiter(&cfg.Auth)
	groupAdmin := idp.NewMemoryAdmin()
	authn := middleware.NewAuthenticator(provider, db).WithLimiter(limiter).Middleware

	srv, err := api.NewServer(cfg, db, resolver, upstream, groupAdmin, authn)
	if err != nil {
		return fmt.Errorf("building API server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
