// B24Sync - Bitrix24 Personal Account Synchronization Bridge
// Copyright 2026 D. Kurguzov (dkurguzov)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dkurguzov/b24sync

// Package main is the entry point for the b24sync server.
//
// B24Sync receives Bitrix24 CRM webhook events, re-fetches the affected
// entity over the CRM REST API and mirrors it into a local personal
// account dataset (JSON collections on disk). A small dashboard API,
// WebSocket feed and Prometheus metrics sit alongside the webhook
// endpoint.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered load (env > config.yaml > defaults)
//  2. Logging: zerolog, optionally duplicated to a rotating file
//  3. Store: JSON collection store under storage.data_dir
//  4. Journal: optional BadgerDB delivery journal
//  5. CRM client: rate-limited REST client behind a circuit breaker
//  6. Supervisor tree: HTTP server, WebSocket hub, journal GC
//
// # Configuration
//
// Highest priority wins:
//   - Environment variables (BITRIX_WEBHOOK_BASE_URL, HTTP_PORT, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Required settings:
//   - BITRIX_WEBHOOK_BASE_URL: inbound-webhook REST base including the
//     secret path segment
//
// For JWT dashboard authentication (security.auth_mode=jwt):
//   - JWT_SECRET: 32+ character signing secret
//   - ADMIN_USERNAME / ADMIN_PASSWORD
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server stops
// accepting connections, in-flight webhook deliveries finish (bounded by
// the supervisor's shutdown timeout), then the journal and store close.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkurguzov/b24sync/internal/api"
	"github.com/dkurguzov/b24sync/internal/auth"
	"github.com/dkurguzov/b24sync/internal/bitrix"
	"github.com/dkurguzov/b24sync/internal/config"
	"github.com/dkurguzov/b24sync/internal/dispatcher"
	"github.com/dkurguzov/b24sync/internal/journal"
	"github.com/dkurguzov/b24sync/internal/logging"
	"github.com/dkurguzov/b24sync/internal/mapper"
	"github.com/dkurguzov/b24sync/internal/store"
	"github.com/dkurguzov/b24sync/internal/supervisor"
	"github.com/dkurguzov/b24sync/internal/supervisor/services"
	ws "github.com/dkurguzov/b24sync/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config not available yet; use the default logger.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})

	logging.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("journal", cfg.Journal.Enabled).
		Msg("Configuration loaded")

	st, err := store.New(&cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize store")
	}

	j, err := journal.Open(&cfg.Journal)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open delivery journal")
	}
	defer func() {
		if err := j.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing journal")
		}
	}()

	crm := bitrix.NewBreakerClient(&cfg.Bitrix)
	if err := crm.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Bitrix24 API unreachable at startup (will serve anyway)")
	} else {
		logging.Info().Msg("Connected to Bitrix24 API")
	}

	hub := ws.NewHub()
	d := dispatcher.New(crm, st, mapper.New(&cfg.FieldMap), cfg)

	am, err := auth.New(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authentication")
	}
	if cfg.Security.AuthMode == "none" {
		logging.Warn().Msg("Dashboard authentication is DISABLED (security.auth_mode=none); use only on isolated networks")
	}

	server := api.New(cfg, st, d, j, hub, am, crm)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(httpServer, supervisor.DefaultTreeConfig().ShutdownTimeout))
	if j != nil {
		tree.AddDataService(j)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", httpServer.Addr).Msg("b24sync started")

	// Seed the manager directory once at startup; webhook traffic never
	// updates it, so a failure here only means an empty managers list
	// until the next POST /api/v1/managers/sync.
	seedCtx, seedCancel := context.WithTimeout(ctx, 30*time.Second)
	if count, err := d.SyncManagers(seedCtx); err != nil {
		logging.Warn().Err(err).Msg("Initial manager directory sync failed")
	} else {
		logging.Info().Int("managers", count).Msg("Manager directory synced")
	}
	seedCancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor tree failed")
		}
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", fmt.Sprint(svc.Service)).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("b24sync stopped")
}
