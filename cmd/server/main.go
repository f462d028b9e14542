// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package main is the entry point for the Nuntius server.
//
// Nuntius is a self-hosted realtime messaging relay: clients connect over a
// websocket, announce an identity, and exchange one-to-one messages and
// follow events. Presence is tracked per identity with last-join-wins
// semantics, and messages to offline recipients fall back to a push
// notification provider.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, config file, and NUNTIUS_* env vars (Koanf v2)
//  2. Object store: BadgerDB for profiles, messages, and follow edges
//  3. Provisioning: reconcile denormalized follow counters against edges
//  4. Presence directory and relays: message fan-out and social graph
//  5. Websocket hub: client lifecycle management
//  6. HTTP server: REST API, websocket upgrade, health, and metrics
//
// All long-running components run under a Suture supervisor tree with
// per-layer failure isolation.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): NUNTIUS_* environment variables, then a config file
// (config.yaml, or the path in CONFIG_PATH), then built-in defaults.
//
// Common settings:
//
//	NUNTIUS_SERVER_PORT=8585
//	NUNTIUS_STORE_PATH=/data/nuntius
//	NUNTIUS_PUSH_ENABLED=true
//	NUNTIUS_PUSH_URL=https://push.example.com/send
//	NUNTIUS_LOGGING_LEVEL=debug
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the HTTP
// listener stops accepting connections, in-flight requests drain within the
// shutdown timeout, the hub closes every websocket client, and the store is
// closed last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/nuntius/internal/api"
	"github.com/tomtom215/nuntius/internal/cache"
	"github.com/tomtom215/nuntius/internal/config"
	"github.com/tomtom215/nuntius/internal/logging"
	"github.com/tomtom215/nuntius/internal/notify"
	"github.com/tomtom215/nuntius/internal/presence"
	"github.com/tomtom215/nuntius/internal/provision"
	"github.com/tomtom215/nuntius/internal/relay"
	"github.com/tomtom215/nuntius/internal/store"
	"github.com/tomtom215/nuntius/internal/supervisor"
	"github.com/tomtom215/nuntius/internal/supervisor/services"
	"github.com/tomtom215/nuntius/internal/ws"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Bool("push_enabled", cfg.Push.Enabled).
		Msg("Starting Nuntius")

	st, err := openStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open object store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing object store")
		}
	}()

	// Repair any follow counters that drifted from the edge records before
	// serving traffic.
	stats, err := provision.Reconcile(context.Background(), st)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to reconcile store")
	}
	if stats.ProfilesFixed > 0 {
		logging.Warn().Int("fixed", stats.ProfilesFixed).Msg("Repaired drifted profiles at startup")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	dir := presence.NewDirectory()
	notifier := buildNotifier(cfg)

	messages := relay.NewMessageRelay(st, dir, notifier)
	messages.SetMaxTextRunes(cfg.Relay.MaxTextRunes)
	social := relay.NewSocialRelay(st, dir)

	hub := ws.NewHub(dir, st, messages, social)

	c := cache.New(cfg.Relay.CacheTTL)
	handler := api.NewHandler(cfg, st, c, dir, hub, social)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if !cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(st, cfg.Store.GCInterval))
	}
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel; it closes when the supervisor has stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}

// openStore opens the configured object store.
func openStore(cfg *config.Config) (*store.BadgerStore, error) {
	if cfg.Store.InMemory {
		return store.OpenBadgerInMemory()
	}
	return store.OpenBadger(cfg.Store.Path)
}

// buildNotifier builds the push notifier, or nil when push delivery is
// disabled (the message relay treats nil as a no-op notifier).
func buildNotifier(cfg *config.Config) notify.Notifier {
	if !cfg.Push.Enabled {
		logging.Info().Msg("Push delivery disabled - offline recipients will not be notified")
		return nil
	}

	logging.Info().Str("url", cfg.Push.URL).Msg("Push delivery enabled")
	return notify.NewHTTPNotifier(notify.HTTPConfig{
		URL:                     cfg.Push.URL,
		APIKey:                  cfg.Push.APIKey,
		Timeout:                 cfg.Push.Timeout,
		BreakerFailureThreshold: cfg.Push.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.Push.BreakerOpenTimeout,
	})
}
