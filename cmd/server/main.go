// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Command server runs the Sonic Sync dashboard server: session-backed
// login, the realtime websocket hub, GPS position tracking with pairwise
// distances, and rate-limited Spotify now-playing lookups.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/api"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/auth"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/geo"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/hub"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/presence"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/ratelimit"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/spotify"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/supervisor"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/supervisor/services"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/tracks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	registry := presence.NewRegistry()
	positions := geo.NewStore()

	limiter := ratelimit.NewLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	defer limiter.Stop()

	nowPlaying := spotify.NewBreakerClient(spotify.NewClient(cfg.Spotify))
	lookupProxy := tracks.NewProxy(registry, limiter, nowPlaying)

	h := hub.NewHub(hub.Deps{
		Presence:  registry,
		Positions: positions,
		Tracks:    lookupProxy,
	})

	sessions := auth.NewManager(cfg.Security)
	authHandlers := auth.NewHandlers(cfg.Auth, cfg.Spotify, sessions, registry, positions, h)
	handler := api.NewHandler(cfg, registry, positions, h)
	router := api.NewRouter(cfg, handler, authHandlers, sessions)

	// No global write timeout: websocket connections are long-lived and
	// manage their own deadlines in the client pumps.
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddMessagingService(services.NewWebSocketHubService(h))
	if cfg.Presence.SweepEnabled {
		tree.AddMessagingService(services.NewSweeperService(
			registry, positions, h,
			cfg.Presence.SweepInterval, cfg.Presence.MaxIdle,
		))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("sweeper", cfg.Presence.SweepEnabled).
		Msg("sonic sync server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("supervisor tree failed")
	}
	logging.Info().Msg("server stopped")
}
