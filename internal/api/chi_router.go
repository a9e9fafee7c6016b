// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/auth"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	cfg      *config.Config
	handler  *Handler
	auth     *auth.Handlers
	sessions *auth.Manager
}

// NewRouter creates a router over the given handlers.
func NewRouter(cfg *config.Config, handler *Handler, authHandlers *auth.Handlers, sessions *auth.Manager) *Router {
	return &Router{
		cfg:      cfg,
		handler:  handler,
		auth:     authHandlers,
		sessions: sessions,
	}
}

// Setup configures all routes and returns the root handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   router.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health endpoints get a permissive limit so monitoring can poll
	// frequently without opening an abuse vector.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.Limit(1000, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Auth endpoints carry a strict limit against brute forcing.
	r.Route("/auth", func(r chi.Router) {
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/login", router.auth.Login)
		r.Get("/callback", router.auth.Callback)
		r.Get("/spotify", router.auth.SpotifyLogin)
		r.Get("/spotify/callback", router.auth.SpotifyCallback)
		r.Get("/logout", router.auth.Logout)
	})

	// Data endpoints and the websocket upgrade require a session.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			router.cfg.RateLimit.HTTPRequests,
			router.cfg.RateLimit.HTTPWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.sessions.Require)

		r.Get("/users", router.handler.Users)
		r.Get("/positions", router.handler.Positions)
		r.Get("/ws", router.handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
