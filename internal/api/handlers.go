// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package api provides the HTTP surface: REST endpoints for the roster
// and position table, health probes, and the websocket upgrade that
// feeds the realtime hub.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/config"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/geo"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/hub"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/presence"
)

// Handler implements the REST and websocket endpoints.
type Handler struct {
	config    *config.Config
	presence  *presence.Registry
	positions *geo.Store
	hub       *hub.Hub
}

// NewHandler creates the API handler.
func NewHandler(cfg *config.Config, registry *presence.Registry, positions *geo.Store, h *hub.Hub) *Handler {
	return &Handler{
		config:    cfg,
		presence:  registry,
		positions: positions,
		hub:       h,
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
// Browser WebSockets always send Origin; an empty header means a
// non-browser client trying to sidestep CORS, so it is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	// Nil config means a test harness; fail open.
	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
