// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package api

import (
	"net/http"
	"time"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/auth"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/hub"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/models"
)

// Users returns the roster of active users. Credentials never appear in
// the payload; presence.Profile carries public fields only.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	roster := h.presence.List()
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   roster,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
			Count:     len(roster),
		},
	})
}

// Positions returns the latest known position of every tracked user.
func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	table := h.positions.All()
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   table,
		Metadata: models.Metadata{
			Timestamp: time.Now(),
			Count:     len(table),
		},
	})
}

// WebSocket upgrades the connection and hands it to the hub, bound to
// the session's authenticated identity. A fresh connection immediately
// receives the current roster and position table.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logging.Err(err).Str("user_id", identity).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(h.hub, conn, identity)
	h.hub.Register <- client
	client.Start()

	h.hub.SendRoster(client)
	h.hub.SendPositions(client)
}
