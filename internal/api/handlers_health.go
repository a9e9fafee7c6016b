// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package api

import (
	"net/http"
	"time"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/models"
)

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status           string `json:"status"`
	ActiveUsers      int    `json:"active_users"`
	TrackedPositions int    `json:"tracked_positions"`
	ConnectedClients int    `json:"connected_clients"`
}

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     map[string]string{"status": "alive"},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// HealthReady is the readiness probe. All state is in memory, so a live
// process is also a ready one; the probe exists for orchestration parity.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     map[string]string{"status": "ready"},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}

// Health reports overall status plus basic gauges.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: HealthStatus{
			Status:           "healthy",
			ActiveUsers:      h.presence.Count(),
			TrackedPositions: h.positions.Count(),
			ConnectedClients: h.hub.ClientCount(),
		},
		Metadata: models.Metadata{Timestamp: time.Now()},
	})
}
