// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package metrics defines the Prometheus instrumentation for the server:
// WebSocket fan-out, position updates, rate limiting, and upstream
// now-playing lookups.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket Metrics
	WSConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Total number of WebSocket broadcast messages by type",
		},
		[]string{"type"},
	)

	WSDroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_dropped_messages_total",
			Help: "Total number of messages dropped due to full send buffers",
		},
		[]string{"type"},
	)

	// Presence and Position Metrics
	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_active_users",
			Help: "Current number of active users in the presence registry",
		},
	)

	PositionUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gps_position_updates_total",
			Help: "Total number of accepted GPS position updates",
		},
	)

	PositionRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gps_position_rejected_total",
			Help: "Total number of rejected GPS position updates",
		},
		[]string{"reason"}, // "validation", "identity_mismatch"
	)

	// Track Lookup Metrics
	TrackLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "track_lookups_total",
			Help: "Total number of now-playing lookups by outcome",
		},
		[]string{"outcome"}, // "ok", "no_track", "rate_limited", "not_active", "upstream_error"
	)

	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spotify_request_duration_seconds",
			Help:    "Duration of Spotify API requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "track_rate_limit_rejections_total",
			Help: "Total number of track lookups rejected by the per-user rate limiter",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
