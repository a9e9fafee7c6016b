// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package hub

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/geo"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/presence"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/tracks"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/validation"
)

// lookupTimeout bounds a single now-playing lookup spawned off a
// find_tracks frame.
const lookupTimeout = 15 * time.Second

// PresenceView is the slice of the presence registry the hub needs.
type PresenceView interface {
	List() []presence.Profile
	Touch(userID string, now time.Time)
	Remove(userID string) bool
}

// TrackLookup resolves what a user is currently playing.
type TrackLookup interface {
	Lookup(ctx context.Context, userID string) (*tracks.NowPlaying, error)
}

// Deps are the collaborators the hub dispatches inbound frames to.
type Deps struct {
	Presence  PresenceView
	Positions *geo.Store
	Tracks    TrackLookup

	// Clock is overridable in tests; defaults to time.Now.
	Clock func() time.Time
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// GPSEvent is the inbound position report from a dashboard client.
//
// Latitude and Longitude are pointers so an absent field is
// distinguishable from a real 0.0 coordinate; a frame missing either is
// dropped instead of being stored as (0,0).
//
// Timestamp is accepted as either a JSON string or number; clients have
// historically sent both, so it is normalized to a string before storage.
type GPSEvent struct {
	UserID    string      `json:"user_id" validate:"required"`
	Latitude  *float64    `json:"latitude" validate:"required,latitude"`
	Longitude *float64    `json:"longitude" validate:"required,longitude"`
	Timestamp interface{} `json:"timestamp" validate:"required"`
}

// trackRequest is the inbound find_tracks payload.
type trackRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// DistanceUpdate pairs a user with their distances to everyone else.
type DistanceUpdate struct {
	UserID    string             `json:"user_id"`
	Distances map[string]float64 `json:"distances"`
}

// RateLimitNotice tells one requester their lookup budget is exhausted.
type RateLimitNotice struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// TrackErrorNotice tells one requester why their lookup failed.
type TrackErrorNotice struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// HandlePosition processes a gps_data frame from client.
//
// Invalid payloads and reports for a user other than the connection's
// authenticated identity are dropped without a reply. On success the
// full position table and the reporter's distance set go out to everyone.
func (h *Hub) HandlePosition(client *Client, raw json.RawMessage) {
	var event GPSEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		h.dropPosition(client, "validation", err)
		return
	}
	if err := validation.ValidateStruct(&event); err != nil {
		h.dropPosition(client, "validation", err)
		return
	}

	timestamp := normalizeTimestamp(event.Timestamp)
	if timestamp == "" {
		h.dropPosition(client, "validation", errors.New("unusable timestamp"))
		return
	}

	if event.UserID != client.identity {
		h.dropPosition(client, "identity_mismatch", nil)
		return
	}

	if err := h.deps.Positions.Upsert(event.UserID, *event.Latitude, *event.Longitude, timestamp); err != nil {
		h.dropPosition(client, "validation", err)
		return
	}

	metrics.PositionUpdates.Inc()
	h.deps.Presence.Touch(event.UserID, h.deps.now())

	h.Broadcast(MessageTypeGPS, h.deps.Positions.All())

	distances, err := h.deps.Positions.DistancesFrom(event.UserID)
	if err != nil {
		// The sample was just stored; losing it here means a concurrent
		// removal won the race. Nothing to broadcast.
		logging.Debug().Err(err).Str("user_id", event.UserID).Msg("distance set unavailable after upsert")
		return
	}
	h.Broadcast(MessageTypeDistances, DistanceUpdate{
		UserID:    event.UserID,
		Distances: distances,
	})
}

func (h *Hub) dropPosition(client *Client, reason string, err error) {
	metrics.PositionRejected.WithLabelValues(reason).Inc()
	logging.Debug().
		Err(err).
		Str("user_id", client.identity).
		Str("reason", reason).
		Msg("dropped position report")
}

// HandleTrackRequest processes a find_tracks frame. The upstream lookup
// runs in its own goroutine so a slow Spotify response never blocks the
// client's read loop.
//
// Results fan out to everyone; rate-limit notices and lookup errors go
// only to the requesting connection.
func (h *Hub) HandleTrackRequest(client *Client, raw json.RawMessage) {
	var req trackRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		metrics.WSDroppedMessages.WithLabelValues("bad_track_request").Inc()
		logging.Debug().Err(err).Str("user_id", client.identity).Msg("dropped malformed track request")
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		metrics.WSDroppedMessages.WithLabelValues("bad_track_request").Inc()
		logging.Debug().Err(err).Str("user_id", client.identity).Msg("dropped malformed track request")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()

		nowPlaying, err := h.deps.Tracks.Lookup(ctx, req.UserID)
		switch {
		case errors.Is(err, tracks.ErrRateLimited):
			h.sendTo(client, Message{
				Type: MessageTypeRateLimited,
				Data: RateLimitNotice{
					UserID:  req.UserID,
					Message: "track lookups are rate limited, try again shortly",
				},
			})
		case errors.Is(err, tracks.ErrUserNotActive):
			h.sendTo(client, Message{
				Type: MessageTypeTrackError,
				Data: TrackErrorNotice{UserID: req.UserID, Error: "user is not active"},
			})
		case err != nil:
			h.sendTo(client, Message{
				Type: MessageTypeTrackError,
				Data: TrackErrorNotice{UserID: req.UserID, Error: "track lookup failed"},
			})
		default:
			h.Broadcast(MessageTypeTrackInfo, nowPlaying)
		}
	}()
}

// SendPositions replies to a send_gps frame with the full position table,
// to the requesting client only. New connections use it to catch up
// without waiting for the next position report.
func (h *Hub) SendPositions(client *Client) {
	h.sendTo(client, Message{
		Type: MessageTypeGPS,
		Data: h.deps.Positions.All(),
	})
}

// BroadcastRoster pushes the current active-user roster to all clients.
// Called after every login, logout, and sweep.
func (h *Hub) BroadcastRoster() {
	h.Broadcast(MessageTypeActiveUsers, h.deps.Presence.List())
}

// SendRoster sends the current roster to one client, used to catch a
// fresh connection up without a global broadcast.
func (h *Hub) SendRoster(client *Client) {
	h.sendTo(client, Message{
		Type: MessageTypeActiveUsers,
		Data: h.deps.Presence.List(),
	})
}

// normalizeTimestamp renders the client-supplied timestamp as a string.
// Returns "" for types that cannot carry a timestamp.
func normalizeTimestamp(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
