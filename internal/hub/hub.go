// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

// Package hub owns the realtime fan-out: every connected dashboard client
// registers here, and state changes (roster, positions, distances, track
// info) are pushed to all of them.
//
// Malformed or unauthorized inbound frames are dropped silently; the
// connection stays up and the drop is visible in logs and metrics only.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the shutdown deadline passed.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Outbound message types.
const (
	MessageTypeActiveUsers = "update_active_users"
	MessageTypeGPS         = "update_gps"
	MessageTypeDistances   = "update_distances"
	MessageTypeTrackInfo   = "track_info"
	MessageTypeTrackError  = "track_error"
	MessageTypeRateLimited = "rate_limited"
	MessageTypePong        = "pong"
)

// Inbound message types.
const (
	MessageTypePing       = "ping"
	MessageTypeGPSData    = "gps_data"
	MessageTypeFindTracks = "find_tracks"
	MessageTypeSendGPS    = "send_gps"
)

// Message is a typed envelope sent to websocket clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of connected clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	deps Deps
}

// NewHub creates a hub over the given collaborators.
func NewHub(deps Deps) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		deps:       deps,
	}
}

// Run starts the hub event loop and blocks forever.
//
// Deprecated: Use RunWithContext for supervised operation.
func (h *Hub) Run() {
	for {
		// Lifecycle events first so client state is settled before any
		// broadcast touches it. A plain select picks randomly between
		// ready channels; the non-blocking pre-check makes the order
		// deterministic.
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// RunWithContext runs the hub event loop until ctx is canceled, then
// closes every client and returns ctx.Err(). Designed for suture
// supervision: a restart never leaves orphaned connections behind.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown has the highest priority, then lifecycle, then
		// broadcasts, checked non-blocking in that order.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().
		Str("user_id", client.identity).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	lastConnection := true
	for c := range h.clients {
		if c.identity == client.identity {
			lastConnection = false
			break
		}
	}
	h.mu.Unlock()

	metrics.WSConnectedClients.Set(float64(total))
	logging.Info().
		Str("user_id", client.identity).
		Int("total_clients", total).
		Msg("websocket client disconnected")

	// The identity's last connection going away is the user leaving:
	// evict their presence entry and position sample, then push the
	// updated roster to everyone left. A user who already logged out is
	// no longer in the registry, so nothing is broadcast twice.
	if lastConnection {
		h.deps.Positions.Remove(client.identity)
		if h.deps.Presence.Remove(client.identity) {
			h.BroadcastRoster()
		}
	}
}

// logGracefulShutdown closes all clients and logs the shutdown. Context
// cancellation is expected during graceful shutdown, so no error field.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// broadcastToClients sends a message to every connected client in ID
// order. The stable order keeps delivery reproducible in tests; clients
// with a full send buffer are dropped rather than allowed to stall the
// loop.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSDroppedMessages.WithLabelValues("slow_client").Inc()
	}
	if len(toRemove) > 0 {
		metrics.WSConnectedClients.Set(float64(len(h.clients)))
	}
}

// closeAllClients closes every connection in ID order during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnectedClients.Set(0)
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// Broadcast queues a typed message for delivery to all clients. If the
// broadcast buffer is full the message is dropped with a warning rather
// than blocking the caller.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
		metrics.WSBroadcasts.WithLabelValues(messageType).Inc()
	default:
		metrics.WSDroppedMessages.WithLabelValues("broadcast_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// sendTo queues a message for one client only, used for replies that
// should not reach the whole room (rate limit notices, lookup errors).
func (h *Hub) sendTo(client *Client, message Message) {
	select {
	case client.send <- message:
	default:
		metrics.WSDroppedMessages.WithLabelValues("slow_client").Inc()
		logging.Warn().
			Str("user_id", client.identity).
			Str("message_type", message.Type).
			Msg("client send buffer full, dropping direct message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
