// Sonic Sync - Real-Time Presence, Location, and Now-Playing Dashboard
// Copyright 2026 Markus Hoehn (MarkusHoehnDev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/MarkusHoehnDev/sonic-sync-server

package hub

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/MarkusHoehnDev/sonic-sync-server/internal/logging"
	"github.com/MarkusHoehnDev/sonic-sync-server/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, frames are small JSON envelopes
)

// clientIDCounter hands out monotonically increasing IDs so broadcast
// order over the client set is stable within a process run.
var clientIDCounter atomic.Uint64

// inboundFrame is the wire shape of every client-to-server message. Data
// stays raw until the type-specific handler decodes it.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client is the middleman between one websocket connection and the hub.
// identity is the authenticated user bound to the connection at upgrade
// time; inbound frames claiming another user are dropped.
type Client struct {
	id       uint64
	identity string
	hub      *Hub
	conn     *websocket.Conn
	send     chan Message
}

// NewClient creates a client for an upgraded connection bound to the
// given authenticated identity.
func NewClient(h *Hub, conn *websocket.Conn, identity string) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan Message, 256),
	}
}

// ID returns the client's unique ordering identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Identity returns the authenticated user bound to this connection.
func (c *Client) Identity() string {
	return c.identity
}

// readPump pumps frames from the websocket connection into the hub's
// handlers. Exits on any read error, unregistering the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("user_id", c.identity).Msg("unexpected websocket close error")
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			metrics.WSDroppedMessages.WithLabelValues("malformed_frame").Inc()
			logging.Debug().Err(err).Str("user_id", c.identity).Msg("dropped unparseable frame")
			continue
		}

		switch frame.Type {
		case MessageTypePing:
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		case MessageTypeGPSData:
			c.hub.HandlePosition(c, frame.Data)
		case MessageTypeFindTracks:
			c.hub.HandleTrackRequest(c, frame.Data)
		case MessageTypeSendGPS:
			c.hub.SendPositions(c)
		default:
			metrics.WSDroppedMessages.WithLabelValues("unknown_type").Inc()
			logging.Debug().
				Str("user_id", c.identity).
				Str("message_type", frame.Type).
				Msg("dropped frame with unknown type")
		}
	}
}

// writePump pumps hub messages out to the websocket connection and keeps
// the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
