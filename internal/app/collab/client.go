/*
This file defines the Client struct, representing an active WebSocket connection.
It manages the client's lifecycle, message communication loops (ReadPump and
WritePump), and hands inbound events to the Controller.
*/
package collab

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ArchSirius/log3900-server/internal/app/user"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 65536

	// maximum allowed size (in bytes) for chat message content.
	MaxContentBytes = 5000
)

// envelope is the wire frame exchanged with clients. Every inbound and
// outbound message is an event name plus an event-specific payload.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client struct represents an active WebSocket connection and its associated user.
type Client struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// the controller inbound events are dispatched to.
	ctrl *Controller

	// associated connected user identity.
	user user.Ref

	// a buffered channel used to queue messages waiting to be sent to the client.
	send chan []byte

	// whether this handle receives chat traffic. Toggled by init:chat.
	chatEnabled atomic.Bool

	// wall-clock instant the handle's current simulation started, zero when idle.
	simulationStart time.Time

	// structured logger with client context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client instance. Chat delivery is
// enabled until the handle opts out.
func NewClient(ctrl *Controller, wsConn *websocket.Conn, u user.Ref) *Client {
	clientLogger := logx.Logger().With().
		Str("client_id", u.ID).
		Str("username", u.Username).
		Logger()

	client := &Client{
		conn:   wsConn,
		ctrl:   ctrl,
		user:   u,
		send:   make(chan []byte, 256),
		logger: clientLogger,
	}
	client.chatEnabled.Store(true)

	return client
}

// User returns the connected user's identity.
func (c *Client) User() user.Ref {
	return c.user
}

// ChatEnabled reports whether this handle receives chat traffic.
func (c *Client) ChatEnabled() bool {
	return c.chatEnabled.Load()
}

// SetChatEnabled toggles chat delivery for this handle.
func (c *Client) SetChatEnabled(enabled bool) {
	c.chatEnabled.Store(enabled)
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), event parsing, and performs cleanup upon
// connection closure.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.processInboundMessage(messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's
// ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.ctrl.Disconnect(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Client connection close error")
	}
}

// processInboundMessage parses a raw frame and dispatches it to the Controller.
func (c *Client) processInboundMessage(messageBytes []byte) {
	var inbound struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(messageBytes, &inbound); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		return
	}

	if inbound.Event == "" {
		c.logger.Warn().Msg("Client sent frame without event name")
		return
	}

	c.ctrl.Dispatch(c, inbound.Event, inbound.Data)
}

// Send marshals an event envelope and queues it for delivery to this handle.
func (c *Client) Send(event string, data any) {
	raw, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error marshaling data for client")
		return
	}
	c.enqueue(raw)
}

// enqueue attempts a non-blocking push onto the send channel. Slow consumers
// drop the frame rather than stalling the broadcaster.
func (c *Client) enqueue(raw []byte) {
	select {
	case c.send <- raw:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
	}
}

// WritePump handles writing messages from the Client.send channel to the
// WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles messages pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
