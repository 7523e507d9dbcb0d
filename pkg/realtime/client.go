package realtime

import (
	"time"

	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client bridges one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *log.Logger
	id     string
	userID uint
	send   chan Message
}

// NewClient wraps an upgraded connection. Start must be called to begin the
// pumps; the hub takes ownership of the connection from then on. Each client
// gets an opaque id so per-connection log lines can be correlated.
func NewClient(hub *Hub, conn *websocket.Conn, logger *log.Logger, userID uint) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		logger: logger,
		id:     utils.NewTokenGenerator().GenerateClientID(),
		userID: userID,
		send:   make(chan Message, 64),
	}
}

// ID returns the opaque per-connection identifier.
func (c *Client) ID() string {
	return c.id
}

// Start registers the client with the hub and begins reading and writing.
// A hub that has already shut down refuses the attach and closes the
// connection instead of blocking.
func (c *Client) Start() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump drains the connection. Clients only send pings; everything else
// is ignored. Its real job is detecting disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Debug("Unexpected websocket close")
			}
			return
		}
	}
}

// writePump forwards hub messages to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
