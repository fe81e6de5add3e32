package realtime

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one websocket connection
type Client struct {
	ID   string
	Send chan []byte

	conn *websocket.Conn
	hub  *Hub
	log  logrus.FieldLogger
}

// NewClient creates a client for conn. Call Serve to start pumping.
func NewClient(conn *websocket.Conn, hub *Hub, id string) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, sendBuffer),
		conn: conn,
		hub:  hub,
		log:  hub.log.WithField("client_id", id),
	}
}

// Serve registers the client and runs both pumps. It returns once the read
// side has finished.
func (c *Client) Serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.stop:
		_ = c.conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("realtime connection closed")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			req = Request{Type: "invalid"}
		}

		select {
		case c.hub.requests <- request{client: c, req: req}:
		case <-c.hub.stop:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
