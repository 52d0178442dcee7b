package game

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 256
)

// Input is a decoded frame from a player: {"action":"ready"} during the
// readiness phase, {"action":"move","direction":"up"|"down"} in game.
type Input struct {
	Action    string `json:"action"`
	Direction string `json:"direction,omitempty"`
}

// Client is one player's websocket connection to a session. The session
// loop writes into Send and never touches Conn; the two pumps are the
// only goroutines using the connection.
type Client struct {
	Conn     *websocket.Conn
	Send     chan []byte
	Username string

	side Side // assigned by the session loop on join
}

func NewClient(conn *websocket.Conn, username string) *Client {
	return &Client{
		Conn:     conn,
		Send:     make(chan []byte, sendBufferSize),
		Username: username,
	}
}

// ReadPump decodes inbound frames and feeds them to the session. It owns
// the read side of the connection and unregisters the client on exit.
func (c *Client) ReadPump(session *Session, logger *slog.Logger) {
	defer func() {
		session.Leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", slog.String("username", c.Username), slog.Any("error", err))
			}
			return
		}
		var input Input
		if err := json.Unmarshal(message, &input); err != nil {
			continue // malformed frames are ignored
		}
		session.HandleInput(c, input)
	}
}

// WritePump drains Send onto the connection and keeps the peer alive with
// pings. A closed Send channel ends the connection with a close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message: the client parses each frame as a
			// standalone JSON document.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
