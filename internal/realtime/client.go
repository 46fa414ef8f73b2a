package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 30 * time.Second

	// Clients only send keepalive pings
	maxMessageSize = 512
)

// Client is a single websocket connection of a user
type Client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	log    *slog.Logger
}

func NewClient(userID uuid.UUID, conn *websocket.Conn, hub *Hub, log *slog.Logger) *Client {
	conn.SetReadLimit(maxMessageSize)
	return &Client{
		userID: userID,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, 64),
		log:    log,
	}
}

// readPump runs until the peer disconnects or ctx ends. It answers
// application-level pings and otherwise only detects disconnects.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				c.log.Debug("client disconnected", "user_id", c.userID)
			} else {
				c.log.Warn("websocket read error",
					"user_id", c.userID,
					"error", err)
			}
			return
		}

		var msg clientMessage
		if json.Unmarshal(data, &msg) != nil || msg.Type != "ping" {
			continue
		}
		// conn writes are safe alongside writePump; send is owned by the hub
		frame, _ := NewEvent(TypePong, nil).ToJSON()
		writeCtx, cancel := context.WithTimeout(ctx, writeWait)
		err = c.conn.Write(writeCtx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel into the connection and keeps it alive
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()

			if err != nil {
				c.log.Warn("failed to write frame",
					"user_id", c.userID,
					"error", err)
				return
			}

		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(writeCtx)
			cancel()

			if err != nil {
				c.log.Debug("ping failed",
					"user_id", c.userID,
					"error", err)
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
