package events

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client is a single WebSocket connection. Its household scope is a
// snapshot taken at connect time; agents reconnect after membership
// changes to pick up a new scope.
type Client struct {
	hub        *Hub
	conn       *ws.Conn
	send       chan []byte
	households map[int64]struct{}
}

// NewClient creates a Client watching the given households.
func NewClient(hub *Hub, conn *ws.Conn, householdIDs []int64) *Client {
	households := make(map[int64]struct{}, len(householdIDs))
	for _, id := range householdIDs {
		households[id] = struct{}{}
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		households: households,
	}
}

func (c *Client) watches(householdID int64) bool {
	_, ok := c.households[householdID]
	return ok
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump reads and discards incoming frames. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel onto the wire and pings periodically
// to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel — connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
