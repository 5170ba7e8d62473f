package websocket

import (
	"context"
	"io"
	"time"

	"github.com/coder/websocket"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// Client represents a single connected WebSocket client. The connection id
// is the presence handle: the chat layer never sees the socket itself, only
// this opaque id.
type Client struct {
	// ID is the unique identifier for this connection.
	ID string
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn
	// send is a buffered channel of outbound frames for this connection.
	send chan []byte
	// bridge is a reference back to the bridge that manages this client.
	bridge *Bridge
}

// readPump reads frames from the WebSocket connection and hands them to the
// bridge until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.bridge.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "Client disconnected")
		c.bridge.publishDisconnected(c.ID)
	}()

	for {
		// The coder/websocket library manages keep-alives; a read fails when
		// the connection is dead.
		_, frame, err := c.conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				c.bridge.logger.Info("WebSocket closed normally by client", "connectionID", c.ID)
			} else if err != io.EOF {
				c.bridge.logger.Debug("WebSocket read error", "connectionID", c.ID, "error", err)
			}
			break
		}
		c.bridge.publishInbound(c.ID, frame)
	}
}

// writePump pumps frames from the client's send channel to the WebSocket
// connection.
func (c *Client) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "Server-side cleanup")

	for frame := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			c.bridge.logger.Debug("WebSocket write error", "connectionID", c.ID, "error", err)
			return
		}
	}
}
