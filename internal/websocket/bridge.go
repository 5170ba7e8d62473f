package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mastergamma8/Testmsg/internal/pubsub"
)

// outboundFrame is a frame headed for clients. An empty recipient means
// broadcast to every connection.
type outboundFrame struct {
	recipient string
	payload   []byte
}

// Bridge manages all WebSocket connections and routes frames between
// connected clients and the pub/sub bus. Inbound frames become
// TopicEventInbound messages; TopicEventDirect and TopicEventBroadcast
// messages become frames written to sockets. The bridge knows nothing about
// event semantics; that is the chat router's job.
type Bridge struct {
	publisher pubsub.Publisher
	logger    *slog.Logger

	// clients is keyed by connection id. Only the Run goroutine touches it.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	outbound   chan outboundFrame

	// closeOnce guards the shutdown path.
	closeOnce sync.Once
	done      chan struct{}
}

// NewBridge initializes a new Bridge, ready to handle connections.
func NewBridge(pub pubsub.Publisher) *Bridge {
	return &Bridge{
		publisher:  pub,
		logger:     slog.Default().With("component", "ws-bridge"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan outboundFrame, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the main bridge loop for client lifecycle and frame routing.
// It must run in its own goroutine.
func (b *Bridge) Run() {
	b.logger.Info("WebSocket bridge runner started")
	for {
		select {
		case client := <-b.register:
			b.clients[client.ID] = client
			b.logger.Info("Client registered", "connectionID", client.ID, "total", len(b.clients))

		case client := <-b.unregister:
			if current, ok := b.clients[client.ID]; ok && current == client {
				delete(b.clients, client.ID)
				close(client.send)
				b.logger.Info("Client unregistered", "connectionID", client.ID, "total", len(b.clients))
			}

		case frame := <-b.outbound:
			if frame.recipient == "" {
				for _, client := range b.clients {
					b.push(client, frame.payload)
				}
				continue
			}
			// Delivery to a connection that is gone is a silent no-op; there
			// is no queuing and no offline mailbox.
			if client, ok := b.clients[frame.recipient]; ok {
				b.push(client, frame.payload)
			}

		case <-b.done:
			return
		}
	}
}

// push writes without blocking. A full send buffer means the client is
// lagging or dead, so the frame is dropped.
func (b *Bridge) push(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		b.logger.Warn("Client send channel full, dropping frame", "connectionID", client.ID)
	}
}

// Subscribe wires the bridge's outbound topics to the bus. Must be called
// before clients connect.
func (b *Bridge) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	if err := sub.Subscribe(ctx, TopicEventDirect, func(ctx context.Context, msg pubsub.Message) error {
		b.outbound <- outboundFrame{recipient: msg.Metadata[MetaRecipientID], payload: msg.Payload}
		return nil
	}); err != nil {
		return err
	}
	return sub.Subscribe(ctx, TopicEventBroadcast, func(ctx context.Context, msg pubsub.Message) error {
		b.outbound <- outboundFrame{payload: msg.Payload}
		return nil
	})
}

// Handler returns an echo.HandlerFunc that upgrades the request to a
// WebSocket connection. The connection carries no identity yet; the client
// introduces itself with a join event on the wire.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			b.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		client := &Client{
			ID:     uuid.NewString(),
			conn:   conn,
			send:   make(chan []byte, 256),
			bridge: b,
		}
		b.register <- client

		go client.writePump()
		go client.readPump()

		return nil
	}
}

// Shutdown stops the Run loop.
func (b *Bridge) Shutdown() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Bridge) publishInbound(connectionID string, frame []byte) {
	msg := pubsub.Message{
		Topic:    TopicEventInbound,
		Payload:  frame,
		Metadata: map[string]string{MetaConnectionID: connectionID},
	}
	if err := b.publisher.Publish(context.Background(), msg); err != nil {
		b.logger.Error("Failed to publish inbound frame", "connectionID", connectionID, "error", err)
	}
}

func (b *Bridge) publishDisconnected(connectionID string) {
	msg := pubsub.Message{
		Topic:    TopicClientDisconnected,
		Metadata: map[string]string{MetaConnectionID: connectionID},
	}
	if err := b.publisher.Publish(context.Background(), msg); err != nil {
		b.logger.Error("Failed to publish disconnect event", "connectionID", connectionID, "error", err)
	}
}
