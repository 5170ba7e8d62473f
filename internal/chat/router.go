package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mastergamma8/Testmsg/internal/domain"
	"github.com/mastergamma8/Testmsg/internal/presence"
	"github.com/mastergamma8/Testmsg/internal/pubsub"
	ws "github.com/mastergamma8/Testmsg/internal/websocket"
)

// Router consumes inbound WebSocket events, mutates the message store and the
// presence registry, and fans resulting events out to delivery groups.
//
// Inbound handlers run sequentially on the subscription loop, so each one is
// an atomic step: no two read-modify-write sequences on the same unread set
// or presence entry interleave. Validation failures are dropped silently
// because the event stream has no response channel to report them on.
type Router struct {
	messages  domain.MessageRepository
	users     domain.UserRepository
	presence  *presence.Registry
	publisher pubsub.Publisher
	logger    *slog.Logger
}

// NewRouter wires the event router to its collaborators.
func NewRouter(messages domain.MessageRepository, users domain.UserRepository, reg *presence.Registry, pub pubsub.Publisher) *Router {
	return &Router{
		messages:  messages,
		users:     users,
		presence:  reg,
		publisher: pub,
		logger:    slog.Default().With("service", "chat-router"),
	}
}

// Subscribe attaches the router to the bus. Must be called once at startup,
// before the first client connects.
func (r *Router) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	if err := sub.Subscribe(ctx, ws.TopicEventInbound, r.handleInbound); err != nil {
		return err
	}
	return sub.Subscribe(ctx, ws.TopicClientDisconnected, r.handleDisconnected)
}

// handleInbound decodes the envelope and dispatches on the event name.
// Unknown events and malformed frames are dropped.
func (r *Router) handleInbound(ctx context.Context, msg pubsub.Message) error {
	conn := msg.Metadata[ws.MetaConnectionID]

	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		r.logger.Debug("dropping malformed frame", "connectionID", conn, "error", err)
		return nil
	}

	switch env.Event {
	case EventJoin:
		r.handleJoin(ctx, conn, env.Data)
	case EventSendMessage:
		r.handleSend(ctx, env.Data)
	case EventTyping:
		r.handleTyping(ctx, env.Data, EventDisplayTyping)
	case EventStopTyping:
		r.handleTyping(ctx, env.Data, EventHideTyping)
	case EventMarkReadRealtime:
		r.handleMarkRead(ctx, env.Data)
	default:
		r.logger.Debug("dropping unknown event", "event", env.Event, "connectionID", conn)
	}
	return nil
}

// handleJoin registers the connection as the identity's delivery handle and
// announces the online transition to everyone.
func (r *Router) handleJoin(ctx context.Context, conn string, data json.RawMessage) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Username == "" {
		r.logger.Debug("dropping join without username", "connectionID", conn)
		return
	}

	r.presence.Join(p.Username, conn)
	r.logger.Info("user joined", "username", p.Username, "connectionID", conn)

	broadcastAll(ctx, r.publisher, r.logger, EventUserStatusChange, StatusPayload{
		Username: p.Username,
		Status:   StatusOnline,
	})
}

// handleDisconnected removes the presence entry for a closed connection. A
// connection that never joined leaves no entry behind, so that case is a
// no-op. When an identity actually goes offline, its last-seen timestamp is
// persisted and broadcast.
func (r *Router) handleDisconnected(ctx context.Context, msg pubsub.Message) error {
	conn := msg.Metadata[ws.MetaConnectionID]

	identity, ok := r.presence.Leave(conn)
	if !ok {
		return nil
	}

	now := time.Now().UTC()
	if err := r.users.SetLastSeen(ctx, identity, now); err != nil {
		r.logger.Error("failed to persist last seen", "username", identity, "error", err)
	}
	r.logger.Info("user went offline", "username", identity)

	lastSeen := wireTime(now)
	broadcastAll(ctx, r.publisher, r.logger, EventUserStatusChange, StatusPayload{
		Username: identity,
		Status:   StatusOffline,
		LastSeen: &lastSeen,
	})
	return nil
}

// handleSend appends the message and delivers it to both endpoints' groups.
// The sender gets a copy too, so its own client updates. The receiver also
// gets a chat-list hint.
func (r *Router) handleSend(ctx context.Context, data json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		r.logger.Debug("dropping malformed send", "error", err)
		return
	}

	msg, err := r.messages.Append(ctx, p.Sender, p.Receiver, p.Text, p.RepliedTo)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			r.logger.Debug("dropping invalid send", "sender", p.Sender, "receiver", p.Receiver)
		} else {
			r.logger.Error("failed to append message", "error", err)
		}
		return
	}

	payload := messagePayload(ctx, r.messages, r.logger, msg)
	r.sendToUser(ctx, p.Sender, EventNewMessage, payload)
	r.sendToUser(ctx, p.Receiver, EventNewMessage, payload)
	r.sendToUser(ctx, p.Receiver, EventUpdateChatList, ChatListHintPayload{Partner: p.Sender})
}

// handleTyping forwards a typing indicator to the receiver's group. Nothing
// is stored.
func (r *Router) handleTyping(ctx context.Context, data json.RawMessage, event string) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	r.sendToUser(ctx, p.Receiver, event, TypingIndicatorPayload{Sender: p.Sender})
}

// handleMarkRead flips the reader's unread messages from the sender and
// notifies the sender's group.
func (r *Router) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var p MarkReadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	if _, err := r.messages.MarkRead(ctx, p.Sender, p.Reader); err != nil {
		r.logger.Error("failed to mark messages read", "sender", p.Sender, "reader", p.Reader, "error", err)
		return
	}
	r.sendToUser(ctx, p.Sender, EventMessagesRead, ReadReceiptPayload{Reader: p.Reader})
}

// sendToUser resolves the identity's delivery handle and emits the event.
// An offline identity has no handle; delivery is then a silent no-op.
func (r *Router) sendToUser(ctx context.Context, identity, event string, data any) {
	handle, ok := r.presence.HandleFor(identity)
	if !ok {
		return
	}
	sendDirect(ctx, r.publisher, r.logger, handle, event, data)
}
