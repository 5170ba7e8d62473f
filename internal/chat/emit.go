package chat

import (
	"context"
	"log/slog"

	"github.com/mastergamma8/Testmsg/internal/domain"
	"github.com/mastergamma8/Testmsg/internal/pubsub"
	ws "github.com/mastergamma8/Testmsg/internal/websocket"
)

// sendDirect delivers one event to a single connection handle. Emission is
// fire-and-forget: a publish failure is logged, never surfaced.
func sendDirect(ctx context.Context, pub pubsub.Publisher, logger *slog.Logger, handle, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	msg := pubsub.Message{
		Topic:    ws.TopicEventDirect,
		Payload:  payload,
		Metadata: map[string]string{ws.MetaRecipientID: handle},
	}
	if err := pub.Publish(ctx, msg); err != nil {
		logger.Error("failed to publish direct event", "event", event, "error", err)
	}
}

// broadcastAll delivers one event to every connected client, the presence
// delivery group.
func broadcastAll(ctx context.Context, pub pubsub.Publisher, logger *slog.Logger, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	msg := pubsub.Message{
		Topic:   ws.TopicEventBroadcast,
		Payload: payload,
	}
	if err := pub.Publish(ctx, msg); err != nil {
		logger.Error("failed to publish broadcast event", "event", event, "error", err)
	}
}

// messagePayload builds the wire form of a stored message, resolving reply
// metadata when it references an earlier message. A dangling reference
// yields no metadata rather than an error.
func messagePayload(ctx context.Context, messages domain.MessageRepository, logger *slog.Logger, msg domain.Message) MessagePayload {
	payload := MessagePayload{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Text:      msg.Text,
		IsRead:    msg.IsRead,
		Timestamp: wireTime(msg.Timestamp),
		RepliedTo: msg.RepliedTo,
	}
	if msg.RepliedTo != nil {
		meta, err := messages.ResolveReply(ctx, *msg.RepliedTo)
		if err != nil {
			logger.Error("failed to resolve reply", "id", *msg.RepliedTo, "error", err)
		} else if meta != nil {
			payload.RepliedText = &meta.Text
			payload.RepliedSender = &meta.Sender
		}
	}
	return payload
}
