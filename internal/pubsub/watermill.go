package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus implements Publisher and Subscriber on top of watermill's in-memory
// GoChannel transport. The whole system is single-process, so an in-memory
// bus is all the realtime path needs.
type Bus struct {
	pub message.Publisher
	sub message.Subscriber
}

// NewBus initializes the in-process pub/sub bus.
func NewBus() *Bus {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, logger)

	return &Bus{
		pub: goChannel,
		sub: goChannel,
	}
}

// Publish implements the Publisher interface.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	return b.pub.Publish(msg.Topic, wmMsg)
}

// Subscribe implements the Subscriber interface. The handler runs on a single
// goroutine per subscription, so messages on one topic are processed in order
// and one at a time.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := Message{
				Topic:    topic,
				Payload:  wmMsg.Payload,
				Metadata: map[string]string(wmMsg.Metadata),
			}

			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle message", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
				wmMsg.Nack()
			} else {
				wmMsg.Ack()
			}
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts down the bus and ends every subscription loop.
func (b *Bus) Close() error {
	return b.sub.Close()
}
