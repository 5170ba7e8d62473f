package chat

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastergamma8/Testmsg/internal/pubsub"
	ws "github.com/mastergamma8/Testmsg/internal/websocket"
)

func TestRouter_JoinBroadcastsOnlineStatus(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	req.NoError(f.router.handleInbound(ctx, inbound(t, "conn-1", EventJoin, JoinPayload{Username: "alice"})))

	handle, ok := f.presence.HandleFor("alice")
	req.True(ok)
	req.Equal("conn-1", handle)

	statuses := f.publisher.byEvent(t, EventUserStatusChange)
	req.Len(statuses, 1)
	req.Equal(ws.TopicEventBroadcast, statuses[0].Topic)

	var p StatusPayload
	req.NoError(json.Unmarshal(decodeEnvelope(t, statuses[0].Payload).Data, &p))
	req.Equal("alice", p.Username)
	req.Equal(StatusOnline, p.Status)
	req.Nil(p.LastSeen)
}

func TestRouter_JoinWithoutUsernameIsDropped(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	req.NoError(f.router.handleInbound(context.Background(), inbound(t, "conn-1", EventJoin, JoinPayload{})))

	req.Empty(f.presence.Online())
	req.Empty(f.publisher.all())
}

func TestRouter_SendDeliversToBothEndpoints(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	f.presence.Join("alice", "conn-a")
	f.presence.Join("bob", "conn-b")

	frame := inbound(t, "conn-a", EventSendMessage, SendPayload{Sender: "alice", Receiver: "bob", Text: "hi"})
	req.NoError(f.router.handleInbound(ctx, frame))

	deliveries := f.publisher.byEvent(t, EventNewMessage)
	req.Len(deliveries, 2)
	recipients := []string{
		deliveries[0].Metadata[ws.MetaRecipientID],
		deliveries[1].Metadata[ws.MetaRecipientID],
	}
	req.ElementsMatch([]string{"conn-a", "conn-b"}, recipients)

	// Both copies carry the stored message.
	for _, d := range deliveries {
		var p MessagePayload
		req.NoError(json.Unmarshal(decodeEnvelope(t, d.Payload).Data, &p))
		req.Equal("alice", p.Sender)
		req.Equal("bob", p.Receiver)
		req.Equal("hi", p.Text)
		req.False(p.IsRead)
		req.NotZero(p.ID)
	}

	// Only the receiver gets the chat-list hint.
	hints := f.publisher.byEvent(t, EventUpdateChatList)
	req.Len(hints, 1)
	req.Equal("conn-b", hints[0].Metadata[ws.MetaRecipientID])
	var hint ChatListHintPayload
	req.NoError(json.Unmarshal(decodeEnvelope(t, hints[0].Payload).Data, &hint))
	req.Equal("alice", hint.Partner)
}

func TestRouter_SendToOfflineReceiverStoresSilently(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	f.presence.Join("alice", "conn-a")

	frame := inbound(t, "conn-a", EventSendMessage, SendPayload{Sender: "alice", Receiver: "bob", Text: "hi"})
	req.NoError(f.router.handleInbound(ctx, frame))

	// The message is stored for bob even though delivery was skipped.
	conv, err := f.messages.Conversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(conv, 1)

	deliveries := f.publisher.byEvent(t, EventNewMessage)
	req.Len(deliveries, 1)
	req.Equal("conn-a", deliveries[0].Metadata[ws.MetaRecipientID])
	req.Empty(f.publisher.byEvent(t, EventUpdateChatList))
}

func TestRouter_SendValidationFailureIsDropped(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	f.presence.Join("alice", "conn-a")

	frame := inbound(t, "conn-a", EventSendMessage, SendPayload{Sender: "alice", Receiver: "bob", Text: ""})
	req.NoError(f.router.handleInbound(ctx, frame))

	conv, err := f.messages.Conversation(ctx, "alice", "bob")
	req.NoError(err)
	req.Empty(conv)
	req.Empty(f.publisher.all())
}

func TestRouter_TypingIndicators(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	f.presence.Join("bob", "conn-b")

	payload := TypingPayload{Sender: "alice", Receiver: "bob"}
	req.NoError(f.router.handleInbound(ctx, inbound(t, "conn-a", EventTyping, payload)))
	req.NoError(f.router.handleInbound(ctx, inbound(t, "conn-a", EventStopTyping, payload)))

	display := f.publisher.byEvent(t, EventDisplayTyping)
	req.Len(display, 1)
	req.Equal("conn-b", display[0].Metadata[ws.MetaRecipientID])
	var p TypingIndicatorPayload
	req.NoError(json.Unmarshal(decodeEnvelope(t, display[0].Payload).Data, &p))
	req.Equal("alice", p.Sender)

	hide := f.publisher.byEvent(t, EventHideTyping)
	req.Len(hide, 1)
	req.Equal("conn-b", hide[0].Metadata[ws.MetaRecipientID])
}

func TestRouter_MarkReadRealtimeNotifiesSender(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.messages.Append(ctx, "alice", "bob", "one", nil)
	req.NoError(err)
	_, err = f.messages.Append(ctx, "alice", "bob", "two", nil)
	req.NoError(err)

	f.presence.Join("alice", "conn-a")

	frame := inbound(t, "conn-b", EventMarkReadRealtime, MarkReadPayload{Sender: "alice", Reader: "bob"})
	req.NoError(f.router.handleInbound(ctx, frame))

	unread, err := f.messages.UnreadFrom(ctx, "alice", "bob")
	req.NoError(err)
	req.Empty(unread)

	receipts := f.publisher.byEvent(t, EventMessagesRead)
	req.Len(receipts, 1)
	req.Equal("conn-a", receipts[0].Metadata[ws.MetaRecipientID])
	var p ReadReceiptPayload
	req.NoError(json.Unmarshal(decodeEnvelope(t, receipts[0].Payload).Data, &p))
	req.Equal("bob", p.Reader)
}

func TestRouter_DisconnectBroadcastsOfflineWithLastSeen(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, "alice", "pw")
	req.NoError(err)
	f.presence.Join("alice", "conn-a")
	f.publisher.reset()

	req.NoError(f.router.handleDisconnected(ctx, disconnected("conn-a")))

	req.False(f.presence.IsOnline("alice"))

	statuses := f.publisher.byEvent(t, EventUserStatusChange)
	req.Len(statuses, 1)
	var p StatusPayload
	req.NoError(json.Unmarshal(decodeEnvelope(t, statuses[0].Payload).Data, &p))
	req.Equal("alice", p.Username)
	req.Equal(StatusOffline, p.Status)
	req.NotNil(p.LastSeen)

	user, err := f.users.Find(ctx, "alice")
	req.NoError(err)
	req.NotNil(user.LastSeen)
}

func TestRouter_DisconnectOfUnknownConnectionIsNoop(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	req.NoError(f.router.handleDisconnected(context.Background(), disconnected("ghost")))
	req.Empty(f.publisher.all())
}

func TestRouter_MalformedAndUnknownFramesAreDropped(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	malformed := pubsub.Message{
		Topic:    ws.TopicEventInbound,
		Payload:  []byte("{not json"),
		Metadata: map[string]string{ws.MetaConnectionID: "conn-1"},
	}
	req.NoError(f.router.handleInbound(ctx, malformed))
	req.NoError(f.router.handleInbound(ctx, inbound(t, "conn-1", "no_such_event", struct{}{})))
	req.Empty(f.publisher.all())
}
