package chat

import (
	"encoding/json"
	"time"
)

// Inbound event names, sent by clients over the WebSocket.
const (
	EventJoin             = "join"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventMarkReadRealtime = "mark_read_realtime"
)

// Outbound event names, delivered to clients.
const (
	EventNewMessage       = "new_message"
	EventUpdateChatList   = "update_chat_list"
	EventUserStatusChange = "user_status_change"
	EventDisplayTyping    = "display_typing"
	EventHideTyping       = "hide_typing"
	EventMessagesRead     = "messages_read"
)

// Presence status values carried by user_status_change.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope frames every event on the wire, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload introduces the connection's identity.
type JoinPayload struct {
	Username string `json:"username"`
}

// SendPayload asks the router to store and deliver a new message.
type SendPayload struct {
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Text      string  `json:"text"`
	RepliedTo *uint64 `json:"replied_to,omitempty"`
}

// TypingPayload is shared by typing and stop_typing.
type TypingPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// MarkReadPayload marks everything the sender wrote to the reader as read.
type MarkReadPayload struct {
	Sender string `json:"sender"`
	Reader string `json:"reader"`
}

// MessagePayload is the wire form of a stored message, with reply metadata
// resolved at emission time.
type MessagePayload struct {
	ID            uint64  `json:"id"`
	Sender        string  `json:"sender"`
	Receiver      string  `json:"receiver"`
	Text          string  `json:"text"`
	IsRead        bool    `json:"is_read"`
	Timestamp     string  `json:"timestamp"`
	RepliedTo     *uint64 `json:"replied_to,omitempty"`
	RepliedText   *string `json:"replied_text,omitempty"`
	RepliedSender *string `json:"replied_sender,omitempty"`
}

// StatusPayload announces an online/offline transition. LastSeen is present
// only on the offline side.
type StatusPayload struct {
	Username string  `json:"username"`
	Status   string  `json:"status"`
	LastSeen *string `json:"last_seen,omitempty"`
}

// TypingIndicatorPayload is the outbound side of typing notifications.
type TypingIndicatorPayload struct {
	Sender string `json:"sender"`
}

// ChatListHintPayload tells a client which partner's chat entry changed.
type ChatListHintPayload struct {
	Partner string `json:"partner"`
}

// ReadReceiptPayload notifies a sender that their messages were read.
type ReadReceiptPayload struct {
	Reader string `json:"reader"`
}

// encodeEvent wraps a payload in the wire envelope.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// wireTime renders a timestamp the way clients expect it: ISO-8601 UTC with
// a trailing Z.
func wireTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
