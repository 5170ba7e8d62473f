package domain

import (
	"context"
	"time"
)

// Message is a single direct message between two users. A message is
// immutable once stored, except for IsRead which transitions false -> true
// exactly once and never reverts.
type Message struct {
	ID        uint64    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
	RepliedTo *uint64   `json:"replied_to,omitempty"`
}

// ReplyMeta is the text and sender of an earlier message referenced by a
// later message's RepliedTo field. It is resolved at read time, never stored
// redundantly.
type ReplyMeta struct {
	Text   string
	Sender string
}

// MessageRepository is the contract for the durable, ordered message record.
// A conversation between A and B is the set of messages whose endpoints are
// {A, B} in either direction, ordered by id (ids are assigned strictly
// increasing at append time).
type MessageRepository interface {
	// Append stores a new message, assigning its id and timestamp. It returns
	// ErrValidation when text is empty or an endpoint is missing.
	Append(ctx context.Context, sender, receiver, text string, repliedTo *uint64) (Message, error)

	// Conversation returns all messages between the two users, oldest first.
	Conversation(ctx context.Context, userA, userB string) ([]Message, error)

	// UnreadFrom returns the messages sent by sender to receiver that have
	// not been read yet.
	UnreadFrom(ctx context.Context, sender, receiver string) ([]Message, error)

	// MarkRead flips every unread sender -> receiver message to read in a
	// single atomic step and returns the messages it flipped. Calling it
	// again without new messages returns an empty slice.
	MarkRead(ctx context.Context, sender, receiver string) ([]Message, error)

	// PartnersOf returns every user the given user has exchanged at least one
	// message with, in either direction.
	PartnersOf(ctx context.Context, user string) ([]string, error)

	// ResolveReply looks up the text and sender of the message with the given
	// id. A dangling reference resolves to (nil, nil), never an error.
	ResolveReply(ctx context.Context, id uint64) (*ReplyMeta, error)
}
