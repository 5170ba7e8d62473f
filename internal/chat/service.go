package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"github.com/mastergamma8/Testmsg/internal/domain"
	"github.com/mastergamma8/Testmsg/internal/presence"
	"github.com/mastergamma8/Testmsg/internal/pubsub"
)

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	Username string  `json:"username"`
	Online   bool    `json:"online"`
	Unread   int     `json:"unread"`
	LastSeen *string `json:"last_seen"`
}

// PartnerStatus is the partner's presence as seen from a conversation view.
type PartnerStatus struct {
	Online   bool    `json:"online"`
	LastSeen *string `json:"last_seen"`
}

// History is the full conversation between two users plus the partner's
// current status.
type History struct {
	Messages      []MessagePayload `json:"messages"`
	PartnerStatus PartnerStatus    `json:"partner_status"`
}

// Service aggregates the message store and the presence registry into the
// pull-style views clients render: the chat list and a conversation history.
// It emits read receipts through the injected publisher rather than touching
// the transport, so it stays free of WebSocket concerns.
type Service struct {
	messages  domain.MessageRepository
	users     domain.UserRepository
	presence  *presence.Registry
	publisher pubsub.Publisher
	logger    *slog.Logger
}

// NewService creates the chat aggregator.
func NewService(messages domain.MessageRepository, users domain.UserRepository, reg *presence.Registry, pub pubsub.Publisher) *Service {
	return &Service{
		messages:  messages,
		users:     users,
		presence:  reg,
		publisher: pub,
		logger:    slog.Default().With("service", "chat"),
	}
}

// ChatList returns one entry per conversation partner of me, ordered by
// unread count descending and username ascending. The deterministic order
// keeps client rendering reproducible.
func (s *Service) ChatList(ctx context.Context, me string) ([]ChatSummary, error) {
	partners, err := s.messages.PartnersOf(ctx, me)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}

	summaries := make([]ChatSummary, 0, len(partners))
	for _, partner := range partners {
		unread, err := s.messages.UnreadFrom(ctx, partner, me)
		if err != nil {
			return nil, fmt.Errorf("failed to count unread from %s: %w", partner, err)
		}

		summary := ChatSummary{
			Username: partner,
			Online:   s.presence.IsOnline(partner),
			Unread:   len(unread),
		}
		// A partner with no user record still gets an entry, just without a
		// last-seen timestamp.
		user, err := s.users.Find(ctx, partner)
		if err != nil {
			return nil, err
		}
		if user != nil && user.LastSeen != nil {
			ts := wireTime(*user.LastSeen)
			summary.LastSeen = &ts
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Unread != summaries[j].Unread {
			return summaries[i].Unread > summaries[j].Unread
		}
		return summaries[i].Username < summaries[j].Username
	})
	return summaries, nil
}

// ConversationView marks everything the partner sent to me as read, then
// returns the full conversation with reply metadata resolved, plus the
// partner's status.
//
// Side effect: if any messages were actually flipped and the partner is
// online, their group receives a messages_read event (fire-and-forget).
// Repeat calls with no new messages flip nothing and emit nothing.
func (s *Service) ConversationView(ctx context.Context, me, partner string) (*History, error) {
	flipped, err := s.messages.MarkRead(ctx, partner, me)
	if err != nil {
		return nil, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	if len(flipped) > 0 {
		if handle, ok := s.presence.HandleFor(partner); ok {
			sendDirect(ctx, s.publisher, s.logger, handle, EventMessagesRead, ReadReceiptPayload{Reader: me})
		}
	}

	msgs, err := s.messages.Conversation(ctx, me, partner)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	history := &History{
		Messages: lo.Map(msgs, func(m domain.Message, _ int) MessagePayload {
			return messagePayload(ctx, s.messages, s.logger, m)
		}),
		PartnerStatus: PartnerStatus{Online: s.presence.IsOnline(partner)},
	}

	user, err := s.users.Find(ctx, partner)
	if err != nil {
		return nil, err
	}
	if user != nil && user.LastSeen != nil {
		ts := wireTime(*user.LastSeen)
		history.PartnerStatus.LastSeen = &ts
	}
	return history, nil
}
