package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mastergamma8/Testmsg/internal/domain"
)

const idDigits = 20

// keySeparators are the characters that delimit segments of index keys.
// Identities embed into those keys unescaped, so an identity carrying one
// would leak into a neighboring pair's scan prefix.
const keySeparators = ":|"

// MessageStore is the BadgerDB-backed implementation of
// domain.MessageRepository. Message ids come from a single Badger sequence,
// so they are unique and strictly increasing across concurrent appends.
// Mutating operations additionally serialize on an internal mutex: each
// append and each read-transition runs as one atomic unit.
type MessageStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
	mu     sync.Mutex
}

// NewMessageStore creates a message store on top of an open Badger database.
func NewMessageStore(db *badger.DB) (*MessageStore, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), 128)
	if err != nil {
		return nil, fmt.Errorf("failed to open message id sequence: %w", err)
	}
	return &MessageStore{
		db:     db,
		seq:    seq,
		logger: slog.Default().With("store", "messages"),
	}, nil
}

// Close releases the id sequence. The database itself is owned by the caller.
func (s *MessageStore) Close() error {
	return s.seq.Release()
}

// Append stores a new message. The write is all-or-nothing: the record, the
// conversation index, the unread index and the partner set go into one
// transaction. Endpoints containing key separator characters are rejected,
// the same ban the registration endpoint enforces.
func (s *MessageStore) Append(ctx context.Context, sender, receiver, text string, repliedTo *uint64) (domain.Message, error) {
	if sender == "" || receiver == "" || text == "" {
		return domain.Message{}, domain.ErrValidation
	}
	if strings.ContainsAny(sender, keySeparators) || strings.ContainsAny(receiver, keySeparators) {
		return domain.Message{}, domain.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to assign message id: %w", err)
	}

	msg := domain.Message{
		ID:        next + 1, // sequence starts at zero, ids start at one
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: time.Now().UTC(),
		IsRead:    false,
		RepliedTo: repliedTo,
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to encode message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.ID), value); err != nil {
			return err
		}
		if err := txn.Set(convKey(sender, receiver, msg.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(sender, receiver, msg.ID), nil); err != nil {
			return err
		}
		if err := txn.Set(partnerKey(sender, receiver), nil); err != nil {
			return err
		}
		return txn.Set(partnerKey(receiver, sender), nil)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}

// Conversation returns every message between the two users, oldest first.
// The zero-padded id segment in the index key makes the prefix scan come
// back already ordered.
func (s *MessageStore) Conversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, convPrefix(userA, userB))
		if err != nil {
			return err
		}
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	return messages, nil
}

// UnreadFrom returns the unread messages sent by sender to receiver.
func (s *MessageStore) UnreadFrom(ctx context.Context, sender, receiver string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanIDs(txn, unreadPrefix(sender, receiver))
		if err != nil {
			return err
		}
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read unread messages: %w", err)
	}
	return messages, nil
}

// MarkRead flips every unread sender -> receiver message to read and drops
// the matching unread index entries, all in one transaction. A second call
// with no new messages finds nothing to flip, which makes the operation
// idempotent.
func (s *MessageStore) MarkRead(ctx context.Context, sender, receiver string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []domain.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		flipped = nil
		ids, err := scanIDs(txn, unreadPrefix(sender, receiver))
		if err != nil {
			return err
		}
		for _, id := range ids {
			msg, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if !msg.IsRead {
				msg.IsRead = true
				value, err := json.Marshal(msg)
				if err != nil {
					return err
				}
				if err := txn.Set(messageKey(id), value); err != nil {
					return err
				}
				flipped = append(flipped, msg)
			}
			if err := txn.Delete(unreadKey(sender, receiver, id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return flipped, nil
}

// PartnersOf returns every counterpart the user has exchanged messages with,
// sorted by the key order of the partner index.
func (s *MessageStore) PartnersOf(ctx context.Context, user string) ([]string, error) {
	prefix := []byte("partner:" + user + ":")
	var partners []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			partners = append(partners, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan partners: %w", err)
	}
	return partners, nil
}

// ResolveReply looks up reply metadata by message id. A dangling reference
// resolves to (nil, nil): callers must treat it as "no metadata", not a fault.
func (s *MessageStore) ResolveReply(ctx context.Context, id uint64) (*domain.ReplyMeta, error) {
	var meta *domain.ReplyMeta
	err := s.db.View(func(txn *badger.Txn) error {
		msg, err := getMessage(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		meta = &domain.ReplyMeta{Text: msg.Text, Sender: msg.Sender}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve reply: %w", err)
	}
	return meta, nil
}

func messageKey(id uint64) []byte {
	return fmt.Appendf(nil, "msg:%0*d", idDigits, id)
}

// pairSegment orders the two endpoints so that both directions of a
// conversation share one index prefix.
func pairSegment(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func convPrefix(a, b string) []byte {
	return []byte("conv:" + pairSegment(a, b) + ":")
}

func convKey(a, b string, id uint64) []byte {
	return fmt.Appendf(nil, "conv:%s:%0*d", pairSegment(a, b), idDigits, id)
}

func unreadPrefix(sender, receiver string) []byte {
	return []byte("unread:" + receiver + ":" + sender + ":")
}

func unreadKey(sender, receiver string, id uint64) []byte {
	return fmt.Appendf(nil, "unread:%s:%s:%0*d", receiver, sender, idDigits, id)
}

func partnerKey(user, other string) []byte {
	return []byte("partner:" + user + ":" + other)
}

// scanIDs walks an index prefix and parses the trailing id segment of each
// key. Values are never read, index entries are empty.
func scanIDs(txn *badger.Txn, prefix []byte) ([]uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		if len(key) < idDigits {
			continue
		}
		id, err := strconv.ParseUint(string(key[len(key)-idDigits:]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed index key %q: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getMessage(txn *badger.Txn, id uint64) (domain.Message, error) {
	item, err := txn.Get(messageKey(id))
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &msg)
	}); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}
