package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/mastergamma8/Testmsg/internal/domain"
)

// UserStore is the BadgerDB-backed implementation of domain.UserRepository.
type UserStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewUserStore creates a user store on top of an open Badger database.
func NewUserStore(db *badger.DB) *UserStore {
	return &UserStore{
		db:     db,
		logger: slog.Default().With("store", "users"),
	}
}

// Register creates a new account. The password is stored as a bcrypt hash.
func (s *UserStore) Register(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, domain.ErrValidation
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{Username: username, PasswordHash: string(hash)}
	value, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(username))
		if err == nil {
			return domain.ErrUserAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(userKey(username), value)
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store user: %w", err)
	}

	s.logger.Info("registered new user", "username", username)
	return user, nil
}

// Authenticate verifies a username/password pair.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.Find(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// Find returns the user record, or (nil, nil) when the username is unknown.
func (s *UserStore) Find(ctx context.Context, username string) (*domain.User, error) {
	var user *domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			user = &domain.User{}
			return json.Unmarshal(value, user)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Search returns usernames containing query as a substring, excluding the
// requester, capped at limit. An empty query matches nobody.
func (s *UserStore) Search(ctx context.Context, query, exclude string, limit int) ([]string, error) {
	if query == "" || limit <= 0 {
		return nil, nil
	}

	prefix := []byte("user:")
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			names = append(names, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}

	matches := lo.Filter(names, func(name string, _ int) bool {
		return name != exclude && strings.Contains(name, query)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SetLastSeen records the offline transition. Unknown usernames are a no-op
// so a disconnect for a never-registered identity can't fail the handler.
func (s *UserStore) SetLastSeen(ctx context.Context, username string, t time.Time) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var user domain.User
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &user)
		}); err != nil {
			return err
		}

		user.LastSeen = &t
		value, err := json.Marshal(&user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(username), value)
	})
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}
