package domain

import (
	"context"
	"time"
)

// User represents the core user model in the application domain.
// LastSeen stays nil until the user has gone offline at least once; it is
// updated only on the online -> offline transition.
type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
}

// UserRepository defines the contract for user data storage operations.
// It lives in the domain because it's a requirement OF the domain, not
// of the database implementation.
type UserRepository interface {
	// Register creates a new account with a hashed password.
	Register(ctx context.Context, username, password string) (*User, error)

	// Authenticate verifies a username/password pair and returns the user.
	Authenticate(ctx context.Context, username, password string) (*User, error)

	// Find returns the user record, or (nil, nil) when the username is unknown.
	Find(ctx context.Context, username string) (*User, error)

	// Search returns usernames containing query as a substring, excluding the
	// given username, capped at limit.
	Search(ctx context.Context, query, exclude string, limit int) ([]string, error)

	// SetLastSeen records the moment a user went offline. Unknown usernames
	// are a no-op, not an error.
	SetLastSeen(ctx context.Context, username string, t time.Time) error
}
