package domain

import (
	"context"
	"time"
)

// Session identifies one visitor. A session starts anonymous; logging in
// binds a user ID onto it. The token is the only credential the client
// holds and must come from a cryptographically strong random source.
type Session struct {
	Token     string
	UserID    *int64
	ExpiresAt time.Time
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != nil
}

type SessionRepository interface {
	// Create persists a fresh anonymous session under the given token.
	Create(ctx context.Context, token string, expiresAt time.Time) (*Session, error)
	// Get returns the session for a token, or ErrSessionNotFound.
	Get(ctx context.Context, token string) (*Session, error)
	// SetUser binds a user to an existing session and returns the updated session.
	SetUser(ctx context.Context, token string, userID int64) (*Session, error)
}
