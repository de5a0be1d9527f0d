package domain

import (
	"context"
	"strings"
)

// Message is one posted board entry. AuthorName is denormalized from the
// users table for display. IDs are monotonically increasing, so listing
// by ID gives creation order.
type Message struct {
	ID         int64
	Text       string
	AuthorID   int64
	AuthorName string
}

type MessageRepository interface {
	Create(ctx context.Context, text string, authorID int64) (*Message, error)
	// List returns all messages in creation order.
	List(ctx context.Context) ([]Message, error)
	GetByID(ctx context.Context, id int64) (*Message, error)
	// Delete removes a message and returns the number of rows removed.
	Delete(ctx context.Context, id int64) (int64, error)
}

// CanDelete reports whether the session's bound user authored the message.
// Anonymous sessions can never delete.
func CanDelete(msg *Message, session *Session) bool {
	if msg == nil || !session.Authenticated() {
		return false
	}
	return *session.UserID == msg.AuthorID
}

// ValidateMessageText enforces the minimal non-empty rule for posts.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return nil
}
