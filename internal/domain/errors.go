package domain

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message text must not be empty")
)
