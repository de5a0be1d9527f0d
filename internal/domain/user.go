package domain

import "context"

// User is a bare named identity. Login is create-or-reuse by name; there
// is deliberately no password in this model.
type User struct {
	ID   int64
	Name string
}

type UserRepository interface {
	// Upsert creates the user if the name is unused, otherwise returns the
	// existing identity.
	Upsert(ctx context.Context, name string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}
