package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecbass/jdp-htmx-chat/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, text string, authorID int64) (*domain.Message, error) {
	var msg domain.Message
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO messages (text, author_id)
			VALUES ($1, $2)
			RETURNING id, text, author_id
		)
		SELECT i.id, i.text, i.author_id, u.name
		FROM inserted i
		JOIN users u ON u.id = i.author_id
	`, text, authorID).Scan(&msg.ID, &msg.Text, &msg.AuthorID, &msg.AuthorName)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return &msg, nil
}

// List returns all messages in creation order (monotonic ID).
func (r *MessageRepo) List(ctx context.Context) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.text, m.author_id, u.name
		FROM messages m
		JOIN users u ON u.id = m.author_id
		ORDER BY m.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.Text, &msg.AuthorID, &msg.AuthorName); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var msg domain.Message
	err := r.pool.QueryRow(ctx, `
		SELECT m.id, m.text, m.author_id, u.name
		FROM messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.id = $1
	`, id).Scan(&msg.ID, &msg.Text, &msg.AuthorID, &msg.AuthorName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message by ID: %w", err)
	}
	return &msg, nil
}

func (r *MessageRepo) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete message: %w", err)
	}
	return tag.RowsAffected(), nil
}
