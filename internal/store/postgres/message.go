package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/technologicalMayhem/chat-app/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

// Append lets Postgres assign the sequence id (bigserial). Sequences are
// never rewound, so ids stay strictly increasing and are never reused —
// gaps from rolled-back inserts are fine, readers only rely on order.
func (s *MessageStore) Append(ctx context.Context, userID int64, text string) (*models.Message, error) {
	query := `
		INSERT INTO messages (user_id, text, created_at)
		VALUES ($1, $2, now())
		RETURNING id, created_at, text, user_id`

	var msg models.Message
	err := s.pool.QueryRow(ctx, query, userID, text).Scan(
		&msg.ID,
		&msg.CreatedAt,
		&msg.Text,
		&msg.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) Since(ctx context.Context, cursor int64, limit int) ([]models.Message, error) {
	query := `
		SELECT id, created_at, text, user_id
		FROM messages
		WHERE id > $1
		ORDER BY id ASC`
	args := []any{cursor}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.CreatedAt, &msg.Text, &msg.UserID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *MessageStore) LastID(ctx context.Context) (int64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last message id: %w", err)
	}
	return last, nil
}
