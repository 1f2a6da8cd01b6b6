package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhub/chat-server/internal/store"
)

// MessageStore implements store.MessageStore against the chat_messages table.
type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

var _ store.MessageStore = (*MessageStore)(nil)

func (s *MessageStore) Create(ctx context.Context, authorID, content string) (store.ChatMessage, error) {
	// Insert and join back to users in one round trip so the broadcast carries
	// full author info, same shape the page API returns for history.
	const q = `
		WITH inserted AS (
			INSERT INTO chat_messages (id, content, user_id, created_at)
			VALUES (gen_random_uuid()::text, $2, $1, now())
			RETURNING id, content, user_id, created_at
		)
		SELECT i.id, i.content, i.created_at, u.id, COALESCE(u.name, u.email), u.email, u.role
		FROM inserted i
		JOIN users u ON u.id = i.user_id`

	var m store.ChatMessage
	err := s.pool.QueryRow(ctx, q, authorID, content).Scan(
		&m.ID, &m.Content, &m.CreatedAt,
		&m.Author.ID, &m.Author.Name, &m.Author.Email, &m.Author.Role,
	)
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return n, nil
}

func (s *MessageStore) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_messages`)
	if err != nil {
		return 0, fmt.Errorf("delete chat messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
