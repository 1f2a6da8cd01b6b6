// Package postgres implements the directory and store collaborators on top of
// PostgreSQL via pgx. Schema matches the task-board application tables:
//
//	users(id, name, email, role)
//	chat_messages(id, content, created_at, user_id)
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhub/chat-server/internal/directory"
)

// UserDirectory implements directory.UserDirectory against the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

var _ directory.UserDirectory = (*UserDirectory)(nil)

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (directory.User, error) {
	const q = `SELECT id, COALESCE(name, ''), email, role FROM users WHERE email = $1`

	var u directory.User
	err := d.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, fmt.Errorf("query user by email: %w", err)
	}
	return u, nil
}
