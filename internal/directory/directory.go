// Package directory defines the user-directory collaborator consumed by the
// chat handshake. The directory is the source of truth for identity and role;
// whatever the client claims during auth is re-derived from here.
package directory

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindByEmail when no user exists for the email.
var ErrNotFound = errors.New("user not found")

// User is the resolved identity for an authenticated connection.
type User struct {
	ID    string
	Name  string
	Email string
	Role  string
}

// DisplayName returns the user's name, falling back to the email when the
// directory has no name on record.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserDirectory looks up users by email.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (User, error)
}
