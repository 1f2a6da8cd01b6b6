// Package memory provides in-memory implementations of the directory and
// store collaborators. Used in development mode (no database configured) and
// throughout the test suites.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhub/chat-server/internal/directory"
	"github.com/taskhub/chat-server/internal/store"
)

// Directory is a map-backed user directory keyed by email.
type Directory struct {
	mu    sync.RWMutex
	users map[string]directory.User
}

func NewDirectory(users ...directory.User) *Directory {
	d := &Directory{users: make(map[string]directory.User, len(users))}
	for _, u := range users {
		d.users[strings.ToLower(u.Email)] = u
	}
	return d
}

// Add inserts or replaces a user record.
func (d *Directory) Add(u directory.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[strings.ToLower(u.Email)] = u
}

func (d *Directory) FindByEmail(_ context.Context, email string) (directory.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[strings.ToLower(email)]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return u, nil
}

var _ directory.UserDirectory = (*Directory)(nil)

// MessageStore keeps messages in a slice guarded by a mutex. Authors are
// resolved through the directory so stored messages carry full author info,
// matching what the SQL implementation gets from a join.
type MessageStore struct {
	mu       sync.Mutex
	dir      *Directory
	messages []store.ChatMessage
}

func NewMessageStore(dir *Directory) *MessageStore {
	return &MessageStore{dir: dir}
}

func (m *MessageStore) Create(_ context.Context, authorID, content string) (store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	author := store.Author{ID: authorID}
	m.dir.mu.RLock()
	for _, u := range m.dir.users {
		if u.ID == authorID {
			author = store.Author{ID: u.ID, Name: u.DisplayName(), Email: u.Email, Role: u.Role}
			break
		}
	}
	m.dir.mu.RUnlock()

	msg := store.ChatMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Author:    author,
		CreatedAt: time.Now().UTC(),
	}
	m.messages = append(m.messages, msg)
	return msg, nil
}

func (m *MessageStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.messages)), nil
}

func (m *MessageStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.messages))
	m.messages = nil
	return n, nil
}

var _ store.MessageStore = (*MessageStore)(nil)
