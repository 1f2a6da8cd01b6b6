// Package store defines the external message store consumed by the broadcast
// engine. The store is the sole source of truth for message history; the chat
// core never caches messages beyond the broadcast in flight.
package store

import (
	"context"
	"time"
)

// Author identifies who wrote a chat message.
type Author struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ChatMessage is a persisted chat message. The store assigns ID and
// CreatedAt; messages are never mutated after creation.
type ChatMessage struct {
	ID        string
	Content   string
	Author    Author
	CreatedAt time.Time
}

// MessageStore persists chat messages.
//
// DeleteAll is invoked by the administrative API layer, not by the chat core;
// it is part of the interface so that implementations shared with that layer
// stay honest about concurrent bulk clears happening under live broadcast.
type MessageStore interface {
	// Create persists a message for the given author and returns it with the
	// store-assigned id and timestamp.
	Create(ctx context.Context, authorID, content string) (ChatMessage, error)

	// Count returns the number of stored messages.
	Count(ctx context.Context) (int64, error)

	// DeleteAll removes every stored message and returns how many were deleted.
	DeleteAll(ctx context.Context) (int64, error)
}
