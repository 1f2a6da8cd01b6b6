package chat

import (
	"encoding/json"
	"time"

	"github.com/taskhub/chat-server/internal/store"
)

// Wire protocol. Every frame is a JSON object with a "type" discriminator.
//
// client → server: auth, send_message
// server → client: auth_success, message, user_joined, user_left,
// user_count_update, history_cleared, error

// clientEnvelope is the union of all fields a client may send. Which fields
// are required depends on the type.
type clientEnvelope struct {
	Type string `json:"type"`

	// auth
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
	UserRole  string `json:"userRole"` // advisory only, re-derived from the directory

	// send_message
	Content string `json:"content"`
}

// serverEnvelope is the union of all server → client frames. Optional fields
// are omitted so each type carries exactly what the original protocol does.
type serverEnvelope struct {
	Type         string        `json:"type"`
	ID           string        `json:"id,omitempty"`
	Content      string        `json:"content,omitempty"`
	User         *store.Author `json:"user,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	Message      string        `json:"message,omitempty"`
	OnlineCount  *int          `json:"onlineCount,omitempty"`
	DeletedCount *int64        `json:"deletedCount,omitempty"`
}

func (e serverEnvelope) encode() []byte {
	// Marshaling a struct of strings and pointers cannot fail.
	data, _ := json.Marshal(e)
	return data
}

func errorEnvelope(message string) serverEnvelope {
	return serverEnvelope{Type: "error", Message: message}
}

func authSuccessEnvelope() serverEnvelope {
	return serverEnvelope{Type: "auth_success", Message: "Successfully authenticated"}
}

func messageEnvelope(m store.ChatMessage) serverEnvelope {
	author := m.Author
	return serverEnvelope{
		Type:      "message",
		ID:        m.ID,
		Content:   m.Content,
		User:      &author,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func userJoinedEnvelope(displayName string) serverEnvelope {
	return serverEnvelope{Type: "user_joined", Message: displayName + " joined the chat"}
}

func userLeftEnvelope(displayName string) serverEnvelope {
	return serverEnvelope{Type: "user_left", Message: displayName + " left the chat"}
}

func countEnvelope(online int) serverEnvelope {
	return serverEnvelope{Type: "user_count_update", OnlineCount: &online}
}

func historyClearedEnvelope(deleted int64) serverEnvelope {
	return serverEnvelope{Type: "history_cleared", DeletedCount: &deleted}
}
