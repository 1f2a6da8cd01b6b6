package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhub/chat-server/internal/store"
)

func TestEnvelope_MessageWireShape(t *testing.T) {
	req := require.New(t)

	created := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	env := messageEnvelope(store.ChatMessage{
		ID:        "msg-1",
		Content:   "hello",
		Author:    store.Author{ID: "user-1", Name: "Alice", Email: "alice@example.com", Role: "MEMBER"},
		CreatedAt: created,
	})

	var got map[string]any
	req.NoError(json.Unmarshal(env.encode(), &got))

	req.Equal("message", got["type"])
	req.Equal("msg-1", got["id"])
	req.Equal("hello", got["content"])
	req.Equal("2026-03-14T09:26:53.589793Z", got["createdAt"])

	user, ok := got["user"].(map[string]any)
	req.True(ok)
	req.Equal("user-1", user["id"])
	req.Equal("Alice", user["name"])

	// Fields of other frame types never leak in.
	req.NotContains(got, "onlineCount")
	req.NotContains(got, "message")
}

func TestEnvelope_CountKeepsZero(t *testing.T) {
	req := require.New(t)

	var got map[string]any
	req.NoError(json.Unmarshal(countEnvelope(0).encode(), &got))

	// A zero online count is real data, not an absent field.
	req.Equal("user_count_update", got["type"])
	req.Contains(got, "onlineCount")
	req.EqualValues(0, got["onlineCount"])
}

func TestEnvelope_ErrorCarriesOnlyMessage(t *testing.T) {
	req := require.New(t)

	var got map[string]any
	req.NoError(json.Unmarshal(errorEnvelope("nope").encode(), &got))

	req.Len(got, 2)
	req.Equal("error", got["type"])
	req.Equal("nope", got["message"])
}
