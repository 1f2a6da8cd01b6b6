package chat

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/chat-server/internal/directory"
	"github.com/taskhub/chat-server/internal/platform/memory"
	"github.com/taskhub/chat-server/internal/store"
)

// Shared fixtures for the chat package tests. Timings are compressed so the
// grace window and count coalescing are observable without slow tests.

func testConfig() Config {
	return Config{
		Addr:              "127.0.0.1:0",
		Path:              "/chat",
		GraceWindow:       60 * time.Millisecond,
		GraceRetention:    200 * time.Millisecond,
		GraceSweepMax:     time.Minute,
		GraceSweepEach:    time.Minute,
		CountUpdateDelay:  10 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		MaxConnections:    16,
		SendBuffer:        32,
		MessageRate:       100,
		MessageBurst:      100,
		WorkerCount:       2,
		WorkerQueueSize:   64,
		LogLevel:          "info",
		LogFormat:         "json",
		Environment:       "test",
	}
}

var (
	alice = directory.User{ID: "user-alice", Name: "Alice", Email: "alice@example.com", Role: "MEMBER"}
	bob   = directory.User{ID: "user-bob", Name: "Bob", Email: "bob@example.com", Role: "ADMIN"}
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestServer(t *testing.T, users ...directory.User) (*Server, *memory.MessageStore) {
	t.Helper()

	dir := memory.NewDirectory(users...)
	msgStore := memory.NewMessageStore(dir)

	s := NewServer(testConfig(), zerolog.Nop(), dir, msgStore)
	s.pool.Start(s.ctx)
	t.Cleanup(s.cancel)

	return s, msgStore
}

// newTestConn builds a Conn over a pipe without running its pumps. The far
// end is drained so server-initiated close frames never block.
func newTestConn(t *testing.T, id int64, buffer int) *Conn {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	go io.Copy(io.Discard, client)

	return newConn(id, server, buffer, 100, 100)
}

// admitConn admits a fresh unauthenticated connection to the server.
func admitConn(t *testing.T, s *Server, id int64) *Conn {
	t.Helper()
	c := newTestConn(t, id, s.cfg.SendBuffer)
	s.registry.Admit(c)
	return c
}

// authenticate runs the handshake for a known user and consumes the
// auth_success reply.
func authenticate(t *testing.T, s *Server, c *Conn, email, name string) {
	t.Helper()

	s.handleEnvelope(c, []byte(`{"type":"auth","userEmail":"`+email+`","userName":"`+name+`"}`))

	env := mustRecv(t, c, "auth_success")
	require.Equal(t, "Successfully authenticated", env.Message)
}

// mustRecv pulls frames off the connection's send buffer until one of the
// wanted type arrives. Frames of other types are skipped.
func mustRecv(t *testing.T, c *Conn, wantType string) serverEnvelope {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.send:
			var env serverEnvelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type == wantType {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", wantType)
		}
	}
}

// recvNext returns the next frame, whatever its type.
func recvNext(t *testing.T, c *Conn) serverEnvelope {
	t.Helper()

	select {
	case data := <-c.send:
		var env serverEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return serverEnvelope{}
	}
}

// recvNone asserts no frame of the given type arrives within the window.
func recvNone(t *testing.T, c *Conn, wantType string, window time.Duration) {
	t.Helper()

	deadline := time.After(window)
	for {
		select {
		case data := <-c.send:
			var env serverEnvelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Type == wantType {
				t.Fatalf("unexpected %q frame: %+v", wantType, env)
			}
		case <-deadline:
			return
		}
	}
}

// drain discards everything currently buffered for the connection.
func drain(c *Conn) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// failingStore rejects every write so persistence failures can be exercised.
type failingStore struct {
	err error
}

func (f *failingStore) Create(context.Context, string, string) (store.ChatMessage, error) {
	return store.ChatMessage{}, f.err
}

func (f *failingStore) Count(context.Context) (int64, error) { return 0, nil }

func (f *failingStore) DeleteAll(context.Context) (int64, error) { return 0, f.err }
