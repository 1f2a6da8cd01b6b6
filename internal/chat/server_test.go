package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisconnect_AnnouncesDeparture(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice, bob)

	c1 := admitConn(t, s, 1)
	authenticate(t, s, c1, alice.Email, alice.Name)
	c2 := admitConn(t, s, 2)
	authenticate(t, s, c2, bob.Email, bob.Name)
	time.Sleep(3 * s.cfg.CountUpdateDelay)
	drain(c1)
	drain(c2)

	// When alice's only connection dies
	s.disconnect(c1, disconnectReasonReadError)

	// Then everyone else learns she left and the count settles
	left := mustRecv(t, c2, "user_left")
	req.Equal("Alice left the chat", left.Message)

	count := mustRecv(t, c2, "user_count_update")
	req.NotNil(count.OnlineCount)
	req.Equal(1, *count.OnlineCount)

	// And a grace entry is recorded for a possible quick return
	req.Equal(1, s.presence.pendingCount())
	req.Equal(1, s.registry.Len())
}

func TestDisconnect_Unauthenticated_IsSilent(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice, bob)

	observer := admitConn(t, s, 1)
	authenticate(t, s, observer, bob.Email, bob.Name)
	time.Sleep(3 * s.cfg.CountUpdateDelay)
	drain(observer)

	// A connection that never authenticated comes and goes unannounced.
	stranger := admitConn(t, s, 2)
	s.disconnect(stranger, disconnectReasonReadError)

	recvNone(t, observer, "user_left", 80*time.Millisecond)
	req.Zero(s.presence.pendingCount())
}

func TestDisconnect_QuickReconnect_SuppressesJoin(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice, bob)

	c1 := admitConn(t, s, 1)
	authenticate(t, s, c1, alice.Email, alice.Name)
	observer := admitConn(t, s, 2)
	authenticate(t, s, observer, bob.Email, bob.Name)
	time.Sleep(3 * s.cfg.CountUpdateDelay)
	drain(observer)

	// Given alice fully disconnected a moment ago
	s.disconnect(c1, disconnectReasonReadError)
	mustRecv(t, observer, "user_left")
	mustRecv(t, observer, "user_count_update")

	// When she reconnects inside the grace window
	c3 := admitConn(t, s, 3)
	authenticate(t, s, c3, alice.Email, alice.Name)

	// Then the observer's next frame is the count, never a join
	next := recvNext(t, observer)
	req.Equal("user_count_update", next.Type)
	req.NotNil(next.OnlineCount)
	req.Equal(2, *next.OnlineCount)

	// The grace entry was consumed by the reconnect.
	req.Zero(s.presence.pendingCount())
}

func TestDisconnect_ReconnectAfterWindow_Announces(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice, bob)

	c1 := admitConn(t, s, 1)
	authenticate(t, s, c1, alice.Email, alice.Name)
	observer := admitConn(t, s, 2)
	authenticate(t, s, observer, bob.Email, bob.Name)
	time.Sleep(3 * s.cfg.CountUpdateDelay)
	drain(observer)

	s.disconnect(c1, disconnectReasonReadError)
	mustRecv(t, observer, "user_left")

	// When the grace window elapses before she returns
	time.Sleep(s.cfg.GraceWindow + 40*time.Millisecond)

	c3 := admitConn(t, s, 3)
	authenticate(t, s, c3, alice.Email, alice.Name)

	// Then the return is a fresh join
	joined := mustRecv(t, observer, "user_joined")
	req.Equal("Alice joined the chat", joined.Message)
}

func TestLivenessMonitor_ReapsSilentConnection(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice, bob)

	silent := admitConn(t, s, 1)
	authenticate(t, s, silent, alice.Email, alice.Name)
	observer := admitConn(t, s, 2)
	authenticate(t, s, observer, bob.Email, bob.Name)
	time.Sleep(3 * s.cfg.CountUpdateDelay)
	drain(observer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The observer keeps answering; the silent peer never does.
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observer.markAlive()
			}
		}
	}()

	go s.runLivenessMonitor(ctx)

	// Two missed cycles and the silent connection is reaped.
	req.Eventually(func() bool {
		for _, c := range s.registry.Snapshot() {
			if c == silent {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	// The reap runs the ordinary departure path.
	left := mustRecv(t, observer, "user_left")
	req.Equal("Alice left the chat", left.Message)

	// The first cycle did ask the write pump to ping the silent peer.
	select {
	case <-silent.pingc:
	default:
		t.Fatal("no ping was requested before the reap")
	}
}

func TestHandleHealth_ReportsState(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice)

	c := admitConn(t, s, 1)
	authenticate(t, s, c, alice.Email, alice.Name)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	req.Equal(200, rec.Code)

	var body struct {
		Status string `json:"status"`
		Checks struct {
			Capacity struct {
				Current int `json:"current"`
				Max     int `json:"max"`
			} `json:"capacity"`
			Presence struct {
				Online       int `json:"online"`
				GraceEntries int `json:"grace_entries"`
			} `json:"presence"`
		} `json:"checks"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("healthy", body.Status)
	req.Equal(1, body.Checks.Capacity.Current)
	req.Equal(s.cfg.MaxConnections, body.Checks.Capacity.Max)
	req.Equal(1, body.Checks.Presence.Online)
	req.Zero(body.Checks.Presence.GraceEntries)
}

func TestHandleHealth_ShuttingDown(t *testing.T) {
	req := require.New(t)
	s, _ := newTestServer(t, alice)
	s.shuttingDown.Store(true)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/healthz", nil))

	req.Equal(503, rec.Code)
	req.Contains(rec.Body.String(), "shutting_down")
}
