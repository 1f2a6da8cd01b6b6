package chat

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"golang.org/x/time/rate"

	"github.com/taskhub/chat-server/internal/directory"
)

// authState is the per-connection handshake state machine.
//
//	unauthenticated → authenticating → authenticated (terminal)
//	unauthenticated → rejected (connection stays open, client may retry)
type authState int

const (
	stateUnauthenticated authState = iota
	stateAuthenticating
	stateAuthenticated
	stateRejected
)

// Conn is one live bidirectional session. The transport handle is one field
// among several; identity, handshake state, and the liveness flag live here
// rather than being bolted onto the socket. The registry owns every Conn for
// its lifetime; the broadcast engine and liveness monitor only ever reference
// them through registry snapshots.
type Conn struct {
	id   int64
	sock net.Conn

	// Outbound traffic is funneled through writePump: data frames via send,
	// heartbeat pings via pingc. Fan-out never writes to the socket directly.
	send  chan []byte
	pingc chan struct{}

	closeOnce sync.Once

	// Inbound message budget, checked in readPump before dispatch.
	limiter *rate.Limiter

	mu          sync.Mutex
	state       authState
	user        directory.User
	displayName string
	alive       bool
	connectedAt time.Time
}

func newConn(id int64, sock net.Conn, sendBuffer int, msgRate float64, msgBurst int) *Conn {
	return &Conn{
		id:          id,
		sock:        sock,
		send:        make(chan []byte, sendBuffer),
		pingc:       make(chan struct{}, 1),
		limiter:     rate.NewLimiter(rate.Limit(msgRate), msgBurst),
		alive:       true,
		connectedAt: time.Now(),
	}
}

// Identity returns the bound user and whether the connection has completed
// the handshake.
func (c *Conn) Identity() (directory.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.state == stateAuthenticated
}

// DisplayName returns the resolved display name, empty until authenticated.
func (c *Conn) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayName
}

func (c *Conn) setState(s authState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// bindIdentity marks the connection authenticated. Called by the registry
// under its own lock so promotion is atomic with the eviction scan.
func (c *Conn) bindIdentity(u directory.User) {
	c.mu.Lock()
	c.state = stateAuthenticated
	c.user = u
	c.displayName = u.DisplayName()
	c.mu.Unlock()
}

func (c *Conn) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// markPinged clears the liveness flag and reports its previous value. The
// liveness monitor calls this once per cycle: a false return means the peer
// never answered the previous ping.
func (c *Conn) markPinged() (wasAlive bool) {
	c.mu.Lock()
	wasAlive = c.alive
	c.alive = false
	c.mu.Unlock()
	return wasAlive
}

// enqueue queues an already-encoded frame without blocking. A full buffer is
// treated as a dead or hopelessly slow peer: the frame is dropped, the
// liveness flag is cleared, and the monitor reaps the connection on its next
// cycle. One stuck peer must never stall a fan-out.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.mu.Lock()
		c.alive = false
		c.mu.Unlock()
		return false
	}
}

// requestPing asks writePump to emit a ping frame. Non-blocking; a pending
// ping request is enough.
func (c *Conn) requestPing() {
	select {
	case c.pingc <- struct{}{}:
	default:
	}
}

// close shuts the transport down exactly once. Safe to call from any of the
// racing triggers: client close, eviction, liveness timeout, shutdown.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.sock.Close()
	})
}

// closeWithFrame sends a best-effort close frame before tearing the
// transport down. Used for server-initiated closures (eviction, shutdown) so
// well-behaved clients see a reason instead of a bare TCP reset.
func (c *Conn) closeWithFrame(code ws.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.sock.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(code, reason)
		ws.WriteFrame(c.sock, ws.NewCloseFrame(body))
		c.sock.Close()
	})
}
