package chat

import (
	"sync"

	"github.com/taskhub/chat-server/internal/directory"
)

// Registry owns the set of live connections. Every mutation happens under a
// single mutex: the scan-and-evict in Promote must be atomic with respect to
// concurrent admits and removals, otherwise two simultaneous logins for the
// same user can both conclude they are the sole survivor.
//
// Lock ordering: Registry.mu before Conn.mu, never the reverse.
type Registry struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Admit adds an unauthenticated connection to the live set. Always succeeds.
func (r *Registry) Admit(c *Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Promote marks the connection authenticated with the resolved identity and
// removes every other connection already bound to the same user, enforcing
// the single-session-per-user invariant. The evicted connections are returned
// so the caller can close their transports outside the lock.
func (r *Registry) Promote(c *Conn, user directory.User) (evicted []*Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for other := range r.conns {
		if other == c {
			continue
		}
		if u, ok := other.Identity(); ok && u.ID == user.ID {
			delete(r.conns, other)
			evicted = append(evicted, other)
		}
	}

	c.bindIdentity(user)
	return evicted
}

// Remove deletes a connection unconditionally. It reports whether this call
// actually removed it (false when an eviction or a racing disconnect trigger
// got there first — disconnect handling is idempotent per connection) and
// whether any other authenticated connection for the same user remains, which
// decides if the disconnect is a full departure or a session replacement.
func (r *Registry) Remove(c *Conn) (removed, stillConnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return false, false
	}
	delete(r.conns, c)

	user, authed := c.Identity()
	if !authed {
		return true, false
	}
	for other := range r.conns {
		if u, ok := other.Identity(); ok && u.ID == user.ID {
			return true, true
		}
	}
	return true, false
}

// Snapshot returns the live set as a slice. Visitors (broadcast fan-out, the
// liveness monitor) iterate the snapshot, so removing entries mid-iteration
// is safe.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections, authenticated or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// AuthenticatedCount returns the online count reported to clients: the number
// of live connections with a bound identity.
func (r *Registry) AuthenticatedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for c := range r.conns {
		if _, ok := c.Identity(); ok {
			n++
		}
	}
	return n
}
