package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PresenceEvent is the transient join/leave notification produced when a
// user's session transitions. It is fanned out to clients and never stored.
type PresenceEvent struct {
	Kind        string // "joined" or "left"
	UserID      string
	DisplayName string
	At          time.Time
}

// Presence decides when session transitions are announced. A user whose last
// connection drops and who comes back within the grace window is treated as a
// reconnect: no join/leave pair is emitted, keeping presence quiet across
// page reloads and brief network blips.
type Presence struct {
	logger zerolog.Logger

	window    time.Duration // reconnects inside this window are silent
	retention time.Duration // per-entry lifetime before scheduled removal
	sweepMax  time.Duration // sweep purges entries older than this
	sweepEach time.Duration

	mu    sync.Mutex
	grace map[string]time.Time // userID → time of last full disconnect
}

func NewPresence(logger zerolog.Logger, window, retention, sweepMax, sweepEach time.Duration) *Presence {
	return &Presence{
		logger:    logger,
		window:    window,
		retention: retention,
		sweepMax:  sweepMax,
		sweepEach: sweepEach,
		grace:     make(map[string]time.Time),
	}
}

// NoteDisconnect records that the user's last connection just closed and
// schedules the record's removal once the retention period elapses. A newer
// record for the same user is left alone by the scheduled removal.
func (p *Presence) NoteDisconnect(userID string) {
	now := time.Now()

	p.mu.Lock()
	p.grace[userID] = now
	p.mu.Unlock()

	time.AfterFunc(p.retention, func() {
		p.mu.Lock()
		if ts, ok := p.grace[userID]; ok && ts.Equal(now) {
			delete(p.grace, userID)
		}
		p.mu.Unlock()
	})
}

// SuppressJoin consumes the user's grace entry. It returns true when the user
// fully disconnected within the grace window, meaning this authentication is
// a reconnect and the join announcement must be suppressed.
func (p *Presence) SuppressJoin(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts, ok := p.grace[userID]
	if !ok {
		return false
	}
	delete(p.grace, userID)
	return time.Since(ts) < p.window
}

// Sweep purges entries older than the long bound and returns how many were
// removed. Guards against unbounded growth from users who disconnect once and
// never return (their AfterFunc removal fires, but a crashed timer or a
// pathological retention config must not leak the map).
func (p *Presence) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for userID, ts := range p.grace {
		if now.Sub(ts) > p.sweepMax {
			delete(p.grace, userID)
			removed++
		}
	}
	return removed
}

// RunSweeper runs the periodic purge until the context is cancelled.
func (p *Presence) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.sweepEach)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := p.Sweep(time.Now()); removed > 0 {
				p.mu.Lock()
				remaining := len(p.grace)
				p.mu.Unlock()
				p.logger.Debug().
					Int("removed", removed).
					Int("remaining", remaining).
					Msg("Purged stale disconnect records")
			}
		}
	}
}

// pendingCount returns the number of live grace entries.
func (p *Presence) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.grace)
}
