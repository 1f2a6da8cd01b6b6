package chat

import "time"

// Broadcast engine: two delivery modes, toAll and toOthers. Delivery is
// best-effort per connection — a full send buffer on one peer drops that
// frame, flags the peer for the liveness monitor, and never blocks delivery
// to the rest.

// broadcastToAll encodes the envelope once and fans it out to every live
// connection, authenticated or not.
func (s *Server) broadcastToAll(env serverEnvelope) {
	data := env.encode()
	for _, c := range s.registry.Snapshot() {
		s.deliver(c, data)
	}
}

// broadcastToOthers fans out to every live connection except the sender.
func (s *Server) broadcastToOthers(sender *Conn, env serverEnvelope) {
	data := env.encode()
	for _, c := range s.registry.Snapshot() {
		if c == sender {
			continue
		}
		s.deliver(c, data)
	}
}

func (s *Server) deliver(c *Conn, data []byte) {
	if c.enqueue(data) {
		return
	}
	sendsDroppedTotal.Inc()
	s.logger.Warn().
		Int64("conn_id", c.id).
		Str("user", c.DisplayName()).
		Msg("Send buffer full, dropping frame and flagging connection")
}

// sendTo delivers a single-recipient envelope. Silently a no-op when the
// connection's buffer is gone or full; the peer is already on its way out.
func (s *Server) sendTo(c *Conn, env serverEnvelope) {
	s.deliver(c, env.encode())
}

// sendError replies with an error envelope. No failure here is fatal: errors
// on one connection never propagate to others.
func (s *Server) sendError(c *Conn, message string) {
	s.sendTo(c, errorEnvelope(message))
}

// scheduleCountUpdate queues a coalesced user_count_update broadcast. Rapid
// session churn (an eviction plus a reconnect, say) collapses into a single
// update carrying the settled count.
func (s *Server) scheduleCountUpdate() {
	if !s.countPending.CompareAndSwap(false, true) {
		return
	}
	time.AfterFunc(s.cfg.CountUpdateDelay, func() {
		s.countPending.Store(false)
		s.pool.Submit(func() {
			online := s.registry.AuthenticatedCount()
			usersOnline.Set(float64(online))
			s.broadcastToAll(countEnvelope(online))
		})
	})
}
