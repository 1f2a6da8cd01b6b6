package chat

import (
	"io"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/taskhub/chat-server/internal/monitoring"
)

// readPump reads frames from the connection until it dies, for any reason.
// Its defer is the single funnel into the disconnect path: clean closes,
// protocol errors, and read timeouts all converge here, so cleanup logic can
// never diverge between the "close" and "error" cases.
func (s *Server) readPump(c *Conn) {
	defer monitoring.RecoverPanic(s.logger, "readPump", map[string]any{
		"conn_id": c.id,
	})
	defer s.disconnect(c, disconnectReasonReadError)

	// Control frames are handled out-of-band: pings get an automatic pong,
	// close frames end the loop. Pongs are intercepted first so the liveness
	// monitor sees the answer to its last ping.
	controlHandler := wsutil.ControlFrameHandler(c.sock, ws.StateServerSide)
	reader := &wsutil.Reader{
		Source:         c.sock,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: controlHandler,
	}

	for {
		c.sock.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		hdr, err := reader.NextFrame()
		if err != nil {
			return
		}

		if hdr.OpCode.IsControl() {
			if hdr.OpCode == ws.OpPong {
				c.markAlive()
			}
			if err := controlHandler(hdr, reader); err != nil {
				return
			}
			continue
		}

		if hdr.OpCode != ws.OpText {
			if err := reader.Discard(); err != nil {
				return
			}
			continue
		}

		payload, err := io.ReadAll(reader)
		if err != nil {
			return
		}

		// Any inbound data frame proves the peer is alive.
		c.markAlive()

		if !c.limiter.Allow() {
			rateLimitedTotal.Inc()
			s.logger.Warn().
				Int64("conn_id", c.id).
				Float64("rate_limit_per_sec", s.cfg.MessageRate).
				Int("burst_limit", s.cfg.MessageBurst).
				Msg("Client rate limited")
			s.sendError(c, replyRateLimited)
			continue
		}

		s.handleEnvelope(c, payload)
	}
}
