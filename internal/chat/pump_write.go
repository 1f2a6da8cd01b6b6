package chat

import (
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/taskhub/chat-server/internal/monitoring"
)

// writePump is the only goroutine that writes to the socket after the
// upgrade. Data frames come off the send channel, heartbeat pings off pingc.
// Every write carries a bounded deadline so a peer with a full kernel buffer
// can stall this connection only, never the goroutine that enqueued the
// frame.
func (s *Server) writePump(c *Conn) {
	defer monitoring.RecoverPanic(s.logger, "writePump", map[string]any{
		"conn_id": c.id,
	})
	defer c.close()

	for {
		select {
		case <-s.ctx.Done():
			return

		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := wsutil.WriteServerMessage(c.sock, ws.OpText, data); err != nil {
				s.logger.Debug().
					Int64("conn_id", c.id).
					Err(err).
					Msg("Failed to write frame")
				return
			}
			framesSentTotal.Inc()

		case <-c.pingc:
			c.sock.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := wsutil.WriteServerMessage(c.sock, ws.OpPing, nil); err != nil {
				s.logger.Debug().
					Int64("conn_id", c.id).
					Err(err).
					Msg("Failed to send ping")
				return
			}
		}
	}
}
