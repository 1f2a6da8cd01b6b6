package chat

import (
	"context"
	"time"
)

// Disconnect reasons, recorded on the chat_disconnects_total metric.
const (
	disconnectReasonReadError = "read_error"
	disconnectReasonLiveness  = "liveness_timeout"
	disconnectReasonShutdown  = "server_shutdown"
)

// runLivenessMonitor pings every connection on a fixed interval and reaps the
// ones that never answered the previous ping. A simple flag cycle, not an RTT
// measurement: each tick clears the flag and pings; a pong (or any data
// frame) sets it again. A connection observed with the flag still cleared has
// missed a full cycle and is closed through the ordinary disconnect path —
// the only mechanism that catches silent deaths (network partition, client
// crash). Clean closes arrive via readPump; both converge on disconnect().
func (s *Server) runLivenessMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range s.registry.Snapshot() {
				if !c.markPinged() {
					livenessReapsTotal.Inc()
					s.logger.Info().
						Int64("conn_id", c.id).
						Str("user", c.DisplayName()).
						Msg("Terminating dead connection")
					s.disconnect(c, disconnectReasonLiveness)
					continue
				}
				c.requestPing()
			}
		}
	}
}
