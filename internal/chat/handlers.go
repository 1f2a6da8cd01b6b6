package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gobwas/ws"

	"github.com/taskhub/chat-server/internal/directory"
)

// Reply strings are part of the wire contract with the web client; keep them
// byte-for-byte stable.
const (
	replyMalformed    = "Invalid message format"
	replyMissingCreds = "Missing user credentials"
	replyUserNotFound = "User not found in database"
	replyAuthFailed   = "Authentication failed"
	replyNotAuthed    = "Not authenticated"
	replyEmptyContent = "Message content is required"
	replySendFailed   = "Failed to send message"
	replyUnknownType  = "Unknown message type"
	replyRateLimited  = "Too many messages, please slow down"
)

const collaboratorTimeout = 5 * time.Second

// handleEnvelope dispatches one inbound frame. Malformed payloads get an
// error reply and the connection stays open.
func (s *Server) handleEnvelope(c *Conn, data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().
			Int64("conn_id", c.id).
			Err(err).
			Msg("Client sent invalid JSON")
		s.sendError(c, replyMalformed)
		return
	}

	switch env.Type {
	case "auth":
		s.handleAuth(c, env)
	case "send_message":
		s.handleSendMessage(c, env)
	default:
		s.logger.Warn().
			Int64("conn_id", c.id).
			Str("message_type", env.Type).
			Msg("Client sent unknown message type")
		s.sendError(c, replyUnknownType)
	}
}

// handleAuth runs the per-connection handshake: validate the claimed
// credentials against the directory, promote the connection (evicting any
// prior session for the same user), and let the presence tracker decide
// whether the join is announced. The claimed role is advisory only; the
// effective role always comes from the directory.
func (s *Server) handleAuth(c *Conn, env clientEnvelope) {
	c.setState(stateAuthenticating)

	if env.UserEmail == "" || env.UserName == "" {
		c.setState(stateRejected)
		authFailureTotal.WithLabelValues("missing_credentials").Inc()
		s.logger.Warn().
			Int64("conn_id", c.id).
			Str("user_email", env.UserEmail).
			Msg("Auth attempt with missing credentials")
		s.sendError(c, replyMissingCreds)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, collaboratorTimeout)
	defer cancel()

	user, err := s.directory.FindByEmail(ctx, env.UserEmail)
	if errors.Is(err, directory.ErrNotFound) {
		c.setState(stateRejected)
		authFailureTotal.WithLabelValues("not_found").Inc()
		s.logger.Warn().
			Int64("conn_id", c.id).
			Str("user_email", env.UserEmail).
			Msg("Auth attempt for unknown user")
		s.sendError(c, replyUserNotFound)
		return
	}
	if err != nil {
		c.setState(stateRejected)
		authFailureTotal.WithLabelValues("directory_error").Inc()
		s.logger.Error().
			Int64("conn_id", c.id).
			Err(err).
			Msg("Directory lookup failed")
		s.sendError(c, replyAuthFailed)
		return
	}

	// Scan-and-evict happens inside the registry under one lock; the stale
	// sockets are closed out here. Their disconnect path finds them already
	// gone from the registry, so no leave announcement is emitted for a
	// session replacement.
	evicted := s.registry.Promote(c, user)
	for _, old := range evicted {
		evictionsTotal.Inc()
		s.logger.Info().
			Int64("conn_id", old.id).
			Int64("replaced_by", c.id).
			Str("user_id", user.ID).
			Msg("Evicting prior session for user")
		old.closeWithFrame(ws.StatusPolicyViolation, "session replaced by a newer connection")
	}

	authSuccessTotal.Inc()
	s.logger.Info().
		Int64("conn_id", c.id).
		Str("user_id", user.ID).
		Str("user_name", user.DisplayName()).
		Str("role", user.Role).
		Msg("User authenticated")

	switch {
	case len(evicted) > 0:
		// The user never left; a session replacement is not a join.
		s.logger.Debug().
			Str("user_id", user.ID).
			Msg("Session replacement, join announcement skipped")
	case s.presence.SuppressJoin(user.ID):
		presenceSuppressedTotal.Inc()
		s.logger.Debug().
			Str("user_id", user.ID).
			Msg("Quick reconnect, join announcement suppressed")
	default:
		s.announce(PresenceEvent{
			Kind:        "joined",
			UserID:      user.ID,
			DisplayName: user.DisplayName(),
			At:          time.Now(),
		}, c)
	}

	s.sendTo(c, authSuccessEnvelope())
	s.scheduleCountUpdate()
}

// handleSendMessage persists a chat message through the external store and
// fans the stored result out to every connection, sender included.
func (s *Server) handleSendMessage(c *Conn, env clientEnvelope) {
	user, authed := c.Identity()
	if !authed {
		authFailureTotal.WithLabelValues("not_authenticated").Inc()
		s.sendError(c, replyNotAuthed)
		return
	}

	content := strings.TrimSpace(env.Content)
	if content == "" {
		s.sendError(c, replyEmptyContent)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, collaboratorTimeout)
	defer cancel()

	msg, err := s.store.Create(ctx, user.ID, content)
	if err != nil {
		// The error stays with the sender; the client may resend.
		s.logger.Error().
			Int64("conn_id", c.id).
			Str("user_id", user.ID).
			Err(err).
			Msg("Failed to persist chat message")
		s.sendError(c, replySendFailed)
		return
	}

	messagesReceivedTotal.Inc()
	messagesBroadcastTotal.Inc()

	out := messageEnvelope(msg)
	s.broadcastToAll(out)

	if s.mirror != nil {
		data := out.encode()
		s.pool.Submit(func() {
			if err := s.mirror.PublishMessage(data); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to mirror message")
			}
		})
	}
}

// NotifyHistoryCleared broadcasts that the external admin API wiped the
// message history. Live broadcasting keeps working through a concurrent
// clear; clients just learn that history vanished underneath them.
func (s *Server) NotifyHistoryCleared(deleted int64) {
	s.logger.Info().
		Int64("deleted_count", deleted).
		Msg("Chat history cleared by admin API")
	s.pool.Submit(func() {
		s.broadcastToAll(historyClearedEnvelope(deleted))
	})
}
