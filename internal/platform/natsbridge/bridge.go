// Package natsbridge connects the chat server to NATS. Two concerns:
//
//  1. Clear notifications: the administrative API wipes chat history
//     out-of-band and publishes the deleted count; the bridge forwards it so
//     the server can tell connected clients their history is gone.
//  2. Message mirroring: broadcast chat envelopes are republished on a
//     subject for sibling processes to observe.
//
// The bridge is optional; the server runs standalone when no NATS URL is
// configured.
package natsbridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// ClearedHandler receives the number of messages deleted by a bulk clear.
type ClearedHandler func(deleted int64)

type Bridge struct {
	logger        zerolog.Logger
	conn          *nats.Conn
	sub           *nats.Subscription
	mirrorSubject string
}

type clearedEvent struct {
	DeletedCount int64 `json:"deletedCount"`
}

// Connect dials NATS and subscribes to the admin clear subject.
func Connect(url, clearedSubject, mirrorSubject string, logger zerolog.Logger, onCleared ClearedHandler) (*Bridge, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	b := &Bridge{
		logger:        logger,
		conn:          conn,
		mirrorSubject: mirrorSubject,
	}

	sub, err := conn.Subscribe(clearedSubject, func(msg *nats.Msg) {
		var ev clearedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger.Warn().
				Err(err).
				Str("subject", msg.Subject).
				Msg("Malformed clear notification")
			return
		}
		onCleared(ev.DeletedCount)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", clearedSubject, err)
	}
	b.sub = sub

	logger.Info().
		Str("url", url).
		Str("cleared_subject", clearedSubject).
		Str("mirror_subject", mirrorSubject).
		Msg("NATS bridge connected")

	return b, nil
}

// PublishMessage mirrors an encoded chat envelope. Best-effort: the bridge is
// an observer channel, never a delivery dependency.
func (b *Bridge) PublishMessage(data []byte) error {
	return b.conn.Publish(b.mirrorSubject, data)
}

// Close drains the subscription and closes the connection.
func (b *Bridge) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	b.conn.Close()
}
