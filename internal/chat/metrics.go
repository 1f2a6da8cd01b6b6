package chat

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the chat server.
var (
	connectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_active",
		Help: "Current number of live connections, authenticated or not",
	})

	connectionsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_connections_rejected_total",
		Help: "Connections rejected at the door (capacity, shutdown, upgrade failure)",
	})

	usersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_users_online",
		Help: "Current number of authenticated connections",
	})

	disconnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_disconnects_total",
		Help: "Total disconnections by reason",
	}, []string{"reason"})

	authSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_success_total",
		Help: "Successful authentication handshakes",
	})

	authFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_failure_total",
		Help: "Failed authentication attempts by reason",
	}, []string{"reason"})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_evictions_total",
		Help: "Connections force-closed to enforce single session per user",
	})

	messagesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_received_total",
		Help: "Chat messages accepted from clients",
	})

	messagesBroadcastTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_broadcast_total",
		Help: "Chat messages fanned out to clients",
	})

	framesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_frames_sent_total",
		Help: "Total frames written to clients",
	})

	sendsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sends_dropped_total",
		Help: "Frames dropped because a client send buffer was full",
	})

	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rate_limited_total",
		Help: "Inbound messages dropped by the per-connection rate limiter",
	})

	presenceAnnouncementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_presence_announcements_total",
		Help: "Join/leave announcements broadcast, by kind",
	}, []string{"kind"})

	presenceSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_presence_suppressed_total",
		Help: "Join announcements suppressed by the reconnect grace window",
	})

	livenessReapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_liveness_reaps_total",
		Help: "Connections reaped after missing consecutive ping cycles",
	})
)

func init() {
	prometheus.MustRegister(
		connectionsTotal,
		connectionsActive,
		connectionsRejected,
		usersOnline,
		disconnectsTotal,
		authSuccessTotal,
		authFailureTotal,
		evictionsTotal,
		messagesReceivedTotal,
		messagesBroadcastTotal,
		framesSentTotal,
		sendsDroppedTotal,
		rateLimitedTotal,
		presenceAnnouncementsTotal,
		presenceSuppressedTotal,
		livenessReapsTotal,
	)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
