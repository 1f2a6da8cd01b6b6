package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/taskhub/chat-server/internal/directory"
	"github.com/taskhub/chat-server/internal/store"
)

// MessagePublisher mirrors broadcast chat messages to an external bus so
// sibling processes (or the admin API) can observe the live stream. Optional.
type MessagePublisher interface {
	PublishMessage(data []byte) error
}

// Server is the real-time chat connection and presence manager. It owns one
// registry of live connections, one presence tracker, and the background
// monitors; everything else (user directory, message store) is an external
// collaborator reached through an interface.
type Server struct {
	cfg    Config
	logger zerolog.Logger

	directory directory.UserDirectory
	store     store.MessageStore
	mirror    MessagePublisher

	registry *Registry
	presence *Presence
	pool     *WorkerPool

	listener net.Listener
	httpSrv  *http.Server

	connSeq      int64
	countPending atomic.Bool
	shuttingDown atomic.Bool
	startedAt    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg Config, logger zerolog.Logger, dir directory.UserDirectory, msgStore store.MessageStore) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:       cfg,
		logger:    logger,
		directory: dir,
		store:     msgStore,
		registry:  NewRegistry(),
		presence:  NewPresence(logger, cfg.GraceWindow, cfg.GraceRetention, cfg.GraceSweepMax, cfg.GraceSweepEach),
		pool:      NewWorkerPool(cfg.WorkerCount, cfg.WorkerQueueSize, logger),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetMirror installs the optional message publisher. Must be called before
// Start.
func (s *Server) SetMirror(m MessagePublisher) {
	s.mirror = m
}

// Start binds the listener and launches the background monitors. Returns once
// the server is accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.pool.Start(s.ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.presence.RunSweeper(s.ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLivenessMonitor(s.ctx)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", MetricsHandler())

	s.httpSrv = &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Server accept loop error")
		}
	}()

	s.logger.Info().
		Str("addr", s.cfg.Addr).
		Str("path", s.cfg.Path).
		Int("max_connections", s.cfg.MaxConnections).
		Msg("Chat server listening")

	return nil
}

// handleWebSocket admits a new transport-level connection in the
// unauthenticated state and hands it to its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		connectionsRejected.Inc()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	if s.registry.Len() >= s.cfg.MaxConnections {
		connectionsRejected.Inc()
		s.logger.Warn().
			Int("max_connections", s.cfg.MaxConnections).
			Msg("Connection rejected, server at capacity")
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	sock, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		connectionsRejected.Inc()
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade connection")
		return
	}

	c := newConn(atomic.AddInt64(&s.connSeq, 1), sock, s.cfg.SendBuffer, s.cfg.MessageRate, s.cfg.MessageBurst)
	s.registry.Admit(c)

	connectionsTotal.Inc()
	connectionsActive.Set(float64(s.registry.Len()))

	s.logger.Debug().
		Int64("conn_id", c.id).
		Str("remote_addr", r.RemoteAddr).
		Msg("Connection admitted")

	go s.readPump(c)
	go s.writePump(c)
}

// disconnect is the single exit path for a connection. Idempotent: whichever
// trigger gets here first (client close, read error, liveness timeout,
// eviction already removed it) wins, later callers are no-ops for presence
// purposes. Only a full departure — no other authenticated connection left
// for the user — records a grace entry and announces the leave.
func (s *Server) disconnect(c *Conn, reason string) {
	removed, stillConnected := s.registry.Remove(c)
	c.close()
	if !removed {
		return
	}

	disconnectsTotal.WithLabelValues(reason).Inc()
	connectionsActive.Set(float64(s.registry.Len()))

	user, authed := c.Identity()
	s.logger.Info().
		Int64("conn_id", c.id).
		Str("reason", reason).
		Str("user", c.DisplayName()).
		Dur("connection_duration", time.Since(c.connectedAt)).
		Msg("Client disconnected")

	if !authed {
		return
	}

	if stillConnected {
		s.logger.Debug().
			Str("user_id", user.ID).
			Msg("Session replacement, user still connected")
	} else {
		s.presence.NoteDisconnect(user.ID)
		s.announce(PresenceEvent{
			Kind:        "left",
			UserID:      user.ID,
			DisplayName: user.DisplayName(),
			At:          time.Now(),
		}, nil)
	}

	s.scheduleCountUpdate()
}

// announce fans a presence event out, excluding the transitioning connection
// itself when set.
func (s *Server) announce(ev PresenceEvent, except *Conn) {
	presenceAnnouncementsTotal.WithLabelValues(ev.Kind).Inc()

	var env serverEnvelope
	if ev.Kind == "joined" {
		env = userJoinedEnvelope(ev.DisplayName)
	} else {
		env = userLeftEnvelope(ev.DisplayName)
	}

	if except != nil {
		s.broadcastToOthers(except, env)
	} else {
		s.broadcastToAll(env)
	}
}

// handleHealth reports process health: connection counts, presence state,
// and process memory.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var memoryMB float64
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			memoryMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if memoryMB == 0 {
		if vmem, err := mem.VirtualMemory(); err == nil {
			memoryMB = float64(vmem.Used) / 1024 / 1024
		}
	}

	current := s.registry.Len()
	status := "healthy"
	code := http.StatusOK
	if s.shuttingDown.Load() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": map[string]any{
			"capacity": map[string]any{
				"current": current,
				"max":     s.cfg.MaxConnections,
			},
			"presence": map[string]any{
				"online":        s.registry.AuthenticatedCount(),
				"grace_entries": s.presence.pendingCount(),
			},
			"memory": map[string]any{
				"used_mb": memoryMB,
			},
		},
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

// Shutdown stops accepting connections, closes every live connection with a
// going-away frame, and waits for background goroutines to drain.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Initiating graceful shutdown")
	s.shuttingDown.Store(true)

	// Closing through the http.Server lets the accept loop exit with
	// ErrServerClosed instead of a spurious closed-listener error. Hijacked
	// WebSocket connections are unaffected; they are drained below.
	if s.httpSrv != nil {
		s.httpSrv.Close()
	} else if s.listener != nil {
		s.listener.Close()
	}

	for _, c := range s.registry.Snapshot() {
		disconnectsTotal.WithLabelValues(disconnectReasonShutdown).Inc()
		c.closeWithFrame(ws.StatusGoingAway, "server shutting down")
		s.registry.Remove(c)
	}
	connectionsActive.Set(0)

	s.cancel()
	s.pool.Stop()
	s.wg.Wait()

	s.logger.Info().Msg("Graceful shutdown completed")
	return nil
}
