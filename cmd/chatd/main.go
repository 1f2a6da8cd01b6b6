package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/taskhub/chat-server/internal/chat"
	"github.com/taskhub/chat-server/internal/directory"
	"github.com/taskhub/chat-server/internal/monitoring"
	"github.com/taskhub/chat-server/internal/platform/memory"
	"github.com/taskhub/chat-server/internal/platform/natsbridge"
	"github.com/taskhub/chat-server/internal/platform/postgres"
	"github.com/taskhub/chat-server/internal/store"
)

func main() {
	var (
		debug = flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	)
	flag.Parse()

	cfg, err := chat.LoadConfig(nil)
	if err != nil {
		bootstrap := monitoring.NewLogger(monitoring.LoggerConfig{Level: "info", Format: "json"})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// In a container the cgroup memory limit caps the connection count below
	// whatever the config asks for.
	if limit := monitoring.DetectMemoryLimit(); limit > 0 {
		if derived := monitoring.MaxConnectionsForMemory(limit); derived < cfg.MaxConnections {
			logger.Info().
				Int64("memory_limit_mb", limit/(1024*1024)).
				Int("configured_max", cfg.MaxConnections).
				Int("derived_max", derived).
				Msg("Lowering connection cap to fit container memory")
			cfg.MaxConnections = derived
		}
	}

	cfg.LogConfig(logger)

	ctx := context.Background()

	var (
		dir      directory.UserDirectory
		msgStore store.MessageStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pool.Close()
		dir = postgres.NewUserDirectory(pool)
		msgStore = postgres.NewMessageStore(pool)
		logger.Info().Msg("Using PostgreSQL directory and message store")
	} else {
		memDir := memory.NewDirectory()
		dir = memDir
		msgStore = memory.NewMessageStore(memDir)
		logger.Warn().Msg("No DATABASE_URL set, using in-memory directory and store")
	}

	server := chat.NewServer(*cfg, logger, dir, msgStore)

	if cfg.NATSUrl != "" {
		bridge, err := natsbridge.Connect(
			cfg.NATSUrl, cfg.ClearedSubject, cfg.MirrorSubject,
			logger, server.NotifyHistoryCleared,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect NATS bridge")
		}
		defer bridge.Close()
		server.SetMirror(bridge)
	}

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down server")
	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
}
