package chat

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Server basics
	Addr string `env:"CHAT_ADDR" envDefault:":3001"`
	Path string `env:"CHAT_PATH" envDefault:"/chat"`

	// External collaborators. Empty DATABASE_URL selects the in-memory
	// directory/store (development mode); empty NATS_URL disables the bridge.
	DatabaseURL    string `env:"DATABASE_URL"`
	NATSUrl        string `env:"NATS_URL"`
	ClearedSubject string `env:"CHAT_CLEARED_SUBJECT" envDefault:"taskboard.chat.cleared"`
	MirrorSubject  string `env:"CHAT_MIRROR_SUBJECT" envDefault:"taskboard.chat.messages"`

	// Presence policy. The grace window and sweep bounds are heuristics, not
	// load-bearing constants; tune per deployment.
	GraceWindow    time.Duration `env:"CHAT_GRACE_WINDOW" envDefault:"5s"`
	GraceRetention time.Duration `env:"CHAT_GRACE_RETENTION" envDefault:"10s"`
	GraceSweepMax  time.Duration `env:"CHAT_GRACE_SWEEP_MAX" envDefault:"5m"`
	GraceSweepEach time.Duration `env:"CHAT_GRACE_SWEEP_INTERVAL" envDefault:"5m"`

	// Count updates are coalesced behind this delay so a burst of session
	// churn produces one user_count_update instead of many.
	CountUpdateDelay time.Duration `env:"CHAT_COUNT_UPDATE_DELAY" envDefault:"100ms"`

	// Liveness / transport timing
	HeartbeatInterval time.Duration `env:"CHAT_HEARTBEAT_INTERVAL" envDefault:"60s"`
	ReadTimeout       time.Duration `env:"CHAT_READ_TIMEOUT" envDefault:"150s"`
	WriteTimeout      time.Duration `env:"CHAT_WRITE_TIMEOUT" envDefault:"5s"`

	// Capacity
	MaxConnections int `env:"CHAT_MAX_CONNECTIONS" envDefault:"4096"`
	SendBuffer     int `env:"CHAT_SEND_BUFFER" envDefault:"256"`

	// Per-connection inbound rate limiting
	MessageRate  float64 `env:"CHAT_MESSAGE_RATE" envDefault:"10"`
	MessageBurst int     `env:"CHAT_MESSAGE_BURST" envDefault:"100"`

	// Worker pool for deferred fan-out (count updates, admin notifications)
	WorkerCount     int `env:"CHAT_WORKER_COUNT" envDefault:"8"`
	WorkerQueueSize int `env:"CHAT_WORKER_QUEUE" envDefault:"1024"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	// .env is a development convenience; in production plain environment
	// variables are used and the file is absent.
	if err := godotenv.Load(); err == nil && logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("CHAT_ADDR is required")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("CHAT_PATH must start with '/', got %q", c.Path)
	}

	if c.MaxConnections < 1 {
		return fmt.Errorf("CHAT_MAX_CONNECTIONS must be > 0, got %d", c.MaxConnections)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("CHAT_SEND_BUFFER must be > 0, got %d", c.SendBuffer)
	}
	if c.MessageRate <= 0 {
		return fmt.Errorf("CHAT_MESSAGE_RATE must be > 0, got %.1f", c.MessageRate)
	}
	if c.MessageBurst < 1 {
		return fmt.Errorf("CHAT_MESSAGE_BURST must be > 0, got %d", c.MessageBurst)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("CHAT_WORKER_COUNT must be > 0, got %d", c.WorkerCount)
	}

	if c.GraceWindow <= 0 {
		return fmt.Errorf("CHAT_GRACE_WINDOW must be > 0, got %s", c.GraceWindow)
	}
	if c.GraceRetention < c.GraceWindow {
		return fmt.Errorf("CHAT_GRACE_RETENTION (%s) must be >= CHAT_GRACE_WINDOW (%s)",
			c.GraceRetention, c.GraceWindow)
	}
	if c.GraceSweepMax < c.GraceRetention {
		return fmt.Errorf("CHAT_GRACE_SWEEP_MAX (%s) must be >= CHAT_GRACE_RETENTION (%s)",
			c.GraceSweepMax, c.GraceRetention)
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("CHAT_HEARTBEAT_INTERVAL must be > 0, got %s", c.HeartbeatInterval)
	}
	if c.ReadTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("CHAT_READ_TIMEOUT (%s) must exceed CHAT_HEARTBEAT_INTERVAL (%s)",
			c.ReadTimeout, c.HeartbeatInterval)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("CHAT_WRITE_TIMEOUT must be > 0, got %s", c.WriteTimeout)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the effective configuration at startup.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr).
		Str("path", c.Path).
		Bool("database_configured", c.DatabaseURL != "").
		Bool("nats_configured", c.NATSUrl != "").
		Dur("grace_window", c.GraceWindow).
		Dur("grace_retention", c.GraceRetention).
		Dur("grace_sweep_max", c.GraceSweepMax).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Dur("count_update_delay", c.CountUpdateDelay).
		Int("max_connections", c.MaxConnections).
		Int("send_buffer", c.SendBuffer).
		Float64("message_rate", c.MessageRate).
		Int("message_burst", c.MessageBurst).
		Int("worker_count", c.WorkerCount).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
