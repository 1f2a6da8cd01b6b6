package chat

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := testConfig()
	cfg.ReadTimeout = 150 * time.Second
	cfg.HeartbeatInterval = 60 * time.Second
	return cfg
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)

	for _, key := range []string{
		"CHAT_ADDR", "CHAT_PATH", "DATABASE_URL", "NATS_URL",
		"CHAT_GRACE_WINDOW", "CHAT_GRACE_RETENTION", "CHAT_HEARTBEAT_INTERVAL",
		"CHAT_MAX_CONNECTIONS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		// t.Setenv registers the restore; the unset makes the default apply.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig(nil)
	req.NoError(err)

	req.Equal(":3001", cfg.Addr)
	req.Equal("/chat", cfg.Path)
	req.Empty(cfg.DatabaseURL)
	req.Equal(5*time.Second, cfg.GraceWindow)
	req.Equal(10*time.Second, cfg.GraceRetention)
	req.Equal(5*time.Minute, cfg.GraceSweepMax)
	req.Equal(100*time.Millisecond, cfg.CountUpdateDelay)
	req.Equal(60*time.Second, cfg.HeartbeatInterval)
	req.Equal(4096, cfg.MaxConnections)
	req.Equal("info", cfg.LogLevel)
	req.Equal("json", cfg.LogFormat)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	req := require.New(t)

	t.Setenv("CHAT_ADDR", ":9000")
	t.Setenv("CHAT_GRACE_WINDOW", "2s")
	t.Setenv("CHAT_GRACE_RETENTION", "4s")
	t.Setenv("CHAT_MAX_CONNECTIONS", "128")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(nil)
	req.NoError(err)

	req.Equal(":9000", cfg.Addr)
	req.Equal(2*time.Second, cfg.GraceWindow)
	req.Equal(4*time.Second, cfg.GraceRetention)
	req.Equal(128, cfg.MaxConnections)
	req.Equal("debug", cfg.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty addr", func(c *Config) { c.Addr = "" }, "CHAT_ADDR"},
		{"path without slash", func(c *Config) { c.Path = "chat" }, "CHAT_PATH"},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }, "CHAT_MAX_CONNECTIONS"},
		{"zero send buffer", func(c *Config) { c.SendBuffer = 0 }, "CHAT_SEND_BUFFER"},
		{"zero message rate", func(c *Config) { c.MessageRate = 0 }, "CHAT_MESSAGE_RATE"},
		{"zero worker count", func(c *Config) { c.WorkerCount = 0 }, "CHAT_WORKER_COUNT"},
		{"zero grace window", func(c *Config) { c.GraceWindow = 0 }, "CHAT_GRACE_WINDOW"},
		{
			"retention shorter than window",
			func(c *Config) { c.GraceRetention = c.GraceWindow / 2 },
			"CHAT_GRACE_RETENTION",
		},
		{
			"sweep bound shorter than retention",
			func(c *Config) { c.GraceSweepMax = c.GraceRetention / 2 },
			"CHAT_GRACE_SWEEP_MAX",
		},
		{
			"read timeout not beyond heartbeat",
			func(c *Config) { c.ReadTimeout = c.HeartbeatInterval },
			"CHAT_READ_TIMEOUT",
		},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
