package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diazhh/petroedge-sub003/errors"
)

func writeLayer(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalLayer = `{
	"postgres": {"dsn": "postgres://pe:pe@localhost:5432/petroedge?sslmode=disable"}
}`

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().LoadFile(writeLayer(t, "base.json", minimalLayer))
	require.NoError(t, err)

	assert.Equal(t, "petroedge-processor", cfg.Platform.ID)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "memory", cfg.Cache.Mode)
	assert.Equal(t, "TELEMETRY", cfg.Consumer.Stream)
	assert.Equal(t, 30*time.Second, cfg.Consumer.ProcessTimeout)
	assert.Equal(t, "telemetry.dlq", cfg.DeadLetterSubject)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadLayersOverrideInOrder(t *testing.T) {
	base := writeLayer(t, "base.json", `{
		"postgres": {"dsn": "postgres://base"},
		"consumer": {"durable": "base-durable", "processTimeout": "45s"}
	}`)
	site := writeLayer(t, "site.json", `{
		"consumer": {"durable": "site-durable"},
		"logging": {"level": "debug"}
	}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://base", cfg.Postgres.DSN)
	assert.Equal(t, "site-durable", cfg.Consumer.Durable, "later layer wins")
	assert.Equal(t, 45*time.Second, cfg.Consumer.ProcessTimeout, "earlier layer survives where later is silent")
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDurationStrings(t *testing.T) {
	cfg, err := NewLoader().LoadFile(writeLayer(t, "base.json", `{
		"postgres": {"dsn": "postgres://x", "conn_max_lifetime": "5m"},
		"cache": {"mode": "redis", "redis": {"addr": "localhost:6379", "timeout": "250ms"}},
		"consumer": {"processTimeout": "10s"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Postgres.ConnMaxLifetime)
	assert.Equal(t, 250*time.Millisecond, cfg.Cache.Redis.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Consumer.ProcessTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PETROEDGE_POSTGRES_DSN", "postgres://env")
	t.Setenv("PETROEDGE_NATS_URL", "nats://broker:4222")
	t.Setenv("PETROEDGE_REDIS_ADDR", "cache:6379")
	t.Setenv("PETROEDGE_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "redis", cfg.Cache.Mode, "redis address implies redis mode")
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid memory mode",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Postgres.DSN = "" },
			wantErr: true,
		},
		{
			name:    "missing nats url",
			mutate:  func(c *Config) { c.NATS.URL = "" },
			wantErr: true,
		},
		{
			name:    "redis mode without addr",
			mutate:  func(c *Config) { c.Cache.Mode = "redis" },
			wantErr: true,
		},
		{
			name:    "unknown cache mode",
			mutate:  func(c *Config) { c.Cache.Mode = "memcached" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			cfg.Postgres.DSN = "postgres://x"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}
