// Package config loads the processor configuration from layered JSON files
// with environment overrides. Later layers override earlier ones field by
// field; environment variables override everything, which is how deployment
// secrets (database DSN, broker credentials) reach the process.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/diazhh/petroedge-sub003/consumer"
	"github.com/diazhh/petroedge-sub003/errors"
	"github.com/diazhh/petroedge-sub003/pkg/cache"
	"github.com/diazhh/petroedge-sub003/store"
)

// Config is the complete processor configuration.
type Config struct {
	Platform PlatformConfig  `json:"platform"`
	NATS     NATSConfig      `json:"nats"`
	Postgres store.Config    `json:"postgres"`
	Cache    CacheConfig     `json:"cache"`
	Consumer consumer.Config `json:"consumer"`

	// DeadLetterSubject is where rejected raw messages are published.
	DeadLetterSubject string `json:"deadLetterSubject"`

	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// PlatformConfig identifies this deployment.
type PlatformConfig struct {
	ID          string `json:"id"`
	Environment string `json:"environment,omitempty"`
}

// NATSConfig holds broker connection settings.
type NATSConfig struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// CacheConfig selects the cache backend. Mode "redis" uses the shared
// instance; "memory" keeps a per-process cache, suitable for single-instance
// deployments and tests.
type CacheConfig struct {
	Mode  string            `json:"mode"`
	Redis cache.RedisConfig `json:"redis,omitempty"`

	// SweepInterval is the expiry sweep cadence of the memory backend.
	SweepInterval time.Duration `json:"sweepInterval,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json, text
}

// Validate checks the fields no default can supply.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "postgres.dsn is required")
	}
	if c.NATS.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.url is required")
	}
	switch c.Cache.Mode {
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "cache.redis.addr is required in redis mode")
		}
	case "memory":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown cache mode %q", errors.ErrInvalidConfig, c.Cache.Mode),
			"Config", "Validate", "check cache mode")
	}
	return nil
}

// Loader loads and merges configuration layers.
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a loader with the standard environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "PETROEDGE"}
}

// AddLayer appends one configuration file. Layers are applied in order.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Load merges defaults, file layers and environment overrides, then
// validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := defaults()

	for _, path := range l.layers {
		if err := l.applyFile(cfg, path); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "apply layer "+path)
		}
	}
	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads a single configuration file over the defaults.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

func defaults() *Config {
	return &Config{
		Platform: PlatformConfig{
			ID:          "petroedge-processor",
			Environment: "dev",
		},
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Name: "petroedge-processor",
		},
		Cache: CacheConfig{
			Mode:          "memory",
			SweepInterval: time.Minute,
		},
		Consumer: consumer.Config{
			Stream:         "TELEMETRY",
			Subject:        "telemetry.events.>",
			Durable:        "telemetry-processor",
			ProcessTimeout: 30 * time.Second,
		},
		DeadLetterSubject: consumer.DefaultDeadLetterSubject,
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyFile decodes one JSON layer over cfg. Absent fields keep their
// current values; duration fields accept Go duration strings ("30s").
func (l *Loader) applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	normalizeDurations(raw)

	merged, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, cfg)
}

// normalizeDurations rewrites duration strings to nanosecond numbers so the
// standard decoder can populate time.Duration fields.
func normalizeDurations(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			normalizeDurations(val)
		case string:
			if !durationKeys[k] {
				continue
			}
			if d, err := time.ParseDuration(val); err == nil {
				m[k] = float64(d)
			}
		}
	}
}

// durationKeys names the config fields that accept duration strings.
var durationKeys = map[string]bool{
	"processTimeout":    true,
	"sweepInterval":     true,
	"timeout":           true,
	"conn_max_lifetime": true,
}

func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(l.envPrefix + "_PLATFORM_ID"); v != "" {
		cfg.Platform.ID = v
	}
	if v := os.Getenv(l.envPrefix + "_ENVIRONMENT"); v != "" {
		cfg.Platform.Environment = v
	}
	if v := os.Getenv(l.envPrefix + "_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv(l.envPrefix + "_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv(l.envPrefix + "_REDIS_ADDR"); v != "" {
		cfg.Cache.Mode = "redis"
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv(l.envPrefix + "_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv(l.envPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
