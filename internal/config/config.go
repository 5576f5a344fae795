// Package config loads the service configuration from gistsync.json
// with environment-variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "gistsync.json"

// Config is the complete service configuration.
type Config struct {
	Server ServerConfig `json:"server,omitempty"`
	Store  StoreConfig  `json:"store,omitempty"`
	Room   RoomConfig   `json:"room,omitempty"`
	Log    LogConfig    `json:"log,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Address is the listen address, host:port.
	Address string `json:"address,omitempty"`

	// AllowedOrigins restricts websocket upgrades by Origin header.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// StoreConfig selects and configures the canonical-content store.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "postgres", "s3".
	Backend string `json:"backend,omitempty"`

	Redis    RedisConfig    `json:"redis,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty"`
	S3       S3Config       `json:"s3,omitempty"`
}

// RedisConfig configures the redis store backend.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// PostgresConfig configures the postgres store backend.
type PostgresConfig struct {
	DSN string `json:"dsn,omitempty"`
}

// S3Config configures the S3 store backend.
type S3Config struct {
	Bucket string `json:"bucket,omitempty"`
	Region string `json:"region,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// RoomConfig tunes the save cycle. Durations are strings like "2s".
type RoomConfig struct {
	Filename            string `json:"filename,omitempty"`
	Debounce            string `json:"debounce,omitempty"`
	SaveInitialInterval string `json:"saveInitialInterval,omitempty"`
	SaveMaxInterval     string `json:"saveMaxInterval,omitempty"`
	SaveMaxElapsed      string `json:"saveMaxElapsed,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `json:"format,omitempty"`
}

// New returns a Config with defaults applied.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads ConfigFileName from dir. A missing file yields the
// defaults; env overrides apply either way.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the given path.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = "localhost:6379"
	}
	if c.Store.S3.Region == "" {
		c.Store.S3.Region = "us-east-1"
	}
	if c.Room.Filename == "" {
		c.Room.Filename = "README.md"
	}
	if c.Room.Debounce == "" {
		c.Room.Debounce = "2s"
	}
	if c.Room.SaveInitialInterval == "" {
		c.Room.SaveInitialInterval = "500ms"
	}
	if c.Room.SaveMaxInterval == "" {
		c.Room.SaveMaxInterval = "30s"
	}
	if c.Room.SaveMaxElapsed == "" {
		c.Room.SaveMaxElapsed = "5m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv overlays GISTSYNC_* environment variables.
func (c *Config) applyEnv() {
	set := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	set(&c.Server.Address, "GISTSYNC_ADDR")
	set(&c.Store.Backend, "GISTSYNC_STORE")
	set(&c.Store.Redis.Addr, "GISTSYNC_REDIS_ADDR")
	set(&c.Store.Redis.Password, "GISTSYNC_REDIS_PASSWORD")
	set(&c.Store.Postgres.DSN, "GISTSYNC_POSTGRES_DSN")
	set(&c.Store.S3.Bucket, "GISTSYNC_S3_BUCKET")
	set(&c.Store.S3.Region, "GISTSYNC_S3_REGION")
	set(&c.Log.Level, "GISTSYNC_LOG_LEVEL")
	set(&c.Log.Format, "GISTSYNC_LOG_FORMAT")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("config: postgres backend needs store.postgres.dsn")
		}
	case "s3":
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("config: s3 backend needs store.s3.bucket")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	for _, d := range []struct{ name, v string }{
		{"room.debounce", c.Room.Debounce},
		{"room.saveInitialInterval", c.Room.SaveInitialInterval},
		{"room.saveMaxInterval", c.Room.SaveMaxInterval},
		{"room.saveMaxElapsed", c.Room.SaveMaxElapsed},
	} {
		if _, err := time.ParseDuration(d.v); err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
	}
	return nil
}

// Duration parses a validated duration field.
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// SlogLevel maps the configured level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
