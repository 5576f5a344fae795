package server

import "time"

// Config holds the HTTP server settings.
type Config struct {
	// Address is the listen address, host:port.
	Address string

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty means same-origin (the gorilla default).
	AllowedOrigins []string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// Websocket keepalive.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// MaxMessageSize bounds inbound websocket frames.
	MaxMessageSize int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Address:           ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		PingInterval:      25 * time.Second,
		PongTimeout:       60 * time.Second,
		MaxMessageSize:    10 << 20,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}
