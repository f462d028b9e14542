// Nuntius - Realtime Messaging and Presence Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nuntius

// Package config loads the server configuration from layered sources using
// Koanf v2: built-in defaults, then an optional YAML file, then environment
// variables. Precedence: ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Push     PushConfig     `koanf:"push"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Relay    RelayConfig    `koanf:"relay"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig configures the BadgerDB object store.
type StoreConfig struct {
	// Path is the on-disk database directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs the store without persistence. Useful for development.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// PushConfig configures the push-notification provider client.
type PushConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	APIKey  string `koanf:"api_key"`

	Timeout time.Duration `koanf:"timeout"`

	// BreakerFailureThreshold is the consecutive-failure count that opens
	// the provider circuit.
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`
}

// SecurityConfig configures the HTTP surface's protective middleware.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// RelayConfig configures the messaging core.
type RelayConfig struct {
	// MaxTextRunes caps message body length in runes.
	MaxTextRunes int `koanf:"max_text_runes"`

	// ConversationPageSize bounds conversation history responses.
	ConversationPageSize int `koanf:"conversation_page_size"`

	// CacheTTL bounds staleness of cached profile reads on the REST surface.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// Validate checks the configuration for values that would make the server
// misbehave at runtime rather than fail at boot.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Push.Enabled && c.Push.URL == "" {
		return fmt.Errorf("push.url is required when push.enabled is set")
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Relay.MaxTextRunes < 1 {
		return fmt.Errorf("relay.max_text_runes must be positive, got %d", c.Relay.MaxTextRunes)
	}
	if c.Relay.ConversationPageSize < 1 {
		return fmt.Errorf("relay.conversation_page_size must be positive, got %d", c.Relay.ConversationPageSize)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}
