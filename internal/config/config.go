// Package config provides configuration for viper.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the viper configuration.
type Config struct {
	// Server settings
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:viper.db?_foreign_keys=on"`

	// Persistence backend used by the chat client. Empty means in-memory.
	BackendURL string `env:"BACKEND_URL"`

	// Model registry file. Empty means models come from the backend.
	ModelsFile string `env:"MODELS_FILE"`

	// Timeouts
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	SyncTimeout    time.Duration `env:"SYNC_TIMEOUT" envDefault:"10s"`

	// Dispatch policy (Rego). Empty means the built-in policy.
	PolicyFile string `env:"POLICY_FILE"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mode is MOCK to replace the upstream with an in-process generator.
	Mode string `env:"MODE"`
}

// Load loads configuration from VIPER_* environment variables.
func Load() (*Config, error) {
	return Parse(nil)
}

// Parse loads configuration from environ, or from the process environment when environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: "VIPER_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("parse config: VIPER_REQUEST_TIMEOUT must be positive")
	}
	if cfg.SyncTimeout <= 0 {
		return nil, fmt.Errorf("parse config: VIPER_SYNC_TIMEOUT must be positive")
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
