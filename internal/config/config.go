// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package config loads the application configuration from layered sources:
// built-in defaults, an optional YAML file, then environment variables, with
// later layers winning.
package config

import (
	"fmt"
	"time"

	"github.com/reelpick/reelpick/internal/feedback"
	"github.com/reelpick/reelpick/internal/logging"
	"github.com/reelpick/reelpick/internal/recommend"
	"github.com/reelpick/reelpick/internal/store"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig     `koanf:"server"`
	Logging  logging.Config   `koanf:"logging"`
	Store    store.Config     `koanf:"store"`
	Catalog  CatalogConfig    `koanf:"catalog"`
	Feedback feedback.Config  `koanf:"feedback"`
	Engine   recommend.Config `koanf:"engine"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// ReadTimeout, WriteTimeout and ShutdownTimeout bound request handling
	// and graceful shutdown.
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS entirely.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimit caps requests per client IP per minute. Zero disables
	// rate limiting.
	RateLimit int `koanf:"rate_limit"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CatalogConfig locates the candidate source.
type CatalogConfig struct {
	// Path is the JSON catalog file.
	Path string `koanf:"path"`
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Feedback.Validate(); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
