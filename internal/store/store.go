// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package store persists all Reelpick state in a single embedded Badger
// database: tag weight vectors, engagement points, completed sessions, and
// feedback prompts. It implements the repository interfaces declared by the
// learning, ledger and feedback packages.
package store

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/metrics"
)

// Key prefixes. One keyspace, namespaced per record kind.
const (
	prefixWeights       = "weights:"
	prefixPoints        = "points:"
	prefixSession       = "session:"
	prefixSessionByUser = "sessionuser:"
	prefixPrompt        = "prompt:"
	prefixActivePrompt  = "promptactive:"
)

// Config tunes the embedded database.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string `koanf:"path" json:"path"`

	// InMemory keeps everything in RAM; for tests and ephemeral runs.
	InMemory bool `koanf:"in_memory" json:"in_memory"`

	// GCInterval is how often the value-log garbage collector runs.
	GCInterval time.Duration `koanf:"gc_interval" json:"gc_interval"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Path:       "data/reelpick",
		GCInterval: 10 * time.Minute,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("store path required unless in_memory is set")
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("gc_interval must be positive, got %v", c.GCInterval)
	}
	return nil
}

// Store is the embedded database handle. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	cfg    Config
	logger zerolog.Logger
}

// Open opens (or creates) the database.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.With().Str("component", "store").Logger()

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(badgerLogger{log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Store{db: db, cfg: cfg, logger: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Serve runs periodic value-log garbage collection until the context is
// canceled. It is a suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	if s.cfg.InMemory {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// ErrNoRewrite just means there was nothing worth collecting.
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				s.logger.Warn().Err(err).Msg("value log gc failed")
			}
		}
	}
}

// setJSON marshals v and writes it under key.
func (s *Store) setJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
}

// getJSON reads key into v. Returns badger.ErrKeyNotFound when absent.
func (s *Store) getJSON(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(b []byte) error {
			return json.Unmarshal(b, v)
		})
	})
}

func (s *Store) observe(op, kind string, start time.Time) {
	metrics.ObserveStoreOp(op, kind, time.Since(start))
}

// badgerLogger adapts zerolog to badger's logger interface.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}
