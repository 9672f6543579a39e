// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package main is the entry point for the Reelpick server.
//
// Reelpick is a self-hosted movie night recommendation engine. It picks a
// handful of movies matched to a stated mood and a hard-constraint profile,
// relaxes those constraints in a fixed order when the catalog runs thin, and
// learns tag affinities from every accept, reject and post-watch feedback
// signal.
//
// Startup order:
//
//  1. Configuration: layered via Koanf v2 (defaults, then config.yaml, then
//     REELPICK_* environment variables)
//  2. Store: BadgerDB for weights, points, sessions and feedback prompts
//  3. Catalog: JSON file source behind a circuit breaker
//  4. Learning: tag-weight and engagement-points stores with async writers
//  5. Ledger and feedback scheduler
//  6. Engine and HTTP API (Chi)
//  7. Suture supervision tree runs everything until SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelpick/reelpick/internal/api"
	"github.com/reelpick/reelpick/internal/catalog"
	"github.com/reelpick/reelpick/internal/config"
	"github.com/reelpick/reelpick/internal/feedback"
	"github.com/reelpick/reelpick/internal/ledger"
	"github.com/reelpick/reelpick/internal/learning"
	"github.com/reelpick/reelpick/internal/logging"
	"github.com/reelpick/reelpick/internal/recommend"
	"github.com/reelpick/reelpick/internal/store"
	"github.com/reelpick/reelpick/internal/supervisor"
	"github.com/reelpick/reelpick/internal/supervisor/services"
)

// actionSink forwards feedback resolutions to the engine. The scheduler is
// built before the engine (the engine wants it as a notifier), so the sink
// is bound after both exist.
type actionSink struct {
	engine *recommend.Engine
}

func (s *actionSink) RecordAction(ctx context.Context, userID string, c recommend.Candidate, action recommend.Action) {
	if s.engine != nil {
		s.engine.RecordAction(ctx, userID, c, action)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("catalog", cfg.Catalog.Path).
		Msg("Starting Reelpick")

	logger := logging.Logger()

	db, err := store.Open(cfg.Store, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	fileSource, err := catalog.NewFileSource(cfg.Catalog.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Catalog.Path).Msg("Failed to load catalog")
	}
	logging.Info().Int("titles", fileSource.Len()).Msg("Catalog loaded")
	source := catalog.NewSource(fileSource, logger)

	weightStore := learning.NewWeightStore(cfg.Engine.Learning, db, logger)
	pointsStore := learning.NewPointsStore(cfg.Engine.Points, db, cfg.Engine.Learning.QueueSize, logger)
	sessionLedger := ledger.New(db, logger)

	sink := &actionSink{}
	scheduler := feedback.NewScheduler(cfg.Feedback, db, sink, logger)

	engine, err := recommend.New(&cfg.Engine, logger, recommend.Deps{
		Source:   source,
		Filter:   catalog.NewMaturityFilter(),
		Weights:  weightStore,
		Points:   pointsStore,
		Recorder: sessionLedger,
		Feedback: scheduler,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build recommendation engine")
	}
	sink.engine = engine

	handler := api.NewHandler(engine, sessionLedger, scheduler, &cfg.Engine, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// sutureslog speaks slog; bridge it to zerolog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddStorageService(db)
	tree.AddLearningService(weightStore)
	tree.AddLearningService(pointsStore)
	tree.AddLearningService(scheduler)
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Reelpick stopped")
}
