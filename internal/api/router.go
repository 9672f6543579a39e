// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string

	// RateLimit caps requests per client IP per minute. Zero disables
	// rate limiting.
	RateLimit int
}

// NewRouter wires all endpoints onto a Chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.requestLogger())
	r.Use(chimiddleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         86400,
		}))
	}

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByRealIP(cfg.RateLimit, time.Minute))
		}

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/recommendation", h.Recommend)
			r.Post("/picks", h.Picks)
			r.Post("/picks/replace", h.ReplacePick)
			r.Post("/actions", h.RecordAction)
			r.Get("/feedback", h.FeedbackPrompt)
			r.Post("/feedback/{movieID}", h.ResolveFeedback)
			r.Get("/sessions", h.Sessions)
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Session)
			r.Get("/replay", h.Replay)
		})
	})

	return r
}
