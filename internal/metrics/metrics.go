// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package metrics provides Prometheus instrumentation for the recommendation
// engine: request throughput, fallback depth, exhaustion, pick replacement,
// learning-signal flow, and store latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendationRequests counts recommendation attempts by terminal outcome.
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_recommendation_requests_total",
			Help: "Total recommendation attempts by terminal outcome",
		},
		[]string{"outcome"}, // "movie_recommended", "no_valid_movie", "error"
	)

	// FallbackLevelReached records the relaxation level at which a
	// recommendation was produced. Level 0 means the full profile matched.
	FallbackLevelReached = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelpick_fallback_level",
			Help:    "Profile relaxation level at which a pick was produced",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	// ValidationRejections counts candidate rejections by failing rule.
	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_validation_rejections_total",
			Help: "Candidates rejected during validation, by rule",
		},
		[]string{"rule"},
	)

	// PickReplacements counts one-shot carousel replacements by rejection reason.
	PickReplacements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_pick_replacements_total",
			Help: "Carousel pick replacements served, by rejection reason",
		},
		[]string{"reason"},
	)

	// LearningSignals counts weight-update signals by action.
	LearningSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_learning_signals_total",
			Help: "Tag-weight learning signals applied, by action",
		},
		[]string{"action"},
	)

	// DroppedWrites counts best-effort persistence writes dropped because the
	// write queue was saturated. Losing one signal degrades personalization
	// gradually, not correctness, but the drop rate should stay near zero.
	DroppedWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_dropped_writes_total",
			Help: "Best-effort persistence writes dropped at a full queue",
		},
		[]string{"kind"}, // "weights", "points"
	)

	// StoreOpDuration observes BadgerDB operation latency.
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelpick_store_op_duration_seconds",
			Help:    "Duration of durable store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "kind"},
	)

	// CatalogFetchErrors counts upstream candidate-supply failures.
	CatalogFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelpick_catalog_fetch_errors_total",
			Help: "Upstream catalog fetch failures (timeouts, breaker opens)",
		},
	)

	// FeedbackPrompts counts pending-feedback transitions by terminal state.
	FeedbackPrompts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelpick_feedback_prompts_total",
			Help: "Pending feedback prompt resolutions, by terminal state",
		},
		[]string{"state"},
	)
)

// ObserveStoreOp records a store operation duration.
func ObserveStoreOp(op, kind string, d time.Duration) {
	StoreOpDuration.WithLabelValues(op, kind).Observe(d.Seconds())
}
