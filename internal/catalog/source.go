// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/reelpick/reelpick/internal/metrics"
	"github.com/reelpick/reelpick/internal/recommend"
)

// ErrUnavailable is returned while the breaker is open: the upstream has
// failed repeatedly and calls are short-circuited until the cooldown passes.
var ErrUnavailable = errors.New("catalog unavailable")

// consecutiveFailureTrip is how many consecutive fetch failures open the
// breaker.
const consecutiveFailureTrip = 5

// Source wraps a Fetcher in a circuit breaker and implements
// recommend.CandidateSource.
type Source struct {
	fetcher Fetcher
	breaker *gobreaker.CircuitBreaker[[]recommend.Candidate]
	logger  zerolog.Logger
}

// NewSource creates a breaker-protected candidate source.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSource(fetcher Fetcher, logger zerolog.Logger) *Source {
	log := logger.With().Str("component", "catalog").Logger()

	settings := gobreaker.Settings{
		Name: "catalog",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailureTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("catalog breaker state changed")
		},
	}

	return &Source{
		fetcher: fetcher,
		breaker: gobreaker.NewCircuitBreaker[[]recommend.Candidate](settings),
		logger:  log,
	}
}

// FetchCandidates fetches through the breaker. An open breaker maps to
// ErrUnavailable so callers surface a clean retry-later to the user.
func (s *Source) FetchCandidates(ctx context.Context, languages []string, contentType recommend.ContentType, limit int) ([]recommend.Candidate, error) {
	pool, err := s.breaker.Execute(func() ([]recommend.Candidate, error) {
		return s.fetcher.Fetch(ctx, languages, contentType, limit)
	})
	if err != nil {
		metrics.CatalogFetchErrors.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("catalog fetch: %w", err)
	}
	return pool, nil
}
