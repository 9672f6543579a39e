// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package learning

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/metrics"
	"github.com/reelpick/reelpick/internal/recommend"
)

// PointsState is the persisted engagement record for one user.
type PointsState struct {
	// Points is the cumulative engagement total.
	Points int64 `json:"points"`

	// FloorPickCount is the narrowest pick count the user has ever reached.
	// Once engagement earns a narrower carousel it never widens again, even
	// if the raw tier math would say otherwise after a config change.
	FloorPickCount int `json:"floor_pick_count"`
}

// PointsRepository persists per-user engagement state.
type PointsRepository interface {
	LoadPoints(ctx context.Context, userID string) (PointsState, error)
	SavePoints(ctx context.Context, userID string, st PointsState) error
}

type pointsWrite struct {
	userID string
	state  PointsState
}

// PointsStore accumulates engagement points and maps them to the carousel
// pick count. It implements recommend.PointsSource and suture.Service. Safe
// for concurrent use.
type PointsStore struct {
	cfg    recommend.PointsConfig
	repo   PointsRepository
	logger zerolog.Logger

	users *userMap[PointsState]
	queue chan pointsWrite
}

// NewPointsStore creates a points store backed by repo. queueSize bounds the
// async persistence queue.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPointsStore(cfg recommend.PointsConfig, repo PointsRepository, queueSize int, logger zerolog.Logger) *PointsStore {
	if queueSize < 1 {
		queueSize = 1
	}
	return &PointsStore{
		cfg:    cfg,
		repo:   repo,
		logger: logger.With().Str("component", "points").Logger(),
		users:  newUserMap[PointsState](),
		queue:  make(chan pointsWrite, queueSize),
	}
}

// PickCount returns the number of simultaneous picks the user's engagement
// tier allows, honoring the persisted floor.
func (s *PointsStore) PickCount(ctx context.Context, userID string) (int, error) {
	u := s.users.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureLoaded(ctx, userID, u); err != nil {
		return 0, err
	}
	return s.effectivePickCount(u.state), nil
}

// Points returns the user's raw cumulative total.
func (s *PointsStore) Points(ctx context.Context, userID string) (int64, error) {
	u := s.users.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureLoaded(ctx, userID, u); err != nil {
		return 0, err
	}
	return u.state.Points, nil
}

// Record accumulates the action's point value, ratchets the floor when the
// new total reaches a narrower tier, and enqueues a persistence snapshot.
// Zero-valued actions are no-ops.
func (s *PointsStore) Record(ctx context.Context, userID string, action recommend.Action) {
	delta := s.cfg.Delta(action)
	if delta == 0 {
		return
	}

	u := s.users.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureLoaded(ctx, userID, u); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("points load failed, signal dropped")
		return
	}

	u.state.Points += delta
	tier := s.cfg.PickCountFor(u.state.Points)
	if u.state.FloorPickCount == 0 || tier < u.state.FloorPickCount {
		u.state.FloorPickCount = tier
	}

	s.enqueue(pointsWrite{userID: userID, state: u.state})
}

// effectivePickCount applies the floor ratchet to the tier table's answer.
func (s *PointsStore) effectivePickCount(st PointsState) int {
	count := s.cfg.PickCountFor(st.Points)
	if st.FloorPickCount > 0 && st.FloorPickCount < count {
		count = st.FloorPickCount
	}
	return count
}

// ensureLoaded lazily populates the in-memory state. Caller holds u.mu.
func (s *PointsStore) ensureLoaded(ctx context.Context, userID string, u *userState[PointsState]) error {
	if u.loaded {
		return nil
	}
	st, err := s.repo.LoadPoints(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		st = PointsState{}
	case err != nil:
		return err
	}
	u.state = st
	u.loaded = true
	return nil
}

func (s *PointsStore) enqueue(w pointsWrite) {
	select {
	case s.queue <- w:
	default:
		metrics.DroppedWrites.WithLabelValues("points").Inc()
		s.logger.Warn().Str("user_id", w.userID).Msg("points write queue full, snapshot dropped")
	}
}

// Serve drains the persistence queue until the context is canceled.
func (s *PointsStore) Serve(ctx context.Context) error {
	s.logger.Info().Int("queue_size", cap(s.queue)).Msg("points writer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-s.queue:
			s.flush(ctx, w)
		}
	}
}

func (s *PointsStore) flush(ctx context.Context, w pointsWrite) {
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.SavePoints(saveCtx, w.userID, w.state)
	metrics.ObserveStoreOp("save", "points", time.Since(start))
	if err != nil {
		metrics.DroppedWrites.WithLabelValues("points").Inc()
		s.logger.Error().Err(err).Str("user_id", w.userID).Msg("points persistence failed")
	}
}
