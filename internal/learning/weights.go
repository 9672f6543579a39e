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

// ErrNotFound is returned by repositories when a user has no persisted state
// yet. Stores treat it as "start from defaults", not as a failure.
var ErrNotFound = errors.New("not found")

// saveTimeout bounds a single async persistence call.
const saveTimeout = 5 * time.Second

// WeightRepository persists per-user tag weight vectors.
type WeightRepository interface {
	LoadWeights(ctx context.Context, userID string) (recommend.TagWeights, error)
	SaveWeights(ctx context.Context, userID string, w recommend.TagWeights) error
}

// weightWrite is one queued persistence job: a full snapshot of the vector,
// so dropped or reordered jobs converge to the latest state rather than
// losing individual deltas.
type weightWrite struct {
	userID  string
	weights recommend.TagWeights
}

// WeightStore holds tag affinity vectors in memory and persists them through
// a bounded async queue. It implements recommend.WeightSource and
// suture.Service (the writer loop). Safe for concurrent use.
type WeightStore struct {
	cfg    recommend.LearningConfig
	repo   WeightRepository
	logger zerolog.Logger

	users *userMap[recommend.TagWeights]
	queue chan weightWrite
}

// NewWeightStore creates a weight store backed by repo.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewWeightStore(cfg recommend.LearningConfig, repo WeightRepository, logger zerolog.Logger) *WeightStore {
	return &WeightStore{
		cfg:    cfg,
		repo:   repo,
		logger: logger.With().Str("component", "weights").Logger(),
		users:  newUserMap[recommend.TagWeights](),
		queue:  make(chan weightWrite, cfg.QueueSize),
	}
}

// Weights returns the user's current vector. Unknown users get an empty
// vector, which scores every tag at the default weight.
func (s *WeightStore) Weights(ctx context.Context, userID string) (recommend.TagWeights, error) {
	u := s.users.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureLoaded(ctx, userID, u); err != nil {
		return nil, err
	}
	return u.state.Clone(), nil
}

// Apply adjusts the weight of every tag on the acted-on candidate by the
// action's configured delta and enqueues a persistence snapshot. Actions with
// a zero delta (already_seen) are deliberate no-ops: seen-ness says nothing
// about taste.
func (s *WeightStore) Apply(ctx context.Context, userID string, c *recommend.Candidate, action recommend.Action) {
	delta := s.cfg.Delta(action)
	if delta == 0 || c == nil || len(c.Tags) == 0 {
		return
	}

	u := s.users.get(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := s.ensureLoaded(ctx, userID, u); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("weight load failed, signal dropped")
		return
	}

	u.state = applyDelta(u.state, c.Tags, delta, s.cfg.MinWeight, s.cfg.MaxWeight)
	s.enqueue(weightWrite{userID: userID, weights: u.state.Clone()})
}

// ensureLoaded lazily populates the in-memory vector from the repository.
// Caller holds u.mu.
func (s *WeightStore) ensureLoaded(ctx context.Context, userID string, u *userState[recommend.TagWeights]) error {
	if u.loaded {
		return nil
	}
	w, err := s.repo.LoadWeights(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		w = recommend.TagWeights{}
	case err != nil:
		return err
	}
	u.state = w
	u.loaded = true
	return nil
}

// enqueue offers a write to the async queue, dropping it when full.
func (s *WeightStore) enqueue(w weightWrite) {
	select {
	case s.queue <- w:
	default:
		metrics.DroppedWrites.WithLabelValues("weights").Inc()
		s.logger.Warn().Str("user_id", w.userID).Msg("weight write queue full, snapshot dropped")
	}
}

// Serve drains the persistence queue until the context is canceled. It is a
// suture.Service; the supervisor restarts it on failure.
func (s *WeightStore) Serve(ctx context.Context) error {
	s.logger.Info().Int("queue_size", cap(s.queue)).Msg("weight writer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-s.queue:
			s.flush(ctx, w)
		}
	}
}

func (s *WeightStore) flush(ctx context.Context, w weightWrite) {
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.SaveWeights(saveCtx, w.userID, w.weights)
	metrics.ObserveStoreOp("save", "weights", time.Since(start))
	if err != nil {
		metrics.DroppedWrites.WithLabelValues("weights").Inc()
		s.logger.Error().Err(err).Str("user_id", w.userID).Msg("weight persistence failed")
	}
}

// applyDelta returns a new vector with delta added to each tag's weight,
// clamped to [min, max]. The input is not mutated.
func applyDelta(w recommend.TagWeights, tags []string, delta, min, max float64) recommend.TagWeights {
	out := w.Clone()
	for _, tag := range tags {
		v := out.Get(tag) + delta
		if v < min {
			v = min
		}
		if v > max {
			v = max
		}
		out[tag] = v
	}
	return out
}
