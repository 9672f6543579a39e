// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package feedback schedules and resolves post-watch feedback prompts. When
// a recommendation is accepted a prompt enters the pending state; it becomes
// ready to show after a delay (the movie has plausibly been watched), and
// resolving it feeds a completion or abandonment signal back into learning.
// One prompt per user: scheduling a new one supersedes the old as skipped.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/metrics"
	"github.com/reelpick/reelpick/internal/recommend"
)

// State is the lifecycle state of a feedback prompt.
type State string

const (
	// StatePending means the prompt is scheduled, shown once ready.
	StatePending State = "pending"
	// StateCompleted means the user confirmed finishing the movie.
	StateCompleted State = "completed"
	// StateAbandoned means the user gave up on the movie.
	StateAbandoned State = "abandoned"
	// StateSkipped means the prompt was dismissed or superseded.
	StateSkipped State = "skipped"
	// StateExpired means the prompt aged past retention unanswered.
	StateExpired State = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s != StatePending }

// Prompt is one scheduled feedback request.
type Prompt struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Movie is a snapshot of the accepted candidate; its tags carry the
	// learning signal when the prompt resolves.
	Movie recommend.Candidate `json:"movie"`

	State       State     `json:"state"`
	ScheduledAt time.Time `json:"scheduled_at"`

	// ReadyAt is when the prompt becomes showable.
	ReadyAt time.Time `json:"ready_at"`

	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// Ready reports whether the prompt may be shown at time now.
func (p *Prompt) Ready(now time.Time) bool {
	return p.State == StatePending && !now.Before(p.ReadyAt)
}

var (
	// ErrNoPrompt is returned when the user has no active prompt.
	ErrNoPrompt = errors.New("no active feedback prompt")

	// ErrNotReady is returned when the active prompt exists but its ready
	// delay has not elapsed.
	ErrNotReady = errors.New("feedback prompt not ready yet")
)

// Repository persists prompts. Active means the user's single pending prompt.
type Repository interface {
	SavePrompt(ctx context.Context, p *Prompt) error
	ActivePrompt(ctx context.Context, userID string) (*Prompt, error)
	PendingPrompts(ctx context.Context) ([]*Prompt, error)
	PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ActionSink receives the learning signals synthesized from prompt
// resolution. Implemented by the recommendation engine.
type ActionSink interface {
	RecordAction(ctx context.Context, userID string, c recommend.Candidate, action recommend.Action)
}

// Config tunes the scheduler.
type Config struct {
	// ReadyDelay is how long after acceptance the prompt becomes showable.
	ReadyDelay time.Duration `koanf:"ready_delay" json:"ready_delay"`

	// Retention is how long records are kept; unanswered prompts expire and
	// resolved ones are purged past this age.
	Retention time.Duration `koanf:"retention" json:"retention"`

	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ReadyDelay:    2 * time.Hour,
		Retention:     7 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.ReadyDelay <= 0 {
		return fmt.Errorf("ready_delay must be positive, got %v", c.ReadyDelay)
	}
	if c.Retention <= c.ReadyDelay {
		return fmt.Errorf("retention (%v) must exceed ready_delay (%v)", c.Retention, c.ReadyDelay)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %v", c.SweepInterval)
	}
	return nil
}

// Scheduler owns the prompt lifecycle. It implements
// recommend.FeedbackNotifier and, via Serve, suture.Service for the
// background sweep.
type Scheduler struct {
	cfg    Config
	repo   Repository
	sink   ActionSink
	logger zerolog.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler. sink may be nil, in which case resolution
// signals are dropped.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScheduler(cfg Config, repo Repository, sink ActionSink, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		repo:   repo,
		sink:   sink,
		logger: logger.With().Str("component", "feedback").Logger(),
		now:    time.Now,
	}
}

// Schedule creates a pending prompt for an accepted movie. Any existing
// pending prompt for the user is superseded as skipped first: the newest
// acceptance is the one worth asking about.
func (s *Scheduler) Schedule(ctx context.Context, userID string, c *recommend.Candidate) error {
	now := s.now().UTC()

	if old, err := s.repo.ActivePrompt(ctx, userID); err == nil {
		old.State = StateSkipped
		old.ResolvedAt = now
		if err := s.repo.SavePrompt(ctx, old); err != nil {
			return fmt.Errorf("supersede prompt %s: %w", old.ID, err)
		}
		metrics.FeedbackPrompts.WithLabelValues(string(StateSkipped)).Inc()
	} else if !errors.Is(err, ErrNoPrompt) {
		return fmt.Errorf("look up active prompt: %w", err)
	}

	p := &Prompt{
		ID:          uuid.NewString(),
		UserID:      userID,
		Movie:       *c,
		State:       StatePending,
		ScheduledAt: now,
		ReadyAt:     now.Add(s.cfg.ReadyDelay),
	}
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}

	metrics.FeedbackPrompts.WithLabelValues(string(StatePending)).Inc()
	s.logger.Debug().
		Str("user_id", userID).
		Str("movie_id", c.ID).
		Time("ready_at", p.ReadyAt).
		Msg("feedback prompt scheduled")
	return nil
}

// Prompt returns the user's active prompt once it is ready to show.
func (s *Scheduler) Prompt(ctx context.Context, userID string) (*Prompt, error) {
	p, err := s.repo.ActivePrompt(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.Ready(s.now().UTC()) {
		return nil, ErrNotReady
	}
	return p, nil
}

// Complete resolves the active prompt as completed and reinforces the
// movie's tags.
func (s *Scheduler) Complete(ctx context.Context, userID string) error {
	return s.resolve(ctx, userID, StateCompleted, recommend.ActionFeedbackCompleted)
}

// Abandon resolves the active prompt as abandoned and weakens the movie's
// tags.
func (s *Scheduler) Abandon(ctx context.Context, userID string) error {
	return s.resolve(ctx, userID, StateAbandoned, recommend.ActionFeedbackAbandoned)
}

// Skip dismisses the active prompt without a learning signal.
func (s *Scheduler) Skip(ctx context.Context, userID string) error {
	p, err := s.repo.ActivePrompt(ctx, userID)
	if err != nil {
		return err
	}
	p.State = StateSkipped
	p.ResolvedAt = s.now().UTC()
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	metrics.FeedbackPrompts.WithLabelValues(string(StateSkipped)).Inc()
	return nil
}

func (s *Scheduler) resolve(ctx context.Context, userID string, state State, action recommend.Action) error {
	p, err := s.repo.ActivePrompt(ctx, userID)
	if err != nil {
		return err
	}

	p.State = state
	p.ResolvedAt = s.now().UTC()
	if err := s.repo.SavePrompt(ctx, p); err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	metrics.FeedbackPrompts.WithLabelValues(string(state)).Inc()

	if s.sink != nil {
		s.sink.RecordAction(ctx, userID, p.Movie, action)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("movie_id", p.Movie.ID).
		Str("state", string(state)).
		Msg("feedback prompt resolved")
	return nil
}

// Serve runs the retention sweep until the context is canceled. It is a
// suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.SweepInterval).Msg("feedback sweep started")

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("feedback sweep failed")
			}
		}
	}
}

// Sweep expires pending prompts older than retention and purges resolved
// records past the same age.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now().UTC()
	cutoff := now.Add(-s.cfg.Retention)

	pending, err := s.repo.PendingPrompts(ctx)
	if err != nil {
		return fmt.Errorf("list pending prompts: %w", err)
	}

	expired := 0
	for _, p := range pending {
		if p.ScheduledAt.After(cutoff) {
			continue
		}
		p.State = StateExpired
		p.ResolvedAt = now
		if err := s.repo.SavePrompt(ctx, p); err != nil {
			return fmt.Errorf("expire prompt %s: %w", p.ID, err)
		}
		metrics.FeedbackPrompts.WithLabelValues(string(StateExpired)).Inc()
		expired++
	}

	purged, err := s.repo.PurgeResolvedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge resolved prompts: %w", err)
	}

	if expired > 0 || purged > 0 {
		s.logger.Info().Int("expired", expired).Int("purged", purged).Msg("feedback sweep completed")
	}
	return nil
}
