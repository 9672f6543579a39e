// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package ledger records every recommendation attempt as an immutable
// session: the profile snapshot, the evaluated candidates, per-candidate
// rejection rules, the scored survivors with the weights they were scored
// under, and the terminal outcome. A deterministic snapshot hash makes any
// session exactly replayable.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/metrics"
	"github.com/reelpick/reelpick/internal/recommend"
)

// ErrSessionNotFound is returned when a session id has no persisted record.
var ErrSessionNotFound = errors.New("session not found")

// Session is the immutable record of one recommendation attempt.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`

	// Profile is the intent snapshot the attempt ran under.
	Profile *recommend.Profile `json:"profile"`

	// CandidateIDs lists every evaluated candidate, sorted.
	CandidateIDs []string `json:"candidate_ids"`

	// Rejections maps a candidate id to the first rule that rejected it at
	// the strictest level.
	Rejections map[string]recommend.Rule `json:"rejections,omitempty"`

	// Scored holds the validated candidates, sorted by id, and Weights the
	// affinity vector they were scored with. Together they make the ranking
	// reproducible.
	Scored  []recommend.Candidate `json:"scored,omitempty"`
	Weights recommend.TagWeights  `json:"weights,omitempty"`

	// PenaltyTags and PenaltyStrength capture the session-local
	// rejected-tag bias the ranking ran under, when there was one. Replay
	// reapplies the bias; without it a post-rejection session would
	// re-rank unbiased and spuriously diverge.
	PenaltyTags     []string `json:"penalty_tags,omitempty"`
	PenaltyStrength float64  `json:"penalty_strength,omitempty"`

	MovieID     string            `json:"movie_id,omitempty"`
	Outcome     recommend.Outcome `json:"outcome"`
	CompletedAt time.Time         `json:"completed_at"`

	// SnapshotHash is the deterministic digest of the session's inputs,
	// computed at completion.
	SnapshotHash string `json:"snapshot_hash"`
}

// Repository persists completed sessions.
type Repository interface {
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]*Session, error)
}

// Ledger opens attempt logs and serves completed sessions for replay. It
// implements recommend.AttemptRecorder.
type Ledger struct {
	repo   Repository
	logger zerolog.Logger
}

// New creates a ledger backed by repo.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(repo Repository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// Start opens an attempt log for one recommendation attempt.
func (l *Ledger) Start(_ context.Context, p *recommend.Profile) recommend.AttemptLog {
	return &attempt{
		ledger: l,
		session: Session{
			ID:        uuid.NewString(),
			UserID:    p.UserID,
			StartedAt: time.Now().UTC(),
			Profile:   cloneProfile(p),
		},
	}
}

// Get returns a completed session by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Session, error) {
	return l.repo.GetSession(ctx, id)
}

// List returns the user's most recent sessions, newest first.
func (l *Ledger) List(ctx context.Context, userID string, limit int) ([]*Session, error) {
	return l.repo.ListSessions(ctx, userID, limit)
}

// attempt is one in-flight session record. Write-once: Complete finalizes
// exactly one time and duplicate calls are no-ops.
type attempt struct {
	ledger *Ledger

	mu        sync.Mutex
	session   Session
	completed bool
}

func (a *attempt) ID() string { return a.session.ID }

func (a *attempt) AddCandidates(ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed {
		return
	}
	a.session.CandidateIDs = append(a.session.CandidateIDs, ids...)
}

func (a *attempt) AddRejection(id string, rule recommend.Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed {
		return
	}
	if a.session.Rejections == nil {
		a.session.Rejections = make(map[string]recommend.Rule)
	}
	a.session.Rejections[id] = rule
}

func (a *attempt) AddScoredCandidates(cands []recommend.Candidate, weights recommend.TagWeights) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed {
		return
	}
	a.session.Scored = append(a.session.Scored, cands...)
	a.session.Weights = weights.Clone()
}

func (a *attempt) AddPenalty(tags []string, strength float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.completed {
		return
	}
	a.session.PenaltyTags = append([]string(nil), tags...)
	a.session.PenaltyStrength = strength
}

// Complete finalizes and persists the session. Persistence is retried once;
// a second failure is logged and the session is lost, never the request.
func (a *attempt) Complete(ctx context.Context, movieID string, outcome recommend.Outcome) {
	a.mu.Lock()
	if a.completed {
		a.mu.Unlock()
		return
	}
	a.completed = true

	a.session.MovieID = movieID
	a.session.Outcome = outcome
	a.session.CompletedAt = time.Now().UTC()
	canonicalize(&a.session)
	a.session.SnapshotHash = snapshotHash(&a.session)

	s := a.session
	a.mu.Unlock()

	start := time.Now()
	err := a.ledger.repo.SaveSession(ctx, &s)
	if err != nil {
		err = a.ledger.repo.SaveSession(ctx, &s)
	}
	metrics.ObserveStoreOp("save", "session", time.Since(start))

	if err != nil {
		metrics.DroppedWrites.WithLabelValues("session").Inc()
		a.ledger.logger.Error().Err(err).
			Str("session_id", s.ID).
			Str("user_id", s.UserID).
			Msg("session persistence failed after retry")
		return
	}

	a.ledger.logger.Debug().
		Str("session_id", s.ID).
		Str("outcome", outcome.String()).
		Str("hash", s.SnapshotHash).
		Msg("session recorded")
}

// canonicalize sorts the session's set-valued fields so equal sets produce
// equal serializations regardless of insertion order.
func canonicalize(s *Session) {
	sort.Strings(s.CandidateIDs)
	s.CandidateIDs = dedupe(s.CandidateIDs)

	sort.Slice(s.Scored, func(i, j int) bool { return s.Scored[i].ID < s.Scored[j].ID })
	sort.Strings(s.PenaltyTags)

	if s.Profile != nil {
		// PreferredLanguages stays in insertion order: index 0 is the
		// primary language the cascade relaxes to, so order is meaning.
		sort.Strings(s.Profile.Platforms)
		sort.Strings(s.Profile.IntentTags)
		sort.Strings(s.Profile.Seen)
		sort.Strings(s.Profile.NotTonight)
		sort.Strings(s.Profile.Abandoned)
	}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// hashedSnapshot is the subset of session state covered by the digest: the
// inputs that determine the outcome, not the timestamps or the outcome
// itself.
type hashedSnapshot struct {
	UserID          string                    `json:"user_id"`
	Profile         *recommend.Profile        `json:"profile"`
	Candidates      []string                  `json:"candidates"`
	Rejections      map[string]recommend.Rule `json:"rejections"`
	Scored          []recommend.Candidate     `json:"scored"`
	Weights         recommend.TagWeights      `json:"weights"`
	PenaltyTags     []string                  `json:"penalty_tags,omitempty"`
	PenaltyStrength float64                   `json:"penalty_strength,omitempty"`
}

// snapshotHash returns the hex sha256 of the canonical JSON encoding of the
// session's decision inputs. Map keys serialize in sorted order, so the
// digest is stable for equal content.
func snapshotHash(s *Session) string {
	b, err := json.Marshal(hashedSnapshot{
		UserID:          s.UserID,
		Profile:         s.Profile,
		Candidates:      s.CandidateIDs,
		Rejections:      s.Rejections,
		Scored:          s.Scored,
		Weights:         s.Weights,
		PenaltyTags:     s.PenaltyTags,
		PenaltyStrength: s.PenaltyStrength,
	})
	if err != nil {
		// Only unmarshalable types reach here, and the snapshot has none.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func cloneProfile(p *recommend.Profile) *recommend.Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.PreferredLanguages = append([]string(nil), p.PreferredLanguages...)
	out.Platforms = append([]string(nil), p.Platforms...)
	out.IntentTags = append([]string(nil), p.IntentTags...)
	out.Seen = append([]string(nil), p.Seen...)
	out.NotTonight = append([]string(nil), p.NotTonight...)
	out.Abandoned = append([]string(nil), p.Abandoned...)
	return &out
}
