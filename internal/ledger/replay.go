// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package ledger

import (
	"context"
	"fmt"

	"github.com/reelpick/reelpick/internal/recommend"
)

// ReplayResult compares a recorded session against a fresh re-scoring of its
// snapshot.
type ReplayResult struct {
	SessionID string            `json:"session_id"`
	Outcome   recommend.Outcome `json:"outcome"`

	// RecordedMovieID is what the session produced at the time.
	RecordedMovieID string `json:"recorded_movie_id,omitempty"`

	// ReplayedMovieID is the top of the re-scored snapshot.
	ReplayedMovieID string `json:"replayed_movie_id,omitempty"`

	// Ranking is the full re-scored order of the recorded survivors.
	Ranking []string `json:"ranking,omitempty"`

	// Deterministic reports whether the replay reproduced the recorded
	// pick. False indicates either scoring-config drift since the session
	// was recorded or a session whose ranking carried session-local bias.
	Deterministic bool `json:"deterministic"`

	SnapshotHash string `json:"snapshot_hash"`
}

// Replay loads a completed session and re-scores its recorded survivors with
// the recorded weights. With an unchanged scoring configuration the replay
// reproduces the recorded pick exactly.
func (l *Ledger) Replay(ctx context.Context, sessionID string, cfg *recommend.Config) (*ReplayResult, error) {
	s, err := l.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	res := &ReplayResult{
		SessionID:       s.ID,
		Outcome:         s.Outcome,
		RecordedMovieID: s.MovieID,
		SnapshotHash:    s.SnapshotHash,
	}

	if s.Outcome != recommend.OutcomeMovieRecommended || len(s.Scored) == 0 {
		// Nothing was picked, so there is nothing to reproduce; an empty
		// survivor set replaying to an empty ranking is trivially faithful.
		res.Deterministic = s.MovieID == ""
		return res, nil
	}

	if cfg == nil {
		cfg = recommend.DefaultConfig()
	}
	scorer := recommend.NewScorer(cfg)
	var penalty map[string]struct{}
	if len(s.PenaltyTags) > 0 {
		penalty = make(map[string]struct{}, len(s.PenaltyTags))
		for _, tag := range s.PenaltyTags {
			penalty[tag] = struct{}{}
		}
	}
	ranked := scorer.RankBiased(s.Scored, s.Profile, s.Weights, penalty, s.PenaltyStrength)

	res.Ranking = make([]string, len(ranked))
	for i := range ranked {
		res.Ranking[i] = ranked[i].ID
	}
	res.ReplayedMovieID = ranked[0].ID
	res.Deterministic = res.ReplayedMovieID == s.MovieID

	if !res.Deterministic {
		l.logger.Warn().
			Str("session_id", s.ID).
			Str("recorded", s.MovieID).
			Str("replayed", res.ReplayedMovieID).
			Msg("replay diverged from recorded pick")
	}

	return res, nil
}
