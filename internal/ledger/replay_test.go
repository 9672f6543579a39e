// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/recommend"
)

func TestReplayReproducesRecordedPick(t *testing.T) {
	cfg := recommend.DefaultConfig()
	scorer := recommend.NewScorer(cfg)
	p := ledgerProfile()
	weights := recommend.TagWeights{"feel_good": 1.8}

	scored := []recommend.Candidate{
		{ID: "m1", GoodScore: 6, Tags: []string{"feel_good"}},
		{ID: "m2", GoodScore: 8, Tags: []string{"dark"}},
		{ID: "m3", GoodScore: 7, Tags: []string{"feel_good", "uplifting"}},
	}
	winner := scorer.Rank(scored, p, weights)[0].ID

	repo := newMemRepo()
	l := New(repo, zerolog.Nop())
	id := recordSession(t, repo, []string{"m1", "m2", "m3"}, scored, weights,
		winner, recommend.OutcomeMovieRecommended)

	res, err := l.Replay(context.Background(), id, cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.Deterministic {
		t.Errorf("replay diverged: recorded %s, replayed %s", res.RecordedMovieID, res.ReplayedMovieID)
	}
	if res.ReplayedMovieID != winner {
		t.Errorf("replayed %s, want %s", res.ReplayedMovieID, winner)
	}
	if len(res.Ranking) != 3 {
		t.Errorf("ranking = %v", res.Ranking)
	}
}

func TestReplayReappliesRejectedTagBias(t *testing.T) {
	cfg := recommend.DefaultConfig()
	scorer := recommend.NewScorer(cfg)
	p := ledgerProfile()
	weights := recommend.TagWeights{"feel_good": 1.0}

	// Under the full-strength bias against "feel_good" the biased winner
	// differs from the unbiased one; replay must reproduce the biased pick.
	scored := []recommend.Candidate{
		{ID: "m1", GoodScore: 7, Tags: []string{"feel_good"}},
		{ID: "m2", GoodScore: 7, Tags: []string{"uplifting"}},
	}
	penalty := map[string]struct{}{"feel_good": {}}
	biasedWinner := scorer.RankBiased(scored, p, weights, penalty, 1.0)[0].ID
	unbiasedWinner := scorer.Rank(scored, p, weights)[0].ID
	if biasedWinner == unbiasedWinner {
		t.Fatalf("fixture broken: bias did not change the winner (%s)", biasedWinner)
	}

	repo := newMemRepo()
	l := New(repo, zerolog.Nop())
	a := l.Start(context.Background(), p)
	a.AddCandidates([]string{"m1", "m2"})
	a.AddScoredCandidates(scored, weights)
	a.AddPenalty([]string{"feel_good"}, 1.0)
	a.Complete(context.Background(), biasedWinner, recommend.OutcomeMovieRecommended)

	res, err := l.Replay(context.Background(), a.ID(), cfg)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.Deterministic {
		t.Errorf("biased session diverged: recorded %s, replayed %s", res.RecordedMovieID, res.ReplayedMovieID)
	}
	if res.ReplayedMovieID != biasedWinner {
		t.Errorf("replayed %s, want %s", res.ReplayedMovieID, biasedWinner)
	}
}

func TestReplayDetectsConfigDrift(t *testing.T) {
	cfg := recommend.DefaultConfig()
	p := ledgerProfile()
	weights := recommend.TagWeights{"feel_good": 2.0}

	// m1 wins only through its intent-tag contribution.
	scored := []recommend.Candidate{
		{ID: "m1", GoodScore: 6, Tags: []string{"feel_good"}},
		{ID: "m2", GoodScore: 7, Tags: []string{"dark"}},
	}
	winner := recommend.NewScorer(cfg).Rank(scored, p, weights)[0].ID
	if winner != "m1" {
		t.Fatalf("fixture broken: winner = %s", winner)
	}

	repo := newMemRepo()
	l := New(repo, zerolog.Nop())
	id := recordSession(t, repo, []string{"m1", "m2"}, scored, weights,
		winner, recommend.OutcomeMovieRecommended)

	drifted := recommend.DefaultConfig()
	drifted.Scoring.TagWeightScale = 0.01
	drifted.Scoring.MoodBonus = 0

	res, err := l.Replay(context.Background(), id, drifted)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Deterministic {
		t.Error("expected divergence under a drifted scoring config")
	}
	if res.ReplayedMovieID != "m2" {
		t.Errorf("replayed = %s, want m2", res.ReplayedMovieID)
	}
}

func TestReplayExhaustedSession(t *testing.T) {
	repo := newMemRepo()
	l := New(repo, zerolog.Nop())
	id := recordSession(t, repo, []string{"m1"}, nil, nil, "", recommend.OutcomeNoValidMovie)

	res, err := l.Replay(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !res.Deterministic {
		t.Error("an exhausted session replays trivially")
	}
	if res.ReplayedMovieID != "" || len(res.Ranking) != 0 {
		t.Errorf("unexpected replay output: %+v", res)
	}
}

func TestReplayUnknownSession(t *testing.T) {
	l := New(newMemRepo(), zerolog.Nop())

	if _, err := l.Replay(context.Background(), "nope", nil); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
