// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"sort"
	"strings"
)

// Scorer ranks a valid candidate for a profile and weight vector. Scoring is
// deterministic and side-effect-free: no randomness, no wall-clock reads, so
// replay from a recorded session reproduces identical ranking.
type Scorer struct {
	cfg *Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg *Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the rank of a candidate:
//
//	quality (0-100) + Σ weight(tag)*scale over tags ∩ intent + mood bonus
//
// Quality is CompositeScore when set, otherwise GoodScore*10.
func (s *Scorer) Score(c *Candidate, p *Profile, weights TagWeights) float64 {
	return s.ScoreBiased(c, p, weights, nil, 0)
}

// ScoreBiased is Score with a session-local negative bias: each candidate tag
// present in penalty subtracts RejectedTagPenalty*strength. The bias models a
// just-rejected candidate's tags as a temporary anti-mood for this request
// only; it is never persisted to the weight store.
func (s *Scorer) ScoreBiased(c *Candidate, p *Profile, weights TagWeights, penalty map[string]struct{}, strength float64) float64 {
	score := c.Quality()

	intent := make(map[string]struct{}, len(p.IntentTags))
	for _, t := range p.IntentTags {
		intent[normalizeTag(t)] = struct{}{}
	}

	moodMatched := false
	moodTags := s.moodTagSet(p.Mood)

	for _, raw := range c.Tags {
		tag := normalizeTag(raw)
		if _, ok := intent[tag]; ok {
			score += weights.Get(tag) * s.cfg.Scoring.TagWeightScale
		}
		if _, ok := moodTags[tag]; ok {
			moodMatched = true
		}
		if penalty != nil {
			if _, ok := penalty[tag]; ok {
				score -= s.cfg.Scoring.RejectedTagPenalty * strength
			}
		}
	}

	if moodMatched {
		score += s.cfg.Scoring.MoodBonus
	}

	return score
}

// moodTagSet returns the canonical tag set for a mood, empty when unknown.
func (s *Scorer) moodTagSet(mood string) map[string]struct{} {
	tags := s.cfg.Moods[strings.ToLower(strings.TrimSpace(mood))]
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[normalizeTag(t)] = struct{}{}
	}
	return set
}

// normalizeTag lowercases and trims a tag for comparison.
func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// PenaltySet builds a penalty set from a candidate's tags.
func PenaltySet(c *Candidate) map[string]struct{} {
	if c == nil {
		return nil
	}
	set := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		set[normalizeTag(t)] = struct{}{}
	}
	return set
}

// Rank returns the candidates in deterministic score order, best first. The
// input is not mutated. Used by the session ledger to re-rank a recorded
// snapshot during replay.
func (s *Scorer) Rank(cands []Candidate, p *Profile, weights TagWeights) []Candidate {
	return s.RankBiased(cands, p, weights, nil, 0)
}

// RankBiased is Rank under a session-local rejected-tag penalty, so a replay
// can reapply the bias a recorded ranking ran under.
func (s *Scorer) RankBiased(cands []Candidate, p *Profile, weights TagWeights, penalty map[string]struct{}, strength float64) []Candidate {
	scored := make([]scoredCandidate, 0, len(cands))
	for i := range cands {
		scored = append(scored, scoredCandidate{
			cand:  &cands[i],
			score: s.ScoreBiased(&cands[i], p, weights, penalty, strength),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return rankLess(scored[i], scored[j]) })

	out := make([]Candidate, len(scored))
	for i, sc := range scored {
		out[i] = *sc.cand
	}
	return out
}

// scoredCandidate pairs a candidate with its computed score.
type scoredCandidate struct {
	cand  *Candidate
	score float64
}

// rankLess orders scored candidates: higher score first, ties broken by
// higher GoodScore, then lexicographically smaller id for determinism.
func rankLess(a, b scoredCandidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.cand.GoodScore != b.cand.GoodScore {
		return a.cand.GoodScore > b.cand.GoodScore
	}
	return a.cand.ID < b.cand.ID
}
