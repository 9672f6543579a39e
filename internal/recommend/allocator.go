// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"sort"

	"github.com/rs/zerolog"
)

// Allocator expands a recommendation into a multi-pick carousel and serves
// one-shot replacements for rejected picks. Selection is the top-pickCount
// scored candidates at the shallowest fallback level with any survivors;
// all entries are mutually distinct and independently valid.
type Allocator struct {
	validator *Validator
	scorer    *Scorer
	logger    zerolog.Logger
}

// NewAllocator creates a pick allocator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewAllocator(validator *Validator, scorer *Scorer, logger zerolog.Logger) *Allocator {
	return &Allocator{
		validator: validator,
		scorer:    scorer,
		logger:    logger.With().Str("component", "allocator").Logger(),
	}
}

// Allocate returns up to pickCount distinct top-scored valid candidates,
// along with each rejected candidate's first failing rule at the strictest
// level. The pick set may be smaller when the pool is thin; it is never
// padded with invalid entries.
func (a *Allocator) Allocate(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}, pickCount int) ([]Candidate, map[string]Rule) {
	if pickCount < 1 {
		pickCount = 1
	}

	ranked, rejections := a.rank(pool, p, weights, exclude, nil, 0)
	if len(ranked) > pickCount {
		ranked = ranked[:pickCount]
	}

	a.logger.Debug().
		Str("user_id", p.UserID).
		Int("requested", pickCount).
		Int("allocated", len(ranked)).
		Msg("allocated picks")

	return ranked, rejections
}

// FindReplacement returns the best-scoring candidate not already surfaced and
// not excluded, or nil when the pool is spent. The replacement is biased away
// from the rejected candidate's tags: fully for not-interested, weakly for
// already-seen (the content in kind may still be desirable). Enforcement of
// the replace-at-most-once-per-position invariant belongs to the engine's
// session state, not here.
func (a *Allocator) FindReplacement(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}, rejected *Candidate, reason ReplaceReason, current []Candidate) *Candidate {
	blocked := make(map[string]struct{}, len(exclude)+len(current)+1)
	for id := range exclude {
		blocked[id] = struct{}{}
	}
	for i := range current {
		blocked[current[i].ID] = struct{}{}
	}
	if rejected != nil {
		blocked[rejected.ID] = struct{}{}
	}

	strength := 1.0
	if reason == ReplaceAlreadySeen {
		strength = a.scorer.cfg.Scoring.WeakBiasFactor
	}

	ranked, _ := a.rank(pool, p, weights, blocked, PenaltySet(rejected), strength)
	if len(ranked) == 0 {
		return nil
	}

	best := ranked[0]
	return &best
}

// rank validates the pool at the shallowest admitting fallback level and
// returns the survivors in deterministic score order. Rejection rules are
// collected on the strictest pass only, so they reflect the user's actual
// constraints rather than a relaxed profile.
func (a *Allocator) rank(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}, penalty map[string]struct{}, strength float64) ([]Candidate, map[string]Rule) {
	rejections := make(map[string]Rule, len(pool))
	var survivors []Candidate
	var level *Profile

	for _, l := range allLevels {
		relaxed := relaxProfile(p, l)
		survivors = survivors[:0]
		for i := range pool {
			res := a.validator.Validate(&pool[i], relaxed, exclude)
			if res.OK {
				survivors = append(survivors, pool[i])
				continue
			}
			if l == LevelFullProfile {
				rejections[pool[i].ID] = res.FailedRule
			}
		}
		if len(survivors) > 0 {
			level = relaxed
			break
		}
	}

	if len(survivors) == 0 {
		return nil, rejections
	}

	scored := make([]scoredCandidate, 0, len(survivors))
	for i := range survivors {
		scored = append(scored, scoredCandidate{
			cand:  &survivors[i],
			score: a.scorer.ScoreBiased(&survivors[i], level, weights, penalty, strength),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return rankLess(scored[i], scored[j]) })

	out := make([]Candidate, len(scored))
	for i, sc := range scored {
		out[i] = *sc.cand
	}
	return out, rejections
}
