// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"sort"

	"github.com/rs/zerolog"
)

// Cascade orchestrates Validator and Scorer across progressively relaxed
// profiles until a candidate is found or every level is exhausted. Relaxation
// is cumulative: a candidate admitted at level L necessarily failed at every
// stricter level, otherwise the cascade would have stopped earlier.
type Cascade struct {
	validator *Validator
	scorer    *Scorer
	logger    zerolog.Logger
}

// NewCascade creates a fallback cascade.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCascade(validator *Validator, scorer *Scorer, logger zerolog.Logger) *Cascade {
	return &Cascade{
		validator: validator,
		scorer:    scorer,
		logger:    logger.With().Str("component", "cascade").Logger(),
	}
}

// Trace captures what one cascade run evaluated, for the session ledger and
// for deterministic replay.
type Trace struct {
	// CandidateIDs is every pool id considered, in pool order.
	CandidateIDs []string

	// Rejections maps candidate id to the first failing rule observed at
	// the strictest level the candidate was evaluated at.
	Rejections map[string]Rule

	// Survivors are the candidates that validated at the terminal level.
	Survivors []Candidate

	// PenaltyTags and PenaltyStrength record the session-local rejected-tag
	// bias the survivors were ranked under, so replay can reapply it.
	PenaltyTags     []string
	PenaltyStrength float64
}

// Result is the terminal outcome of one cascade run. Stop is StopNone iff
// Movie is non-nil.
type Result struct {
	Movie *Candidate
	Level FallbackLevel
	Stop  StopCondition
	Trace Trace
}

// allLevels is the documented relaxation order.
var allLevels = []FallbackLevel{
	LevelFullProfile,
	LevelNoRuntime,
	LevelPrimaryLanguage,
	LevelNoPlatform,
	LevelExclusionsOnly,
}

// Recommend runs the full pipeline over the pool and returns the argmax of
// the scorer at the first level with any valid candidate.
func (fc *Cascade) Recommend(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}) Result {
	return fc.run(pool, p, weights, exclude, nil, 0)
}

// RecommendAfterNotTonight biases scoring to penalize tag overlap with the
// just-rejected candidate before falling back to the normal cascade. The
// rejected id joins the session-local exclusion set; the tag bias is not
// persisted.
func (fc *Cascade) RecommendAfterNotTonight(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}, rejected *Candidate) Result {
	if rejected != nil {
		if exclude == nil {
			exclude = make(map[string]struct{}, 1)
		}
		exclude[rejected.ID] = struct{}{}
	}
	return fc.run(pool, p, weights, exclude, PenaltySet(rejected), 1.0)
}

func (fc *Cascade) run(pool []Candidate, p *Profile, weights TagWeights, exclude map[string]struct{}, penalty map[string]struct{}, strength float64) Result {
	trace := Trace{
		CandidateIDs: make([]string, 0, len(pool)),
		Rejections:   make(map[string]Rule, len(pool)),
	}
	for i := range pool {
		trace.CandidateIDs = append(trace.CandidateIDs, pool[i].ID)
	}
	if len(penalty) > 0 {
		trace.PenaltyTags = make([]string, 0, len(penalty))
		for tag := range penalty {
			trace.PenaltyTags = append(trace.PenaltyTags, tag)
		}
		sort.Strings(trace.PenaltyTags)
		trace.PenaltyStrength = strength
	}

	if len(pool) == 0 {
		return Result{Stop: StopNoCandidates, Trace: trace}
	}

	for _, level := range allLevels {
		relaxed := relaxProfile(p, level)
		survivors := fc.validateAll(pool, relaxed, exclude, &trace, level == LevelFullProfile)

		if len(survivors) == 0 {
			continue
		}

		best := fc.pickBest(survivors, relaxed, weights, penalty, strength)
		trace.Survivors = survivors

		fc.logger.Debug().
			Str("user_id", p.UserID).
			Str("movie_id", best.ID).
			Int("level", int(level)).
			Int("survivors", len(survivors)).
			Msg("cascade produced a pick")

		return Result{Movie: best, Level: level, Trace: trace}
	}

	stop := fc.stopConditionFor(trace, exclude, len(pool))
	fc.logger.Debug().
		Str("user_id", p.UserID).
		Str("stop", stop.Description()).
		Msg("cascade exhausted")

	return Result{Stop: stop, Trace: trace}
}

// validateAll returns the candidates valid under the (possibly relaxed)
// profile. Rejection reasons are recorded only on the strictest pass so the
// ledger reflects why each candidate failed the user's actual constraints.
func (fc *Cascade) validateAll(pool []Candidate, p *Profile, exclude map[string]struct{}, trace *Trace, record bool) []Candidate {
	survivors := make([]Candidate, 0, len(pool))
	for i := range pool {
		res := fc.validator.Validate(&pool[i], p, exclude)
		if res.OK {
			survivors = append(survivors, pool[i])
			continue
		}
		if record {
			trace.Rejections[pool[i].ID] = res.FailedRule
		}
	}
	return survivors
}

// pickBest scores survivors and returns the argmax under the deterministic
// tie-break order.
func (fc *Cascade) pickBest(survivors []Candidate, p *Profile, weights TagWeights, penalty map[string]struct{}, strength float64) *Candidate {
	scored := make([]scoredCandidate, 0, len(survivors))
	for i := range survivors {
		scored = append(scored, scoredCandidate{
			cand:  &survivors[i],
			score: fc.scorer.ScoreBiased(&survivors[i], p, weights, penalty, strength),
		})
	}
	sort.Slice(scored, func(i, j int) bool { return rankLess(scored[i], scored[j]) })

	best := *scored[0].cand
	return &best
}

// stopConditionFor derives the user-facing exhaustion cause from the
// strictest-level rejection tally.
func (fc *Cascade) stopConditionFor(trace Trace, exclude map[string]struct{}, poolSize int) StopCondition {
	if poolSize == 0 {
		return StopNoCandidates
	}

	counts := make(map[Rule]int, 6)
	for _, rule := range trace.Rejections {
		counts[rule]++
	}

	if counts[RuleExcluded] == poolSize {
		return StopAllExcluded
	}

	// Cite the dominant soft dimension from the full-profile pass.
	if counts[RulePlatform] >= counts[RuleLanguage] && counts[RulePlatform] > 0 {
		return StopNoPlatformMatch
	}
	if counts[RuleLanguage] > 0 {
		return StopNoLanguageMatch
	}
	return StopNoMatch
}

// relaxProfile returns a copy of the profile with the level's cumulative
// relaxations applied. Exclusions, content type and maturity always hold.
func relaxProfile(p *Profile, level FallbackLevel) *Profile {
	relaxed := *p

	if level >= LevelNoRuntime {
		relaxed.Runtime = RuntimeWindow{}
	}
	if level >= LevelPrimaryLanguage && len(p.PreferredLanguages) > 1 {
		relaxed.PreferredLanguages = p.PreferredLanguages[:1]
	}
	if level >= LevelNoPlatform {
		relaxed.Platforms = nil
	}
	if level >= LevelExclusionsOnly {
		relaxed.PreferredLanguages = nil
	}

	return &relaxed
}
