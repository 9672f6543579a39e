// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"fmt"
	"time"
)

// Config contains all tunables for the decision core. The constants here are
// configuration, not law, but must be stable for a given input so that replay
// from the session ledger reproduces identical ranking.
type Config struct {
	// Scoring contains the scorer's blending constants.
	Scoring ScoringConfig `koanf:"scoring" json:"scoring"`

	// Learning contains the per-action weight deltas and bounds.
	Learning LearningConfig `koanf:"learning" json:"learning"`

	// Points contains the per-action engagement deltas and the tier table.
	Points PointsConfig `koanf:"points" json:"points"`

	// Moods maps a mood name to its canonical tag set.
	Moods map[string][]string `koanf:"moods" json:"moods"`

	// LanguageSynonyms maps language aliases to their canonical form
	// (e.g. "hindi" -> "hi"). Matching is applied on both sides.
	LanguageSynonyms map[string]string `koanf:"language_synonyms" json:"language_synonyms"`

	// PoolLimit is the maximum candidate pool size fetched per attempt.
	PoolLimit int `koanf:"pool_limit" json:"pool_limit"`

	// FetchTimeout is the soft deadline for the candidate supply call.
	// On expiry the engine reports a transient error rather than blocking.
	FetchTimeout time.Duration `koanf:"fetch_timeout" json:"fetch_timeout"`
}

// ScoringConfig contains the scorer's blending constants.
type ScoringConfig struct {
	// TagWeightScale multiplies each matched intent tag's affinity weight
	// before adding it to the 0-100 quality scale. With the default weight
	// of 1.0 a matched tag contributes TagWeightScale points.
	TagWeightScale float64 `koanf:"tag_weight_scale" json:"tag_weight_scale"`

	// MoodBonus is added once when the candidate's tags intersect the
	// mood's canonical tag set.
	MoodBonus float64 `koanf:"mood_bonus" json:"mood_bonus"`

	// RejectedTagPenalty is subtracted per tag shared with a just-rejected
	// candidate when rescoring after not-tonight. Session-local only,
	// never persisted to the weight store.
	RejectedTagPenalty float64 `koanf:"rejected_tag_penalty" json:"rejected_tag_penalty"`

	// WeakBiasFactor scales RejectedTagPenalty for weak-bias replacement
	// (already-seen rejections).
	WeakBiasFactor float64 `koanf:"weak_bias_factor" json:"weak_bias_factor"`
}

// LearningConfig contains the bounded-delta weight model. This is
// intentionally not a gradient model: discrete signed deltas with hard
// clamping keep single noisy events from swinging a tag's weight wildly.
type LearningConfig struct {
	// MinWeight and MaxWeight clamp every tag weight.
	MinWeight float64 `koanf:"min_weight" json:"min_weight"`
	MaxWeight float64 `koanf:"max_weight" json:"max_weight"`

	// Deltas maps an action name to the signed delta applied to every tag
	// of the acted-on candidate.
	Deltas map[string]float64 `koanf:"deltas" json:"deltas"`

	// QueueSize bounds the best-effort async persistence queue.
	QueueSize int `koanf:"queue_size" json:"queue_size"`
}

// Delta returns the configured delta for an action, zero when unset.
func (l LearningConfig) Delta(a Action) float64 {
	return l.Deltas[a.String()]
}

// TierStep maps a cumulative point threshold to a pick count.
type TierStep struct {
	// MinPoints is the inclusive lower bound for this tier.
	MinPoints int64 `koanf:"min_points" json:"min_points"`

	// PickCount is the number of simultaneous picks at this tier.
	PickCount int `koanf:"pick_count" json:"pick_count"`
}

// PointsConfig contains engagement accounting.
type PointsConfig struct {
	// Deltas maps an action name to its point value.
	Deltas map[string]int64 `koanf:"deltas" json:"deltas"`

	// Tiers maps cumulative points to pick counts. Must be sorted by
	// ascending MinPoints with strictly decreasing PickCount: more
	// engagement converges toward single-recommendation confidence.
	Tiers []TierStep `koanf:"tiers" json:"tiers"`
}

// Delta returns the configured point value for an action, zero when unset.
func (p PointsConfig) Delta(a Action) int64 {
	return p.Deltas[a.String()]
}

// PickCountFor returns the pick count the tier table assigns to a point
// total, ignoring any persisted floor.
func (p PointsConfig) PickCountFor(points int64) int {
	count := 1
	for _, step := range p.Tiers {
		if points >= step.MinPoints {
			count = step.PickCount
		}
	}
	return count
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Scoring: ScoringConfig{
			TagWeightScale:     5.0,
			MoodBonus:          7.5,
			RejectedTagPenalty: 6.0,
			WeakBiasFactor:     0.5,
		},
		Learning: LearningConfig{
			MinWeight: 0.2,
			MaxWeight: 3.0,
			Deltas: map[string]float64{
				ActionWatchNow.String():          0.10,
				ActionNotTonight.String():        -0.08,
				ActionAlreadySeen.String():       0, // seen-ness is not a taste signal
				ActionShowMeAnother.String():     -0.02,
				ActionImplicitSkip.String():      -0.05,
				ActionFeedbackCompleted.String(): 0.10,
				ActionFeedbackAbandoned.String(): -0.05,
			},
			QueueSize: 256,
		},
		Points: PointsConfig{
			Deltas: map[string]int64{
				ActionWatchNow.String():         3,
				ActionNotTonight.String():       2,
				ActionAlreadySeen.String():      1,
				ActionShowMeAnother.String():    1,
				ActionReplacementShown.String(): 1,
				ActionImplicitSkip.String():     1,
			},
			Tiers: []TierStep{
				{MinPoints: 0, PickCount: 5},
				{MinPoints: 8, PickCount: 4},
				{MinPoints: 20, PickCount: 3},
				{MinPoints: 40, PickCount: 2},
				{MinPoints: 70, PickCount: 1},
			},
		},
		Moods: map[string][]string{
			"feel-good":    {"feel_good", "uplifting"},
			"dark":         {"dark", "bittersweet"},
			"thrilling":    {"tense", "thriller"},
			"mind-bending": {"cerebral", "twisty"},
			"cozy":         {"comfort", "gentle"},
		},
		LanguageSynonyms: map[string]string{
			"english":  "en",
			"hindi":    "hi",
			"spanish":  "es",
			"french":   "fr",
			"german":   "de",
			"japanese": "ja",
			"korean":   "ko",
		},
		PoolLimit:    200,
		FetchTimeout: 3 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Learning.MinWeight <= 0 {
		return fmt.Errorf("learning.min_weight must be positive, got %v", c.Learning.MinWeight)
	}
	if c.Learning.MaxWeight <= c.Learning.MinWeight {
		return fmt.Errorf("learning.max_weight (%v) must exceed min_weight (%v)",
			c.Learning.MaxWeight, c.Learning.MinWeight)
	}
	if c.Learning.QueueSize <= 0 {
		return fmt.Errorf("learning.queue_size must be positive, got %d", c.Learning.QueueSize)
	}
	if c.Scoring.TagWeightScale <= 0 {
		return fmt.Errorf("scoring.tag_weight_scale must be positive, got %v", c.Scoring.TagWeightScale)
	}
	if c.Scoring.WeakBiasFactor < 0 || c.Scoring.WeakBiasFactor > 1 {
		return fmt.Errorf("scoring.weak_bias_factor must be in [0,1], got %v", c.Scoring.WeakBiasFactor)
	}
	if c.PoolLimit <= 0 {
		return fmt.Errorf("pool_limit must be positive, got %d", c.PoolLimit)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %v", c.FetchTimeout)
	}
	if len(c.Points.Tiers) == 0 {
		return fmt.Errorf("points.tiers must not be empty")
	}
	for i, step := range c.Points.Tiers {
		if step.PickCount < 1 || step.PickCount > 5 {
			return fmt.Errorf("points.tiers[%d].pick_count must be in [1,5], got %d", i, step.PickCount)
		}
		if i == 0 {
			continue
		}
		prev := c.Points.Tiers[i-1]
		if step.MinPoints <= prev.MinPoints {
			return fmt.Errorf("points.tiers must have ascending min_points, tier %d does not", i)
		}
		if step.PickCount >= prev.PickCount {
			return fmt.Errorf("points.tiers pick counts must strictly decrease, tier %d does not", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c

	out.Learning.Deltas = make(map[string]float64, len(c.Learning.Deltas))
	for k, v := range c.Learning.Deltas {
		out.Learning.Deltas[k] = v
	}

	out.Points.Deltas = make(map[string]int64, len(c.Points.Deltas))
	for k, v := range c.Points.Deltas {
		out.Points.Deltas[k] = v
	}
	out.Points.Tiers = make([]TierStep, len(c.Points.Tiers))
	copy(out.Points.Tiers, c.Points.Tiers)

	out.Moods = make(map[string][]string, len(c.Moods))
	for k, v := range c.Moods {
		tags := make([]string, len(v))
		copy(tags, v)
		out.Moods[k] = tags
	}

	out.LanguageSynonyms = make(map[string]string, len(c.LanguageSynonyms))
	for k, v := range c.LanguageSynonyms {
		out.LanguageSynonyms[k] = v
	}

	return &out
}
