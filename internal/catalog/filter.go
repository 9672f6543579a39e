// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package catalog

import (
	"strings"

	"github.com/reelpick/reelpick/internal/recommend"
)

// ratingRank orders content ratings from mildest to most mature. Movie and
// TV scales share one ladder so a single max-rating setting covers both.
var ratingRank = map[string]int{
	"G":     0,
	"TV-G":  0,
	"PG":    1,
	"TV-PG": 1,
	"PG-13": 2,
	"TV-14": 2,
	"R":     3,
	"TV-MA": 3,
	"NC-17": 4,
}

// matureThreshold is the rank at and above which content counts as mature.
const matureThreshold = 3

// MaturityFilter implements recommend.ContentFilter over the shared rating
// ladder. Unrated content passes: the catalog is curated and holes in rating
// metadata should not hide titles.
type MaturityFilter struct{}

// NewMaturityFilter creates the filter.
func NewMaturityFilter() *MaturityFilter { return &MaturityFilter{} }

// ShouldExclude reports whether the candidate is unsuitable for the maturity
// context.
func (f *MaturityFilter) ShouldExclude(c *recommend.Candidate, m recommend.MaturityInfo) bool {
	rank, rated := ratingRank[normalizeRating(c.ContentRating)]
	if !rated {
		return false
	}

	if m.RestrictMature && rank >= matureThreshold {
		return true
	}

	if m.MaxRating != "" {
		if maxRank, ok := ratingRank[normalizeRating(m.MaxRating)]; ok && rank > maxRank {
			return true
		}
	}

	return false
}

func normalizeRating(r string) string {
	return strings.ToUpper(strings.TrimSpace(r))
}
