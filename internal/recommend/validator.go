// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import "strings"

// Validator applies the hard pass/fail rules to a candidate given a profile.
// It is a pure function of its inputs and safe for concurrent use.
//
// Rules run in a fixed order so the first failing rule is the one reported:
// exclusion, content type, maturity, platform, language, runtime. The order
// matters for diagnostics, not correctness; a candidate failing one rule is
// not assumed to fail any other.
type Validator struct {
	filter   ContentFilter
	synonyms map[string]string
}

// NewValidator creates a validator. filter may be nil, in which case the
// maturity rule always passes.
func NewValidator(filter ContentFilter, synonyms map[string]string) *Validator {
	return &Validator{filter: filter, synonyms: synonyms}
}

// Validate checks one candidate against the profile. exclude is the
// precomputed exclusion set (persistent sets plus session-local rejects).
func (v *Validator) Validate(c *Candidate, p *Profile, exclude map[string]struct{}) ValidationResult {
	if _, ok := exclude[c.ID]; ok {
		return Invalid(RuleExcluded)
	}

	if p.RequiresSeries && c.ContentType != ContentSeries {
		return Invalid(RuleContentType)
	}
	if !p.RequiresSeries && c.ContentType != ContentMovie {
		return Invalid(RuleContentType)
	}

	if v.filter != nil && v.filter.ShouldExclude(c, p.Maturity) {
		return Invalid(RuleMaturity)
	}

	if len(p.Platforms) > 0 && !intersects(p.Platforms, c.Platforms) {
		return Invalid(RulePlatform)
	}

	if len(p.PreferredLanguages) > 0 && !v.languagesMatch(p.PreferredLanguages, c.Languages) {
		return Invalid(RuleLanguage)
	}

	// Series are exempt from the runtime window; their per-episode runtime
	// is not comparable to a movie-night budget.
	if c.ContentType != ContentSeries && !p.Runtime.Unconstrained() {
		if c.RuntimeMinutes < p.Runtime.Min || c.RuntimeMinutes > p.Runtime.Max {
			return Invalid(RuleRuntime)
		}
	}

	return Valid()
}

// languagesMatch reports whether any preferred language matches any candidate
// language after synonym normalization.
func (v *Validator) languagesMatch(preferred, available []string) bool {
	for _, want := range preferred {
		w := v.normalizeLanguage(want)
		for _, have := range available {
			if w == v.normalizeLanguage(have) {
				return true
			}
		}
	}
	return false
}

// normalizeLanguage lowercases and collapses known synonyms ("hindi" ~ "hi").
func (v *Validator) normalizeLanguage(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	if canonical, ok := v.synonyms[l]; ok {
		return canonical
	}
	return l
}

// intersects reports whether the two string sets share any element,
// case-insensitively.
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[strings.ToLower(s)]; ok {
			return true
		}
	}
	return false
}
