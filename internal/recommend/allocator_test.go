// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
)

func newTestAllocator() *Allocator {
	cfg := DefaultConfig()
	v := NewValidator(nil, cfg.LanguageSynonyms)
	return NewAllocator(v, NewScorer(cfg), zerolog.Nop())
}

// validPool returns n distinct candidates that all pass the test profile,
// with strictly decreasing quality so the expected ranking is unambiguous.
func validPool(n int) []Candidate {
	pool := make([]Candidate, n)
	for i := 0; i < n; i++ {
		pool[i] = Candidate{
			ID:             fmt.Sprintf("m%02d", i),
			GoodScore:      float64(10 - i),
			RuntimeMinutes: 100,
			Languages:      []string{"en"},
			Platforms:      []string{"netflix"},
		}
	}
	return pool
}

func TestAllocateReturnsExactlyPickCount(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()
	p.IntentTags = nil

	picks, _ := a.Allocate(validPool(10), p, nil, p.ExclusionSet(), 3)
	if len(picks) != 3 {
		t.Fatalf("expected 3 picks from 10 valid candidates, got %d", len(picks))
	}

	// Top-scored first, all distinct.
	seen := make(map[string]struct{})
	for _, c := range picks {
		if _, dup := seen[c.ID]; dup {
			t.Errorf("duplicate pick %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for i, want := range []string{"m00", "m01", "m02"} {
		if picks[i].ID != want {
			t.Errorf("pick %d = %s, want %s", i, picks[i].ID, want)
		}
	}
}

func TestAllocateThinPoolNotPadded(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()

	pool := validPool(2)
	pool = append(pool, Candidate{ID: "bad", GoodScore: 9, RuntimeMinutes: 999,
		Languages: []string{"fr"}, Platforms: []string{"nowhere"}, ContentType: ContentSeries})

	picks, _ := a.Allocate(pool, p, nil, p.ExclusionSet(), 5)
	if len(picks) != 2 {
		t.Fatalf("expected 2 picks from a thin pool, got %d", len(picks))
	}
	for _, c := range picks {
		if c.ID == "bad" {
			t.Error("invalid candidate padded into the pick set")
		}
	}
}

func TestAllocatePickCountFloorsAtOne(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()

	picks, _ := a.Allocate(validPool(5), p, nil, p.ExclusionSet(), 0)
	if len(picks) != 1 {
		t.Fatalf("expected pick count to floor at 1, got %d", len(picks))
	}
}

func TestAllocateUsesShallowestAdmittingLevel(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()

	// One candidate valid at L0, one only after runtime relaxation. The
	// multi-pick stays at the shallowest level that admits anyone, so the
	// long movie must not appear even with room for it.
	pool := []Candidate{
		{ID: "fits", GoodScore: 5, RuntimeMinutes: 100, Languages: []string{"en"}, Platforms: []string{"netflix"}},
		{ID: "too-long", GoodScore: 9, RuntimeMinutes: 300, Languages: []string{"en"}, Platforms: []string{"netflix"}},
	}

	picks, rejections := a.Allocate(pool, p, nil, p.ExclusionSet(), 3)
	if len(picks) != 1 || picks[0].ID != "fits" {
		t.Fatalf("expected only the level-0 candidate, got %v", picks)
	}
	if rejections["too-long"] != RuleRuntime {
		t.Errorf("rejection for too-long = %q, want %q", rejections["too-long"], RuleRuntime)
	}
}

func TestAllocateReportsFirstFailingRules(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()
	p.IntentTags = nil

	pool := validPool(3)
	pool = append(pool,
		Candidate{ID: "wrong-platform", GoodScore: 8, RuntimeMinutes: 100,
			Languages: []string{"en"}, Platforms: []string{"nowhere"}},
		Candidate{ID: "wrong-language", GoodScore: 8, RuntimeMinutes: 100,
			Languages: []string{"fr"}, Platforms: []string{"netflix"}},
	)
	exclude := p.ExclusionSet()
	exclude["m01"] = struct{}{}

	picks, rejections := a.Allocate(pool, p, nil, exclude, 5)
	if len(picks) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(picks))
	}

	want := map[string]Rule{
		"m01":            RuleExcluded,
		"wrong-platform": RulePlatform,
		"wrong-language": RuleLanguage,
	}
	if len(rejections) != len(want) {
		t.Fatalf("rejections = %v, want %v", rejections, want)
	}
	for id, rule := range want {
		if rejections[id] != rule {
			t.Errorf("rejection for %s = %q, want %q", id, rejections[id], rule)
		}
	}
}

func TestFindReplacementExcludesSurfacedPicks(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()
	p.IntentTags = nil

	pool := validPool(4)
	current := pool[:2] // m00, m01 on the carousel
	rejected := pool[1]

	repl := a.FindReplacement(pool, p, nil, p.ExclusionSet(), &rejected, ReplaceNotInterested, current)
	if repl == nil {
		t.Fatal("expected a replacement")
	}
	if repl.ID == "m00" || repl.ID == "m01" {
		t.Errorf("replacement %s is already on the carousel", repl.ID)
	}
	if repl.ID != "m02" {
		t.Errorf("expected the next best candidate m02, got %s", repl.ID)
	}
}

func TestFindReplacementPoolSpent(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()

	pool := validPool(2)
	rejected := pool[1]

	repl := a.FindReplacement(pool, p, nil, p.ExclusionSet(), &rejected, ReplaceNotInterested, pool)
	if repl != nil {
		t.Fatalf("expected nil on a spent pool, got %s", repl.ID)
	}
}

func TestFindReplacementBiasStrength(t *testing.T) {
	a := newTestAllocator()
	p := testProfile()
	p.IntentTags = nil
	p.Mood = "" // keep the mood bonus out of the comparison

	rejected := Candidate{ID: "rej", Tags: []string{"dark"}, GoodScore: 5,
		RuntimeMinutes: 100, Languages: []string{"en"}, Platforms: []string{"netflix"}}

	// Tag-sharing candidate outscores the alternative by slightly more than
	// the weak penalty but less than the full one: the reason decides.
	cfg := a.scorer.cfg.Scoring
	margin := cfg.RejectedTagPenalty * (cfg.WeakBiasFactor + 1) / 2
	pool := []Candidate{
		{ID: "shares-tag", Tags: []string{"dark"}, GoodScore: 5 + margin/10,
			RuntimeMinutes: 100, Languages: []string{"en"}, Platforms: []string{"netflix"}},
		{ID: "clean", Tags: []string{"uplifting"}, GoodScore: 5,
			RuntimeMinutes: 100, Languages: []string{"en"}, Platforms: []string{"netflix"}},
	}

	strong := a.FindReplacement(pool, p, nil, p.ExclusionSet(), &rejected, ReplaceNotInterested, nil)
	if strong == nil || strong.ID != "clean" {
		t.Errorf("full bias should demote the tag-sharing candidate, got %v", strong)
	}

	weak := a.FindReplacement(pool, p, nil, p.ExclusionSet(), &rejected, ReplaceAlreadySeen, nil)
	if weak == nil || weak.ID != "shares-tag" {
		t.Errorf("weak bias should keep the tag-sharing candidate on top, got %v", weak)
	}
}
