// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package learning

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/recommend"
)

type memWeightRepo struct {
	mu      sync.Mutex
	data    map[string]recommend.TagWeights
	loadErr error
	saveErr error
	saves   int
	saved   chan struct{}
}

func newMemWeightRepo() *memWeightRepo {
	return &memWeightRepo{
		data:  make(map[string]recommend.TagWeights),
		saved: make(chan struct{}, 64),
	}
}

func (r *memWeightRepo) LoadWeights(_ context.Context, userID string) (recommend.TagWeights, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	w, ok := r.data[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (r *memWeightRepo) SaveWeights(_ context.Context, userID string, w recommend.TagWeights) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.data[userID] = w.Clone()
	r.saves++
	select {
	case r.saved <- struct{}{}:
	default:
	}
	return nil
}

func testLearningConfig() recommend.LearningConfig {
	return recommend.DefaultConfig().Learning
}

func candWithTags(tags ...string) *recommend.Candidate {
	return &recommend.Candidate{ID: "m1", Tags: tags}
}

const weightEps = 1e-9

func TestWeightsUnknownUserGetsDefaults(t *testing.T) {
	s := NewWeightStore(testLearningConfig(), newMemWeightRepo(), zerolog.Nop())

	w, err := s.Weights(context.Background(), "new-user")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if len(w) != 0 {
		t.Errorf("expected an empty vector, got %v", w)
	}
	if w.Get("anything") != recommend.DefaultTagWeight {
		t.Errorf("default weight = %v", w.Get("anything"))
	}
}

func TestApplyExactDeltas(t *testing.T) {
	cfg := testLearningConfig()

	tests := []struct {
		action recommend.Action
		want   float64
	}{
		{recommend.ActionWatchNow, 1.10},
		{recommend.ActionNotTonight, 0.92},
		{recommend.ActionShowMeAnother, 0.98},
		{recommend.ActionImplicitSkip, 0.95},
		{recommend.ActionFeedbackCompleted, 1.10},
		{recommend.ActionFeedbackAbandoned, 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.action.String(), func(t *testing.T) {
			s := NewWeightStore(cfg, newMemWeightRepo(), zerolog.Nop())
			s.Apply(context.Background(), "u1", candWithTags("drama"), tt.action)

			w, err := s.Weights(context.Background(), "u1")
			if err != nil {
				t.Fatalf("Weights: %v", err)
			}
			if got := w.Get("drama"); math.Abs(got-tt.want) > weightEps {
				t.Errorf("weight after %s = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}

func TestApplyAlreadySeenIsNeutral(t *testing.T) {
	s := NewWeightStore(testLearningConfig(), newMemWeightRepo(), zerolog.Nop())
	s.Apply(context.Background(), "u1", candWithTags("drama"), recommend.ActionAlreadySeen)

	w, err := s.Weights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if len(w) != 0 {
		t.Errorf("already_seen must not touch the vector, got %v", w)
	}
}

func TestApplyTouchesAllCandidateTags(t *testing.T) {
	s := NewWeightStore(testLearningConfig(), newMemWeightRepo(), zerolog.Nop())
	s.Apply(context.Background(), "u1", candWithTags("drama", "slow_burn"), recommend.ActionWatchNow)

	w, _ := s.Weights(context.Background(), "u1")
	for _, tag := range []string{"drama", "slow_burn"} {
		if got := w.Get(tag); math.Abs(got-1.10) > weightEps {
			t.Errorf("weight for %s = %v, want 1.10", tag, got)
		}
	}
	if got := w.Get("untouched"); got != recommend.DefaultTagWeight {
		t.Errorf("unrelated tag moved: %v", got)
	}
}

func TestWeightsClampToBounds(t *testing.T) {
	cfg := testLearningConfig()
	s := NewWeightStore(cfg, newMemWeightRepo(), zerolog.Nop())
	ctx := context.Background()

	// Far more positive signals than needed to hit the ceiling.
	for i := 0; i < 100; i++ {
		s.Apply(ctx, "u1", candWithTags("drama"), recommend.ActionWatchNow)
	}
	w, _ := s.Weights(ctx, "u1")
	if got := w.Get("drama"); got > cfg.MaxWeight {
		t.Errorf("weight exceeded ceiling: %v", got)
	}
	if got := w.Get("drama"); math.Abs(got-cfg.MaxWeight) > weightEps {
		t.Errorf("weight should converge to the ceiling %v, got %v", cfg.MaxWeight, got)
	}

	for i := 0; i < 200; i++ {
		s.Apply(ctx, "u1", candWithTags("drama"), recommend.ActionNotTonight)
	}
	w, _ = s.Weights(ctx, "u1")
	if got := w.Get("drama"); got < cfg.MinWeight {
		t.Errorf("weight fell below floor: %v", got)
	}
	if got := w.Get("drama"); math.Abs(got-cfg.MinWeight) > weightEps {
		t.Errorf("weight should converge to the floor %v, got %v", cfg.MinWeight, got)
	}
}

func TestApplyDeltaIsPure(t *testing.T) {
	in := recommend.TagWeights{"drama": 1.5}
	out := applyDelta(in, []string{"drama"}, 0.1, 0.2, 3.0)

	if in["drama"] != 1.5 {
		t.Errorf("input vector mutated: %v", in["drama"])
	}
	if math.Abs(out["drama"]-1.6) > weightEps {
		t.Errorf("output = %v, want 1.6", out["drama"])
	}
}

func TestWeightsLoadFromRepository(t *testing.T) {
	repo := newMemWeightRepo()
	repo.data["u1"] = recommend.TagWeights{"drama": 2.2}

	s := NewWeightStore(testLearningConfig(), repo, zerolog.Nop())
	w, err := s.Weights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w.Get("drama") != 2.2 {
		t.Errorf("persisted weight = %v, want 2.2", w.Get("drama"))
	}
}

func TestWeightsPropagateLoadError(t *testing.T) {
	repo := newMemWeightRepo()
	repo.loadErr = errors.New("disk on fire")

	s := NewWeightStore(testLearningConfig(), repo, zerolog.Nop())
	if _, err := s.Weights(context.Background(), "u1"); err == nil {
		t.Error("expected the load error to propagate")
	}
}

func TestWeightWriterPersists(t *testing.T) {
	repo := newMemWeightRepo()
	s := NewWeightStore(testLearningConfig(), repo, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx)
		close(done)
	}()

	s.Apply(context.Background(), "u1", candWithTags("drama"), recommend.ActionWatchNow)

	<-repo.saved
	cancel()
	<-done

	w, err := repo.LoadWeights(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}
	if got := w.Get("drama"); math.Abs(got-1.10) > weightEps {
		t.Errorf("persisted weight = %v, want 1.10", got)
	}
}

func TestWeightQueueFullDropsNotBlocks(t *testing.T) {
	cfg := testLearningConfig()
	cfg.QueueSize = 1

	// No writer draining: the queue fills after one snapshot and later
	// applies must drop instead of blocking the request path.
	s := NewWeightStore(cfg, newMemWeightRepo(), zerolog.Nop())
	ctx := context.Background()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Apply(ctx, "u1", candWithTags("drama"), recommend.ActionWatchNow)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Apply blocked on a full queue")
	}

	// The in-memory vector still carries every signal.
	w, _ := s.Weights(ctx, "u1")
	if got := w.Get("drama"); math.Abs(got-2.0) > weightEps {
		t.Errorf("in-memory weight = %v, want 2.0", got)
	}
}
