// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/recommend"
)

type memRepo struct {
	mu      sync.Mutex
	prompts map[string]*Prompt
}

func newMemRepo() *memRepo {
	return &memRepo{prompts: make(map[string]*Prompt)}
}

func (r *memRepo) SavePrompt(_ context.Context, p *Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.prompts[p.ID] = &cp
	return nil
}

func (r *memRepo) ActivePrompt(_ context.Context, userID string) (*Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.prompts {
		if p.UserID == userID && p.State == StatePending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNoPrompt
}

func (r *memRepo) PendingPrompts(_ context.Context) ([]*Prompt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Prompt
	for _, p := range r.prompts {
		if p.State == StatePending {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) PurgeResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, p := range r.prompts {
		if p.State.Terminal() && !p.ResolvedAt.IsZero() && p.ResolvedAt.Before(cutoff) {
			delete(r.prompts, id)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) byState(state State) []*Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Prompt
	for _, p := range r.prompts {
		if p.State == state {
			out = append(out, p)
		}
	}
	return out
}

type recordedAction struct {
	userID  string
	movieID string
	action  recommend.Action
}

type mockSink struct {
	mu      sync.Mutex
	actions []recordedAction
}

func (m *mockSink) RecordAction(_ context.Context, userID string, c recommend.Candidate, action recommend.Action) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, recordedAction{userID: userID, movieID: c.ID, action: action})
}

func (m *mockSink) recorded() []recordedAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedAction, len(m.actions))
	copy(out, m.actions)
	return out
}

type fixture struct {
	sched *Scheduler
	repo  *memRepo
	sink  *mockSink
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:  newMemRepo(),
		sink:  &mockSink{},
		clock: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC),
	}
	f.sched = NewScheduler(DefaultConfig(), f.repo, f.sink, zerolog.Nop())
	f.sched.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func movie(id string) *recommend.Candidate {
	return &recommend.Candidate{ID: id, Title: "A Fine Film", Tags: []string{"feel_good"}}
}

func TestScheduleCreatesPendingPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	p, err := f.repo.ActivePrompt(ctx, "u1")
	if err != nil {
		t.Fatalf("ActivePrompt: %v", err)
	}
	if p.State != StatePending || p.Movie.ID != "m1" {
		t.Errorf("prompt = %+v", p)
	}
	if want := f.clock.Add(2 * time.Hour); !p.ReadyAt.Equal(want) {
		t.Errorf("ready at %v, want %v", p.ReadyAt, want)
	}
}

func TestPromptNotReadyBeforeDelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if _, err := f.sched.Prompt(ctx, "u1"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady immediately after scheduling, got %v", err)
	}

	f.advance(2*time.Hour - time.Minute)
	if _, err := f.sched.Prompt(ctx, "u1"); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady one minute early, got %v", err)
	}

	f.advance(time.Minute)
	p, err := f.sched.Prompt(ctx, "u1")
	if err != nil {
		t.Fatalf("Prompt at ready time: %v", err)
	}
	if p.Movie.ID != "m1" {
		t.Errorf("prompt movie = %s", p.Movie.ID)
	}
}

func TestPromptNoActive(t *testing.T) {
	f := newFixture(t)

	if _, err := f.sched.Prompt(context.Background(), "u1"); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("expected ErrNoPrompt, got %v", err)
	}
}

func TestScheduleSupersedesOldPrompt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule m1: %v", err)
	}
	f.advance(30 * time.Minute)
	if err := f.sched.Schedule(ctx, "u1", movie("m2")); err != nil {
		t.Fatalf("Schedule m2: %v", err)
	}

	active, err := f.repo.ActivePrompt(ctx, "u1")
	if err != nil {
		t.Fatalf("ActivePrompt: %v", err)
	}
	if active.Movie.ID != "m2" {
		t.Errorf("active prompt is %s, want m2", active.Movie.ID)
	}

	skipped := f.repo.byState(StateSkipped)
	if len(skipped) != 1 || skipped[0].Movie.ID != "m1" {
		t.Errorf("superseded prompt: %+v", skipped)
	}
}

func TestCompleteFeedsLearningSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	f.advance(3 * time.Hour)

	if err := f.sched.Complete(ctx, "u1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	actions := f.sink.recorded()
	if len(actions) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].action != recommend.ActionFeedbackCompleted || actions[0].movieID != "m1" {
		t.Errorf("action = %+v", actions[0])
	}

	if got := f.repo.byState(StateCompleted); len(got) != 1 {
		t.Errorf("completed prompts = %d, want 1", len(got))
	}
	if _, err := f.repo.ActivePrompt(ctx, "u1"); !errors.Is(err, ErrNoPrompt) {
		t.Error("completed prompt still active")
	}
}

func TestAbandonFeedsNegativeSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := f.sched.Abandon(ctx, "u1"); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	actions := f.sink.recorded()
	if len(actions) != 1 || actions[0].action != recommend.ActionFeedbackAbandoned {
		t.Errorf("actions = %+v", actions)
	}
}

func TestSkipCarriesNoSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := f.sched.Skip(ctx, "u1"); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if actions := f.sink.recorded(); len(actions) != 0 {
		t.Errorf("skip must not feed learning, got %+v", actions)
	}
	if got := f.repo.byState(StateSkipped); len(got) != 1 {
		t.Errorf("skipped prompts = %d, want 1", len(got))
	}
}

func TestResolveWithoutActivePrompt(t *testing.T) {
	f := newFixture(t)

	if err := f.sched.Complete(context.Background(), "u1"); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("expected ErrNoPrompt, got %v", err)
	}
}

func TestSweepExpiresStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	f.advance(6 * 24 * time.Hour)
	if err := f.sched.Schedule(ctx, "u2", movie("m2")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// u1's prompt crosses the 7-day line; u2's does not.
	f.advance(24*time.Hour + time.Minute)
	if err := f.sched.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	expired := f.repo.byState(StateExpired)
	if len(expired) != 1 || expired[0].Movie.ID != "m1" {
		t.Errorf("expired = %+v", expired)
	}
	if _, err := f.repo.ActivePrompt(ctx, "u2"); err != nil {
		t.Errorf("fresh prompt must survive the sweep: %v", err)
	}
	if actions := f.sink.recorded(); len(actions) != 0 {
		t.Errorf("expiry must not feed learning, got %+v", actions)
	}
}

func TestSweepPurgesOldResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sched.Schedule(ctx, "u1", movie("m1")); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := f.sched.Complete(ctx, "u1"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	f.advance(8 * 24 * time.Hour)
	if err := f.sched.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if got := f.repo.byState(StateCompleted); len(got) != 0 {
		t.Errorf("resolved prompt survived retention: %+v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.ReadyDelay = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero ready delay accepted")
	}

	bad = DefaultConfig()
	bad.Retention = time.Hour // below ready delay
	if err := bad.Validate(); err == nil {
		t.Error("retention below ready delay accepted")
	}

	bad = DefaultConfig()
	bad.SweepInterval = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero sweep interval accepted")
	}
}
