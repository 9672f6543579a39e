// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/metrics"
)

// ErrProfileIncomplete is returned when the caller invokes the engine without
// a user id. Language/platform emptiness is not an error: empty sets mean
// "no constraint" and the engine degrades gracefully.
var ErrProfileIncomplete = errors.New("profile incomplete: user id required")

// ErrSourceUnavailable wraps upstream candidate-supply failures. Callers
// should retry the whole request rather than treat this as exhaustion.
var ErrSourceUnavailable = errors.New("candidate source unavailable")

// ErrPickNotFound is returned when a replacement is requested for a movie
// that is not on the user's current carousel.
var ErrPickNotFound = errors.New("pick not on the carousel")

// Deps are the external collaborators the engine orchestrates.
type Deps struct {
	Source   CandidateSource
	Filter   ContentFilter
	Weights  WeightSource
	Points   PointsSource
	Recorder AttemptRecorder
	Feedback FeedbackNotifier
}

// Engine runs one recommendation attempt end to end: fetch pool, validate,
// score, relax, expand to a tiered multi-pick, record the attempt, and
// dispatch learning signals. Safe for concurrent use; per-user session state
// is independently locked, so cross-user requests are fully parallel.
type Engine struct {
	cfg       *Config
	logger    zerolog.Logger
	deps      Deps
	validator *Validator
	scorer    *Scorer
	cascade   *Cascade
	allocator *Allocator

	mu       sync.Mutex
	sessions map[string]*userSession
}

// userSession is the per-user in-flight state: the session-cached pool, the
// session-local rejects, the live carousel slots, and the attempt generation
// used to supersede stale results.
type userSession struct {
	mu         sync.Mutex
	generation uint64
	pool       []Candidate
	rejects    map[string]struct{}
	slots      []pickSlot
}

// pickSlot is one carousel position. A position may be auto-replaced at most
// once; a second rejection removes the card instead of churning the pool.
type pickSlot struct {
	cand     Candidate
	replaced bool
	removed  bool
}

// New creates an engine. Source, Recorder, Weights and Points are required;
// Filter and Feedback may be nil.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg *Config, logger zerolog.Logger, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("candidate source is required")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("attempt recorder is required")
	}
	if deps.Weights == nil {
		return nil, fmt.Errorf("weight source is required")
	}
	if deps.Points == nil {
		return nil, fmt.Errorf("points source is required")
	}

	log := logger.With().Str("component", "recommend").Logger()
	validator := NewValidator(deps.Filter, cfg.LanguageSynonyms)
	scorer := NewScorer(cfg)

	return &Engine{
		cfg:       cfg,
		logger:    log,
		deps:      deps,
		validator: validator,
		scorer:    scorer,
		cascade:   NewCascade(validator, scorer, log),
		allocator: NewAllocator(validator, scorer, log),
		sessions:  make(map[string]*userSession),
	}, nil
}

// Recommendation is the terminal result of a single-pick attempt.
type Recommendation struct {
	SessionID string        `json:"session_id"`
	Movie     *Candidate    `json:"movie,omitempty"`
	Level     FallbackLevel `json:"fallback_level"`
	Stop      StopCondition `json:"-"`
	StopText  string        `json:"stop_condition,omitempty"`
	Outcome   Outcome       `json:"outcome"`

	// Superseded is set when a newer attempt for the same user started
	// while this one was in flight; callers should discard the result.
	Superseded bool `json:"superseded,omitempty"`
}

// Pick is one carousel entry.
type Pick struct {
	Candidate Candidate `json:"candidate"`
	Position  int       `json:"position"`
	Replaced  bool      `json:"replaced"`
}

// PickSet is the terminal result of a tiered multi-pick attempt.
type PickSet struct {
	SessionID  string  `json:"session_id"`
	Picks      []Pick  `json:"picks"`
	Outcome    Outcome `json:"outcome"`
	StopText   string  `json:"stop_condition,omitempty"`
	Superseded bool    `json:"superseded,omitempty"`
}

// Replacement is the result of a one-shot pick replacement. When Removed is
// true the position is gone for the rest of the session.
type Replacement struct {
	Movie    *Candidate `json:"movie,omitempty"`
	Position int        `json:"position"`
	Removed  bool       `json:"removed"`
}

// Recommend produces a single pick for the profile.
func (e *Engine) Recommend(ctx context.Context, p *Profile) (*Recommendation, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrProfileIncomplete
	}

	st, gen := e.beginAttempt(p.UserID)

	pool, fetchErr := e.fetchPool(ctx, p, st)
	alog := e.deps.Recorder.Start(ctx, p)

	if fetchErr != nil {
		alog.Complete(ctx, "", OutcomeError)
		metrics.RecommendationRequests.WithLabelValues(OutcomeError.String()).Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, fetchErr)
	}

	weights := e.loadWeights(ctx, p.UserID)
	exclude := e.exclusionSet(p, st)

	res := e.cascade.Recommend(pool, p, weights, exclude)
	rec := e.finishAttempt(ctx, alog, p, weights, res)
	rec.Superseded = e.superseded(st, gen)
	return rec, nil
}

// NotTonight records the rejection of the current pick, then produces the
// next one with the rejected candidate's tags treated as a temporary
// negative signal for this request only.
func (e *Engine) NotTonight(ctx context.Context, p *Profile, rejected Candidate) (*Recommendation, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrProfileIncomplete
	}

	e.dispatchAction(ctx, p.UserID, &rejected, ActionNotTonight)

	st, gen := e.attemptInPlace(p.UserID)
	st.mu.Lock()
	st.rejects[rejected.ID] = struct{}{}
	st.mu.Unlock()

	pool, fetchErr := e.fetchPool(ctx, p, st)
	alog := e.deps.Recorder.Start(ctx, p)

	if fetchErr != nil {
		alog.Complete(ctx, "", OutcomeError)
		metrics.RecommendationRequests.WithLabelValues(OutcomeError.String()).Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, fetchErr)
	}

	weights := e.loadWeights(ctx, p.UserID)
	exclude := e.exclusionSet(p, st)

	res := e.cascade.RecommendAfterNotTonight(pool, p, weights, exclude, &rejected)
	rec := e.finishAttempt(ctx, alog, p, weights, res)
	rec.Superseded = e.superseded(st, gen)
	return rec, nil
}

// ShowMeAnother records the no-judgement skip and produces the next pick
// without tag bias.
func (e *Engine) ShowMeAnother(ctx context.Context, p *Profile, skipped Candidate) (*Recommendation, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrProfileIncomplete
	}

	e.dispatchAction(ctx, p.UserID, &skipped, ActionShowMeAnother)

	st, gen := e.attemptInPlace(p.UserID)
	st.mu.Lock()
	st.rejects[skipped.ID] = struct{}{}
	st.mu.Unlock()

	pool, fetchErr := e.fetchPool(ctx, p, st)
	alog := e.deps.Recorder.Start(ctx, p)

	if fetchErr != nil {
		alog.Complete(ctx, "", OutcomeError)
		metrics.RecommendationRequests.WithLabelValues(OutcomeError.String()).Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, fetchErr)
	}

	weights := e.loadWeights(ctx, p.UserID)
	exclude := e.exclusionSet(p, st)

	res := e.cascade.Recommend(pool, p, weights, exclude)
	rec := e.finishAttempt(ctx, alog, p, weights, res)
	rec.Superseded = e.superseded(st, gen)
	return rec, nil
}

// Picks produces the tiered multi-pick carousel. The pick count comes from
// the user's accumulated interaction points; more engagement means fewer
// simultaneous picks.
func (e *Engine) Picks(ctx context.Context, p *Profile) (*PickSet, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrProfileIncomplete
	}

	st, gen := e.beginAttempt(p.UserID)

	pickCount, err := e.deps.Points.PickCount(ctx, p.UserID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("pick count lookup failed, using widest tier")
		pickCount = e.cfg.Points.PickCountFor(0)
	}

	pool, fetchErr := e.fetchPool(ctx, p, st)
	alog := e.deps.Recorder.Start(ctx, p)

	if fetchErr != nil {
		alog.Complete(ctx, "", OutcomeError)
		metrics.RecommendationRequests.WithLabelValues(OutcomeError.String()).Inc()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, fetchErr)
	}

	weights := e.loadWeights(ctx, p.UserID)
	exclude := e.exclusionSet(p, st)

	picks, rejections := e.allocator.Allocate(pool, p, weights, exclude, pickCount)

	ids := make([]string, len(pool))
	for i := range pool {
		ids[i] = pool[i].ID
	}
	alog.AddCandidates(ids)
	for id, rule := range rejections {
		alog.AddRejection(id, rule)
		metrics.ValidationRejections.WithLabelValues(string(rule)).Inc()
	}
	alog.AddScoredCandidates(picks, weights)

	set := &PickSet{SessionID: alog.ID()}
	if len(picks) == 0 {
		res := e.cascade.Recommend(pool, p, weights, exclude) // for the stop condition
		set.Outcome = OutcomeNoValidMovie
		set.StopText = res.Stop.Description()
		alog.Complete(ctx, "", OutcomeNoValidMovie)
		metrics.RecommendationRequests.WithLabelValues(OutcomeNoValidMovie.String()).Inc()
	} else {
		st.mu.Lock()
		st.slots = make([]pickSlot, len(picks))
		for i, c := range picks {
			st.slots[i] = pickSlot{cand: c}
			set.Picks = append(set.Picks, Pick{Candidate: c, Position: i})
		}
		st.mu.Unlock()

		set.Outcome = OutcomeMovieRecommended
		alog.Complete(ctx, picks[0].ID, OutcomeMovieRecommended)
		metrics.RecommendationRequests.WithLabelValues(OutcomeMovieRecommended.String()).Inc()
	}

	set.Superseded = e.superseded(st, gen)
	return set, nil
}

// ReplacePick serves the one-shot replacement for a rejected carousel pick.
// The first rejection at a position refills it; a second rejection at the
// same position removes the card entirely, preventing unbounded churn
// against a shrinking pool. The session-cached pool is reused, never
// re-fetched.
func (e *Engine) ReplacePick(ctx context.Context, p *Profile, rejectedID string, reason ReplaceReason) (*Replacement, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrProfileIncomplete
	}

	st := e.session(p.UserID)
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := -1
	for i := range st.slots {
		if !st.slots[i].removed && st.slots[i].cand.ID == rejectedID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPickNotFound, rejectedID)
	}

	rejected := st.slots[idx].cand
	st.rejects[rejected.ID] = struct{}{}

	// Learning signal for the rejection itself.
	rejectAction := ActionNotTonight
	if reason == ReplaceAlreadySeen {
		rejectAction = ActionAlreadySeen
	}
	e.dispatchAction(ctx, p.UserID, &rejected, rejectAction)

	if st.slots[idx].replaced {
		st.slots[idx].removed = true
		e.logger.Debug().
			Str("user_id", p.UserID).
			Str("movie_id", rejectedID).
			Int("position", idx).
			Msg("second rejection at position, card removed")
		return &Replacement{Position: idx, Removed: true}, nil
	}

	weights := e.loadWeights(ctx, p.UserID)
	exclude := p.ExclusionSet()
	for id := range st.rejects {
		exclude[id] = struct{}{}
	}

	current := make([]Candidate, 0, len(st.slots))
	for i := range st.slots {
		if !st.slots[i].removed {
			current = append(current, st.slots[i].cand)
		}
	}

	repl := e.allocator.FindReplacement(st.pool, p, weights, exclude, &rejected, reason, current)
	if repl == nil {
		st.slots[idx].removed = true
		return &Replacement{Position: idx, Removed: true}, nil
	}

	st.slots[idx] = pickSlot{cand: *repl, replaced: true}
	e.deps.Points.Record(ctx, p.UserID, ActionReplacementShown)
	metrics.PickReplacements.WithLabelValues(reason.String()).Inc()

	return &Replacement{Movie: repl, Position: idx}, nil
}

// Accept records acceptance of a pick: the chosen card reinforces its tags,
// every other live card in the batch receives the implicit-skip signal, and
// a post-watch feedback prompt is scheduled.
func (e *Engine) Accept(ctx context.Context, p *Profile, chosen Candidate) error {
	if p == nil || p.UserID == "" {
		return ErrProfileIncomplete
	}

	e.dispatchAction(ctx, p.UserID, &chosen, ActionWatchNow)

	st := e.session(p.UserID)
	st.mu.Lock()
	skipped := make([]Candidate, 0, len(st.slots))
	for i := range st.slots {
		if !st.slots[i].removed && st.slots[i].cand.ID != chosen.ID {
			skipped = append(skipped, st.slots[i].cand)
		}
	}
	st.slots = nil
	st.mu.Unlock()

	for i := range skipped {
		e.dispatchAction(ctx, p.UserID, &skipped[i], ActionImplicitSkip)
	}

	if e.deps.Feedback != nil {
		if err := e.deps.Feedback.Schedule(ctx, p.UserID, &chosen); err != nil {
			e.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("feedback scheduling failed")
		}
	}

	return nil
}

// RecordAction applies a standalone learning signal (e.g. already_seen from
// the detail screen).
func (e *Engine) RecordAction(ctx context.Context, userID string, c Candidate, action Action) {
	e.dispatchAction(ctx, userID, &c, action)
}

// dispatchAction fans a user action out to the weight and points stores.
// Both are best-effort: a lost signal degrades personalization gradually,
// not the product experience.
func (e *Engine) dispatchAction(ctx context.Context, userID string, c *Candidate, action Action) {
	e.deps.Weights.Apply(ctx, userID, c, action)
	e.deps.Points.Record(ctx, userID, action)
	metrics.LearningSignals.WithLabelValues(action.String()).Inc()
}

// finishAttempt records the cascade result in the attempt log and builds the
// terminal Recommendation.
func (e *Engine) finishAttempt(ctx context.Context, alog AttemptLog, p *Profile, weights TagWeights, res Result) *Recommendation {
	alog.AddCandidates(res.Trace.CandidateIDs)
	for id, rule := range res.Trace.Rejections {
		alog.AddRejection(id, rule)
		metrics.ValidationRejections.WithLabelValues(string(rule)).Inc()
	}
	alog.AddScoredCandidates(res.Trace.Survivors, weights)
	if len(res.Trace.PenaltyTags) > 0 {
		alog.AddPenalty(res.Trace.PenaltyTags, res.Trace.PenaltyStrength)
	}

	rec := &Recommendation{
		SessionID: alog.ID(),
		Movie:     res.Movie,
		Level:     res.Level,
		Stop:      res.Stop,
	}

	if res.Movie != nil {
		rec.Outcome = OutcomeMovieRecommended
		alog.Complete(ctx, res.Movie.ID, OutcomeMovieRecommended)
		metrics.FallbackLevelReached.Observe(float64(res.Level))
	} else {
		rec.Outcome = OutcomeNoValidMovie
		rec.StopText = res.Stop.Description()
		alog.Complete(ctx, "", OutcomeNoValidMovie)
	}
	metrics.RecommendationRequests.WithLabelValues(rec.Outcome.String()).Inc()

	return rec
}

// fetchPool retrieves the candidate pool under the configured soft deadline
// and caches it on the session for replacements.
func (e *Engine) fetchPool(ctx context.Context, p *Profile, st *userSession) ([]Candidate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	contentType := ContentMovie
	if p.RequiresSeries {
		contentType = ContentSeries
	}

	pool, err := e.deps.Source.FetchCandidates(fetchCtx, p.PreferredLanguages, contentType, e.cfg.PoolLimit)
	if err != nil {
		metrics.CatalogFetchErrors.Inc()
		return nil, err
	}

	st.mu.Lock()
	st.pool = pool
	st.mu.Unlock()

	return pool, nil
}

// loadWeights fetches the user's weight vector, degrading to defaults on
// failure: an unpersonalized pick beats no pick.
func (e *Engine) loadWeights(ctx context.Context, userID string) TagWeights {
	w, err := e.deps.Weights.Weights(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("weight load failed, using defaults")
		return TagWeights{}
	}
	return w
}

// exclusionSet merges the profile's persistent exclusions with the
// session-local rejects.
func (e *Engine) exclusionSet(p *Profile, st *userSession) map[string]struct{} {
	exclude := p.ExclusionSet()
	st.mu.Lock()
	for id := range st.rejects {
		exclude[id] = struct{}{}
	}
	st.mu.Unlock()
	return exclude
}

// session returns the user's session state, creating it if needed.
func (e *Engine) session(userID string) *userSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.sessions[userID]
	if !ok {
		st = &userSession{rejects: make(map[string]struct{})}
		e.sessions[userID] = st
	}
	return st
}

// beginAttempt starts a fresh attempt: session-local rejects and carousel
// slots reset, generation advances so in-flight attempts become stale.
func (e *Engine) beginAttempt(userID string) (*userSession, uint64) {
	st := e.session(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.generation++
	st.rejects = make(map[string]struct{})
	st.slots = nil
	return st, st.generation
}

// attemptInPlace advances the generation without resetting session-local
// state; used by the reject-and-continue flows.
func (e *Engine) attemptInPlace(userID string) (*userSession, uint64) {
	st := e.session(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.generation++
	return st, st.generation
}

// superseded reports whether a newer attempt started after gen.
func (e *Engine) superseded(st *userSession, gen uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.generation != gen
}
