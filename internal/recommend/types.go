// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package recommend

import (
	"context"
	"fmt"
)

// ContentType distinguishes movies from series.
type ContentType int

const (
	// ContentMovie is a feature-length movie.
	ContentMovie ContentType = iota
	// ContentSeries is episodic content.
	ContentSeries
)

// String returns a human-readable name for the content type.
func (t ContentType) String() string {
	switch t {
	case ContentMovie:
		return "movie"
	case ContentSeries:
		return "tv"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ContentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ContentType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "movie", "":
		*t = ContentMovie
	case "tv", "series":
		*t = ContentSeries
	default:
		return fmt.Errorf("unknown content type %q", b)
	}
	return nil
}

// Candidate is a catalog item under consideration. Immutable for the
// duration of one recommendation request.
type Candidate struct {
	// ID is the catalog identifier.
	ID string `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Tags is the set of content descriptors (e.g. "feel_good", "dark").
	Tags []string `json:"tags"`

	// GoodScore is the baseline quality on a 0-10 scale.
	GoodScore float64 `json:"goodscore"`

	// CompositeScore is a pre-blended 0-100 quality value. When greater
	// than zero it takes precedence over GoodScore*10.
	CompositeScore float64 `json:"composite_score,omitempty"`

	// RuntimeMinutes is the runtime. Series report a per-episode runtime
	// and are exempt from runtime-window validation.
	RuntimeMinutes int `json:"runtime_minutes"`

	// Languages lists available audio languages.
	Languages []string `json:"languages"`

	// Platforms lists streaming platforms carrying the item.
	Platforms []string `json:"platforms"`

	// ContentType is movie or tv.
	ContentType ContentType `json:"content_type"`

	// ContentRating is the maturity rating (e.g. "PG-13", "R"), consumed
	// by the external content filter.
	ContentRating string `json:"content_rating,omitempty"`
}

// Quality returns the candidate's baseline quality on the common 0-100
// scale: CompositeScore when set, otherwise GoodScore*10.
func (c *Candidate) Quality() float64 {
	if c.CompositeScore > 0 {
		return c.CompositeScore
	}
	return c.GoodScore * 10
}

// RuntimeWindow bounds acceptable runtime in minutes. A zero-valued window
// means no constraint.
type RuntimeWindow struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Unconstrained reports whether the window imposes no runtime limit.
func (w RuntimeWindow) Unconstrained() bool {
	return w.Min == 0 && w.Max == 0
}

// Style selects the recommendation temperament chosen during onboarding.
type Style int

const (
	// StylePerfectMatch favors the closest fit to stated intent.
	StylePerfectMatch Style = iota
	// StyleSurpriseMe tolerates looser intent alignment for discovery.
	StyleSurpriseMe
)

// String returns a human-readable style name.
func (s Style) String() string {
	switch s {
	case StylePerfectMatch:
		return "perfect_match"
	case StyleSurpriseMe:
		return "surprise_me"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Style) UnmarshalText(b []byte) error {
	switch string(b) {
	case "perfect_match", "":
		*s = StylePerfectMatch
	case "surprise_me":
		*s = StyleSurpriseMe
	default:
		return fmt.Errorf("unknown style %q", b)
	}
	return nil
}

// MaturityInfo carries the user's content-filter context. It is opaque to
// the validator, which delegates the actual decision to a ContentFilter.
type MaturityInfo struct {
	// RestrictMature excludes mature-rated content entirely.
	RestrictMature bool `json:"restrict_mature"`

	// MaxRating is the highest acceptable content rating, empty for none.
	MaxRating string `json:"max_rating,omitempty"`
}

// Profile is the immutable per-request snapshot of a user's stated intent
// and history. Exclusion sets are monotonically non-decreasing within a
// user's lifetime; a profile never removes an id once excluded except via
// explicit reset upstream.
type Profile struct {
	UserID string `json:"user_id"`

	// PreferredLanguages, ordered by preference; index 0 is primary.
	// Empty means no language constraint.
	PreferredLanguages []string `json:"preferred_languages"`

	// Platforms the user can watch on. Empty means no constraint.
	Platforms []string `json:"platforms"`

	// Runtime is the acceptable runtime window for movies.
	Runtime RuntimeWindow `json:"runtime"`

	// Mood is the stated mood for this session (e.g. "feel-good").
	Mood string `json:"mood"`

	// IntentTags are the content descriptors for the stated mood.
	IntentTags []string `json:"intent_tags"`

	// Style is the recommendation temperament.
	Style Style `json:"style"`

	// RequiresSeries restricts results to episodic content when true;
	// when false only movies are considered.
	RequiresSeries bool `json:"requires_series"`

	// Maturity is the content-filter context.
	Maturity MaturityInfo `json:"maturity"`

	// Seen, NotTonight and Abandoned are the persistent exclusion sets.
	Seen       []string `json:"seen"`
	NotTonight []string `json:"not_tonight"`
	Abandoned  []string `json:"abandoned"`
}

// ExclusionSet returns the union of the profile's persistent exclusion sets
// plus any extra session-local rejects.
func (p *Profile) ExclusionSet(extra ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(p.Seen)+len(p.NotTonight)+len(p.Abandoned)+len(extra))
	for _, id := range p.Seen {
		set[id] = struct{}{}
	}
	for _, id := range p.NotTonight {
		set[id] = struct{}{}
	}
	for _, id := range p.Abandoned {
		set[id] = struct{}{}
	}
	for _, id := range extra {
		set[id] = struct{}{}
	}
	return set
}

// TagWeights is a per-user affinity vector over content tags. Unknown tags
// weigh DefaultTagWeight.
type TagWeights map[string]float64

// DefaultTagWeight is the weight assumed for tags the user has no signal on.
const DefaultTagWeight = 1.0

// Get returns the weight for a tag, defaulting to DefaultTagWeight.
func (w TagWeights) Get(tag string) float64 {
	if v, ok := w[tag]; ok {
		return v
	}
	return DefaultTagWeight
}

// Clone returns a copy of the vector.
func (w TagWeights) Clone() TagWeights {
	out := make(TagWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Action names a user interaction that feeds learning and engagement points.
type Action int

const (
	// ActionWatchNow is acceptance of a recommendation.
	ActionWatchNow Action = iota
	// ActionNotTonight is rejection of the current pick for this session.
	ActionNotTonight
	// ActionAlreadySeen marks a pick as previously watched.
	ActionAlreadySeen
	// ActionShowMeAnother requests a different pick without judgement.
	ActionShowMeAnother
	// ActionImplicitSkip is applied to non-chosen cards when a different
	// card in a multi-pick batch was accepted.
	ActionImplicitSkip
	// ActionReplacementShown is emitted when a carousel slot is refilled.
	ActionReplacementShown
	// ActionFeedbackCompleted is the post-watch "finished it" signal.
	ActionFeedbackCompleted
	// ActionFeedbackAbandoned is the post-watch "gave up on it" signal.
	ActionFeedbackAbandoned
)

// String returns the action's wire name.
func (a Action) String() string {
	switch a {
	case ActionWatchNow:
		return "watch_now"
	case ActionNotTonight:
		return "not_tonight"
	case ActionAlreadySeen:
		return "already_seen"
	case ActionShowMeAnother:
		return "show_me_another"
	case ActionImplicitSkip:
		return "implicit_skip"
	case ActionReplacementShown:
		return "replacement_shown"
	case ActionFeedbackCompleted:
		return "feedback_completed"
	case ActionFeedbackAbandoned:
		return "feedback_abandoned"
	default:
		return "unknown"
	}
}

// ParseAction converts a wire name to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "watch_now":
		return ActionWatchNow, nil
	case "not_tonight":
		return ActionNotTonight, nil
	case "already_seen":
		return ActionAlreadySeen, nil
	case "show_me_another":
		return ActionShowMeAnother, nil
	case "implicit_skip":
		return ActionImplicitSkip, nil
	case "replacement_shown":
		return ActionReplacementShown, nil
	case "feedback_completed":
		return ActionFeedbackCompleted, nil
	case "feedback_abandoned":
		return ActionFeedbackAbandoned, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}

// Rule labels a specific validation rule for diagnosability.
type Rule string

const (
	RuleExcluded    Rule = "excluded"
	RuleContentType Rule = "content_type"
	RuleMaturity    Rule = "maturity"
	RulePlatform    Rule = "platform"
	RuleLanguage    Rule = "language"
	RuleRuntime     Rule = "runtime"
)

// ValidationResult is the outcome of validating one candidate. When OK is
// false, FailedRule names the first rule that rejected the candidate.
type ValidationResult struct {
	OK         bool
	FailedRule Rule
}

// Valid returns a passing result.
func Valid() ValidationResult { return ValidationResult{OK: true} }

// Invalid returns a failing result naming the rule.
func Invalid(rule Rule) ValidationResult { return ValidationResult{FailedRule: rule} }

// FallbackLevel is an ordered relaxation step applied to the profile when no
// candidate validates at the current strictness. Levels are cumulative: each
// level keeps the relaxations of the levels below it.
type FallbackLevel int

const (
	// LevelFullProfile applies every constraint.
	LevelFullProfile FallbackLevel = iota
	// LevelNoRuntime drops the runtime window.
	LevelNoRuntime
	// LevelPrimaryLanguage keeps only the primary preferred language.
	LevelPrimaryLanguage
	// LevelNoPlatform additionally drops the platform constraint.
	LevelNoPlatform
	// LevelExclusionsOnly drops all soft filters; exclusions, content type
	// and the maturity filter always hold.
	LevelExclusionsOnly
)

// Description returns a human-readable explanation of the relaxation.
func (l FallbackLevel) Description() string {
	switch l {
	case LevelFullProfile:
		return "full profile match"
	case LevelNoRuntime:
		return "runtime window relaxed"
	case LevelPrimaryLanguage:
		return "secondary languages dropped"
	case LevelNoPlatform:
		return "platform constraint dropped"
	case LevelExclusionsOnly:
		return "all soft filters dropped"
	default:
		return "unknown"
	}
}

// StopCondition is a terminal, user-facing explanation for why no
// recommendation could be produced even after full relaxation.
type StopCondition int

const (
	// StopNone means a recommendation was produced.
	StopNone StopCondition = iota
	// StopNoCandidates means the candidate pool was empty.
	StopNoCandidates
	// StopAllExcluded means every candidate was already seen or rejected.
	StopAllExcluded
	// StopNoPlatformMatch means platform availability was the blocking
	// dimension.
	StopNoPlatformMatch
	// StopNoLanguageMatch means language was the blocking dimension.
	StopNoLanguageMatch
	// StopNoMatch is the generic exhaustion condition.
	StopNoMatch
)

// Description returns the user-facing message for the stop condition.
func (s StopCondition) Description() string {
	switch s {
	case StopNone:
		return ""
	case StopNoCandidates:
		return "no movies are available right now"
	case StopAllExcluded:
		return "you have already seen or passed on every matching movie"
	case StopNoPlatformMatch:
		return "no movies match your platforms"
	case StopNoLanguageMatch:
		return "no movies match your languages"
	case StopNoMatch:
		return "no movies match your preferences tonight"
	default:
		return "no recommendation available"
	}
}

// Outcome is the terminal state of one recommendation attempt.
type Outcome int

const (
	// OutcomeMovieRecommended means a pick was produced.
	OutcomeMovieRecommended Outcome = iota
	// OutcomeNoValidMovie means the cascade exhausted every level.
	OutcomeNoValidMovie
	// OutcomeProfileIncomplete means the caller invoked the engine before
	// the profile completeness gate.
	OutcomeProfileIncomplete
	// OutcomeError means an upstream dependency failed; the caller should
	// retry the whole request rather than assume exhaustion.
	OutcomeError
)

// String returns the outcome's wire name.
func (o Outcome) String() string {
	switch o {
	case OutcomeMovieRecommended:
		return "movie_recommended"
	case OutcomeNoValidMovie:
		return "no_valid_movie"
	case OutcomeProfileIncomplete:
		return "profile_incomplete"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "movie_recommended", "":
		*o = OutcomeMovieRecommended
	case "no_valid_movie":
		*o = OutcomeNoValidMovie
	case "profile_incomplete":
		*o = OutcomeProfileIncomplete
	case "error":
		*o = OutcomeError
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// ReplaceReason distinguishes why a carousel pick was rejected, which
// controls how strongly the replacement is biased away from its tags.
type ReplaceReason int

const (
	// ReplaceNotInterested applies the full tag bias: the content itself
	// was unwanted.
	ReplaceNotInterested ReplaceReason = iota
	// ReplaceAlreadySeen applies a weak bias: the content in kind may
	// still be desirable.
	ReplaceAlreadySeen
)

// String returns the reason's wire name.
func (r ReplaceReason) String() string {
	switch r {
	case ReplaceNotInterested:
		return "not_interested"
	case ReplaceAlreadySeen:
		return "already_seen"
	default:
		return "unknown"
	}
}

// ParseReplaceReason converts a wire name to a ReplaceReason.
func ParseReplaceReason(s string) (ReplaceReason, error) {
	switch s {
	case "not_interested":
		return ReplaceNotInterested, nil
	case "already_seen":
		return ReplaceAlreadySeen, nil
	default:
		return 0, fmt.Errorf("unknown replace reason %q", s)
	}
}

// CandidateSource supplies the raw candidate pool. Implementations must
// honor the context deadline; the engine calls with a soft timeout and
// proceeds with best-available state on expiry.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, languages []string, contentType ContentType, limit int) ([]Candidate, error)
}

// ContentFilter is the external maturity/content-filter collaborator.
type ContentFilter interface {
	// ShouldExclude reports whether the candidate is unsuitable for the
	// given maturity context.
	ShouldExclude(c *Candidate, maturity MaturityInfo) bool
}

// WeightSource provides per-user tag affinity weights and accepts learning
// signals. Apply is best-effort: implementations persist asynchronously and
// log failures rather than propagate them.
type WeightSource interface {
	Weights(ctx context.Context, userID string) (TagWeights, error)
	Apply(ctx context.Context, userID string, c *Candidate, action Action)
}

// PointsSource tracks engagement points and maps them to the number of
// simultaneous picks to surface.
type PointsSource interface {
	PickCount(ctx context.Context, userID string) (int, error)
	Record(ctx context.Context, userID string, action Action)
}

// AttemptLog records one in-flight recommendation attempt.
type AttemptLog interface {
	// ID returns the session identifier.
	ID() string
	// AddCandidates appends evaluated candidate ids to the trace.
	AddCandidates(ids []string)
	// AddRejection records the first failing rule for a candidate.
	AddRejection(id string, rule Rule)
	// AddScoredCandidates snapshots the validated candidates and the
	// weights they were scored with, for deterministic replay.
	AddScoredCandidates(cands []Candidate, weights TagWeights)
	// AddPenalty records the session-local rejected-tag bias the
	// candidates were ranked under, if any.
	AddPenalty(tags []string, strength float64)
	// Complete finalizes the attempt exactly once; duplicate calls are
	// no-ops. movieID is empty when no movie was recommended.
	Complete(ctx context.Context, movieID string, outcome Outcome)
}

// AttemptRecorder opens attempt logs. Implemented by the session ledger.
type AttemptRecorder interface {
	Start(ctx context.Context, profile *Profile) AttemptLog
}

// FeedbackNotifier schedules a post-acceptance feedback prompt.
type FeedbackNotifier interface {
	Schedule(ctx context.Context, userID string, c *Candidate) error
}
