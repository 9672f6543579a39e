// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package api provides the HTTP surface over the recommendation engine,
// session ledger and feedback scheduler, routed with Chi.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/reelpick/reelpick/internal/feedback"
	"github.com/reelpick/reelpick/internal/ledger"
	"github.com/reelpick/reelpick/internal/recommend"
)

// maxBodyBytes caps request bodies; profiles and action payloads are small.
const maxBodyBytes = 1 << 20

// Handler serves all API endpoints.
type Handler struct {
	engine    *recommend.Engine
	ledger    *ledger.Ledger
	feedback  *feedback.Scheduler
	engineCfg *recommend.Config
	logger    zerolog.Logger
}

// NewHandler creates the API handler.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(engine *recommend.Engine, led *ledger.Ledger, fb *feedback.Scheduler, engineCfg *recommend.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:    engine,
		ledger:    led,
		feedback:  fb,
		engineCfg: engineCfg,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// recommendRequest is the body for the single-pick endpoint. After is set on
// follow-up requests: the user rejected or skipped the previous pick and
// wants the next one.
type recommendRequest struct {
	Profile recommend.Profile `json:"profile"`
	After   *afterAction      `json:"after,omitempty"`
}

type afterAction struct {
	Action string              `json:"action"` // not_tonight or show_me_another
	Movie  recommend.Candidate `json:"movie"`
}

// Recommend handles POST /api/v1/users/{userID}/recommendation.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Profile.UserID = chi.URLParam(r, "userID")

	var (
		rec *recommend.Recommendation
		err error
	)
	switch {
	case req.After == nil:
		rec, err = h.engine.Recommend(r.Context(), &req.Profile)
	case req.After.Action == recommend.ActionNotTonight.String():
		rec, err = h.engine.NotTonight(r.Context(), &req.Profile, req.After.Movie)
	case req.After.Action == recommend.ActionShowMeAnother.String():
		rec, err = h.engine.ShowMeAnother(r.Context(), &req.Profile, req.After.Movie)
	default:
		h.badRequest(w, "after.action must be not_tonight or show_me_another")
		return
	}
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respond(w, http.StatusOK, rec)
}

// Picks handles POST /api/v1/users/{userID}/picks.
func (h *Handler) Picks(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Profile.UserID = chi.URLParam(r, "userID")

	set, err := h.engine.Picks(r.Context(), &req.Profile)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respond(w, http.StatusOK, set)
}

// replaceRequest is the body for the one-shot replacement endpoint.
type replaceRequest struct {
	Profile recommend.Profile `json:"profile"`
	MovieID string            `json:"movie_id"`
	Reason  string            `json:"reason"` // not_interested or already_seen
}

// ReplacePick handles POST /api/v1/users/{userID}/picks/replace.
func (h *Handler) ReplacePick(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Profile.UserID = chi.URLParam(r, "userID")

	if req.MovieID == "" {
		h.badRequest(w, "movie_id is required")
		return
	}
	reason, err := recommend.ParseReplaceReason(req.Reason)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	repl, err := h.engine.ReplacePick(r.Context(), &req.Profile, req.MovieID, reason)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respond(w, http.StatusOK, repl)
}

// actionRequest is the body for the learning-signal endpoint.
type actionRequest struct {
	Profile recommend.Profile   `json:"profile"`
	Action  string              `json:"action"`
	Movie   recommend.Candidate `json:"movie"`
}

// RecordAction handles POST /api/v1/users/{userID}/actions. Accepting a pick
// (watch_now) flows through the full acceptance path: implicit skips for the
// rest of the batch and a scheduled feedback prompt.
func (h *Handler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")
	req.Profile.UserID = userID

	action, err := recommend.ParseAction(req.Action)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if req.Movie.ID == "" {
		h.badRequest(w, "movie.id is required")
		return
	}

	if action == recommend.ActionWatchNow {
		if err := h.engine.Accept(r.Context(), &req.Profile, req.Movie); err != nil {
			h.engineError(w, err)
			return
		}
	} else {
		h.engine.RecordAction(r.Context(), userID, req.Movie, action)
	}
	h.respond(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// FeedbackPrompt handles GET /api/v1/users/{userID}/feedback. 204 means no
// prompt is due.
func (h *Handler) FeedbackPrompt(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := h.feedback.Prompt(r.Context(), userID)
	switch {
	case errors.Is(err, feedback.ErrNoPrompt), errors.Is(err, feedback.ErrNotReady):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		h.internalError(w, err)
	default:
		h.respond(w, http.StatusOK, p)
	}
}

// feedbackRequest is the body for prompt resolution.
type feedbackRequest struct {
	Resolution string `json:"resolution"` // completed, abandoned or skipped
}

// ResolveFeedback handles POST /api/v1/users/{userID}/feedback/{movieID}.
func (h *Handler) ResolveFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")
	movieID := chi.URLParam(r, "movieID")

	active, err := h.feedback.Prompt(r.Context(), userID)
	if errors.Is(err, feedback.ErrNoPrompt) || errors.Is(err, feedback.ErrNotReady) {
		h.respondError(w, http.StatusNotFound, "no feedback prompt is due")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	if active.Movie.ID != movieID {
		h.respondError(w, http.StatusConflict, "the active prompt is for a different movie")
		return
	}

	switch req.Resolution {
	case string(feedback.StateCompleted):
		err = h.feedback.Complete(r.Context(), userID)
	case string(feedback.StateAbandoned):
		err = h.feedback.Abandon(r.Context(), userID)
	case string(feedback.StateSkipped):
		err = h.feedback.Skip(r.Context(), userID)
	default:
		h.badRequest(w, "resolution must be completed, abandoned or skipped")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"status": req.Resolution})
}

// Replay handles GET /api/v1/sessions/{sessionID}/replay.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	res, err := h.ledger.Replay(r.Context(), sessionID, h.engineCfg)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respond(w, http.StatusOK, res)
}

// Session handles GET /api/v1/sessions/{sessionID}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	s, err := h.ledger.Get(r.Context(), sessionID)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respond(w, http.StatusOK, s)
}

// Sessions handles GET /api/v1/users/{userID}/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	list, err := h.ledger.List(r.Context(), userID, 50)
	if err != nil {
		h.internalError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"sessions": list})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into v, responding with 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("response encoding failed")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.respondError(w, http.StatusBadRequest, msg)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("request failed")
	h.respondError(w, http.StatusInternalServerError, "internal error")
}

// engineError maps engine sentinels onto HTTP statuses.
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recommend.ErrProfileIncomplete):
		h.badRequest(w, err.Error())
	case errors.Is(err, recommend.ErrPickNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recommend.ErrSourceUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, "catalog unavailable, retry shortly")
	default:
		h.internalError(w, err)
	}
}
