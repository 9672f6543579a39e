// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package recommend implements the decision core of Reelpick: a multi-stage
// filter/score/fallback pipeline that picks one or more catalog items for a
// single user, respecting stated intent (mood, platforms, languages, runtime,
// content type) and prior history (seen / not-tonight / abandoned).
//
// The pipeline, leaves first:
//
//   - Validator: hard pass/fail rules over a candidate given a profile,
//     evaluated in a fixed order so the first failing rule is the one
//     reported.
//   - Scorer: deterministic numeric rank from baseline quality, tag-weighted
//     intent alignment, and a mood bonus.
//   - Cascade: retries validation+scoring through progressively relaxed
//     profiles (drop runtime, primary language only, drop platform, drop all
//     soft filters) and yields a terminal StopCondition on total exhaustion.
//   - Allocator: expands a single recommendation into a tiered multi-pick
//     carousel with one-shot replacement semantics per position.
//   - Engine: orchestrates one attempt end to end, records it through the
//     session ledger, and dispatches learning signals.
//
// Apart from the shared Prometheus instrumentation, this package has no
// dependencies on other internal packages. External collaborators (candidate
// supply, maturity filtering, weight and points stores, session recording,
// feedback scheduling) are consumed through
// interfaces declared here, so the learning, ledger, feedback, catalog and
// store packages can depend on recommend without cycles.
package recommend
