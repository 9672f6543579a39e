// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package learning maintains the per-user personalization state: the tag
// affinity weight vector and the engagement points ledger. Both stores apply
// signals synchronously in memory and persist asynchronously through a
// bounded best-effort queue; a dropped write degrades personalization by one
// signal, never the request path.
package learning
