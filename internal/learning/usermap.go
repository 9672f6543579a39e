// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package learning

import "sync"

// userState is one user's in-memory state plus its lock. The per-user lock
// keeps read-modify-write cycles atomic without serializing unrelated users.
type userState[T any] struct {
	mu     sync.Mutex
	loaded bool
	state  T
}

// userMap is a concurrency-safe map of user id to lazily created state.
type userMap[T any] struct {
	mu    sync.Mutex
	users map[string]*userState[T]
}

func newUserMap[T any]() *userMap[T] {
	return &userMap[T]{users: make(map[string]*userState[T])}
}

func (m *userMap[T]) get(userID string) *userState[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		u = &userState[T]{}
		m.users[userID] = u
	}
	return u
}
