// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

// Package catalog supplies the candidate pool. A Fetcher is any upstream
// content source; the package ships a file-backed implementation and wraps
// every fetcher in a circuit breaker so a misbehaving upstream fails fast
// instead of stalling recommendation requests.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/reelpick/reelpick/internal/recommend"
)

// Fetcher retrieves raw candidates from an upstream source. Implementations
// must honor the context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, languages []string, contentType recommend.ContentType, limit int) ([]recommend.Candidate, error)
}

// FileSource serves candidates from a JSON catalog file: a flat array of
// candidate objects. The file is parsed once at construction; Reload picks up
// edits without a restart.
type FileSource struct {
	path string

	mu    sync.RWMutex
	items []recommend.Candidate
}

// NewFileSource loads the catalog file at path.
func NewFileSource(path string) (*FileSource, error) {
	s := &FileSource{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog file.
func (s *FileSource) Reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", s.path, err)
	}

	var items []recommend.Candidate
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("parse catalog %s: %w", s.path, err)
	}
	for i := range items {
		if items[i].ID == "" {
			return fmt.Errorf("parse catalog %s: entry %d has no id", s.path, i)
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// Len returns the number of catalog entries.
func (s *FileSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Fetch returns up to limit candidates of the requested content type.
// Preferred languages order the result but never exclude: relaxation in the
// decision core must still be able to reach other-language titles.
func (s *FileSource) Fetch(ctx context.Context, languages []string, contentType recommend.ContentType, limit int) ([]recommend.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]recommend.Candidate, 0, limit)
	for i := range s.items {
		if s.items[i].ContentType != contentType {
			continue
		}
		out = append(out, s.items[i])
	}

	if len(languages) > 0 {
		preferred := make(map[string]struct{}, len(languages))
		for _, l := range languages {
			preferred[strings.ToLower(l)] = struct{}{}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return speaksAny(&out[i], preferred) && !speaksAny(&out[j], preferred)
		})
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func speaksAny(c *recommend.Candidate, preferred map[string]struct{}) bool {
	for _, l := range c.Languages {
		if _, ok := preferred[strings.ToLower(l)]; ok {
			return true
		}
	}
	return false
}
