// Reelpick - Adaptive Movie Night Recommendation Engine
// Copyright 2026 J. Marsh (reelpick)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelpick/reelpick

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/reelpick/reelpick/internal/feedback"
	"github.com/reelpick/reelpick/internal/learning"
	"github.com/reelpick/reelpick/internal/ledger"
	"github.com/reelpick/reelpick/internal/recommend"
)

// indexTimeLayout is a fixed-width UTC layout so index keys sort
// chronologically as bytes.
const indexTimeLayout = "2006-01-02T15:04:05.000000000"

// LoadWeights implements learning.WeightRepository.
func (s *Store) LoadWeights(_ context.Context, userID string) (recommend.TagWeights, error) {
	defer s.observe("load", "weights", time.Now())

	var w recommend.TagWeights
	err := s.getJSON(prefixWeights+userID, &w)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, learning.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load weights %s: %w", userID, err)
	}
	return w, nil
}

// SaveWeights implements learning.WeightRepository.
func (s *Store) SaveWeights(_ context.Context, userID string, w recommend.TagWeights) error {
	defer s.observe("save", "weights", time.Now())

	if err := s.setJSON(prefixWeights+userID, w); err != nil {
		return fmt.Errorf("save weights %s: %w", userID, err)
	}
	return nil
}

// LoadPoints implements learning.PointsRepository.
func (s *Store) LoadPoints(_ context.Context, userID string) (learning.PointsState, error) {
	defer s.observe("load", "points", time.Now())

	var st learning.PointsState
	err := s.getJSON(prefixPoints+userID, &st)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return learning.PointsState{}, learning.ErrNotFound
	}
	if err != nil {
		return learning.PointsState{}, fmt.Errorf("load points %s: %w", userID, err)
	}
	return st, nil
}

// SavePoints implements learning.PointsRepository.
func (s *Store) SavePoints(_ context.Context, userID string, st learning.PointsState) error {
	defer s.observe("save", "points", time.Now())

	if err := s.setJSON(prefixPoints+userID, st); err != nil {
		return fmt.Errorf("save points %s: %w", userID, err)
	}
	return nil
}

// SaveSession implements ledger.Repository. The session is written under its
// id plus a per-user chronological index key for listing.
func (s *Store) SaveSession(_ context.Context, sess *ledger.Session) error {
	defer s.observe("save", "session", time.Now())

	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	indexKey := sessionIndexKey(sess.UserID, sess.StartedAt, sess.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixSession+sess.ID), b); err != nil {
			return err
		}
		return txn.Set(indexKey, []byte(sess.ID))
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession implements ledger.Repository.
func (s *Store) GetSession(_ context.Context, id string) (*ledger.Session, error) {
	defer s.observe("load", "session", time.Now())

	var sess ledger.Session
	err := s.getJSON(prefixSession+id, &sess)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ledger.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &sess, nil
}

// ListSessions implements ledger.Repository, newest first.
func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]*ledger.Session, error) {
	defer s.observe("list", "session", time.Now())

	prefix := []byte(prefixSessionByUser + userID + ":")

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(ids) >= limit {
				break
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions %s: %w", userID, err)
	}

	out := make([]*ledger.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, ledger.ErrSessionNotFound) {
			continue // index entry outlived the record
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func sessionIndexKey(userID string, startedAt time.Time, id string) []byte {
	return []byte(prefixSessionByUser + userID + ":" + startedAt.UTC().Format(indexTimeLayout) + ":" + id)
}

// SavePrompt implements feedback.Repository. A pending prompt also claims the
// user's active-prompt pointer; a terminal prompt releases it.
func (s *Store) SavePrompt(_ context.Context, p *feedback.Prompt) error {
	defer s.observe("save", "prompt", time.Now())

	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prompt %s: %w", p.ID, err)
	}

	activeKey := []byte(prefixActivePrompt + p.UserID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixPrompt+p.ID), b); err != nil {
			return err
		}
		if !p.State.Terminal() {
			return txn.Set(activeKey, []byte(p.ID))
		}

		// Release the pointer only if it still points at this prompt.
		item, err := txn.Get(activeKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if bytes.Equal(current, []byte(p.ID)) {
			return txn.Delete(activeKey)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save prompt %s: %w", p.ID, err)
	}
	return nil
}

// ActivePrompt implements feedback.Repository.
func (s *Store) ActivePrompt(ctx context.Context, userID string) (*feedback.Prompt, error) {
	defer s.observe("load", "prompt", time.Now())

	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixActivePrompt + userID))
		if err != nil {
			return err
		}
		b, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(b)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, feedback.ErrNoPrompt
	}
	if err != nil {
		return nil, fmt.Errorf("load active prompt %s: %w", userID, err)
	}

	var p feedback.Prompt
	err = s.getJSON(prefixPrompt+id, &p)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, feedback.ErrNoPrompt
	}
	if err != nil {
		return nil, fmt.Errorf("load prompt %s: %w", id, err)
	}
	return &p, nil
}

// PendingPrompts implements feedback.Repository.
func (s *Store) PendingPrompts(_ context.Context) ([]*feedback.Prompt, error) {
	defer s.observe("list", "prompt", time.Now())

	var out []*feedback.Prompt
	prefix := []byte(prefixPrompt)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p feedback.Prompt
			err := it.Item().Value(func(b []byte) error {
				return json.Unmarshal(b, &p)
			})
			if err != nil {
				return err
			}
			if !p.State.Terminal() {
				cp := p
				out = append(out, &cp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pending prompts: %w", err)
	}
	return out, nil
}

// PurgeResolvedBefore implements feedback.Repository.
func (s *Store) PurgeResolvedBefore(_ context.Context, cutoff time.Time) (int, error) {
	defer s.observe("purge", "prompt", time.Now())

	prefix := []byte(prefixPrompt)
	var doomed [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p feedback.Prompt
			err := it.Item().Value(func(b []byte) error {
				return json.Unmarshal(b, &p)
			})
			if err != nil {
				return err
			}
			if p.State.Terminal() && !p.ResolvedAt.IsZero() && p.ResolvedAt.Before(cutoff) {
				doomed = append(doomed, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan prompts: %w", err)
	}

	for _, key := range doomed {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return 0, fmt.Errorf("delete prompt %s: %w", key, err)
		}
	}
	return len(doomed), nil
}
