// Package dedup implements the DedupStore (component A): the at-most-once
// reply oracle. Postgres (via domain.RepliedCommentRepository) is the
// authoritative store; an in-memory mirror of known IDs fronts it for O(1)
// local membership tests, per spec.md §4.A's optional-mirror allowance.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/observability"
)

// Store implements an at-most-once dedup oracle in front of a
// domain.RepliedCommentRepository.
type Store struct {
	repo domain.RepliedCommentRepository

	mu    sync.RWMutex
	known map[string]struct{}
}

// New constructs a Store backed by repo.
func New(repo domain.RepliedCommentRepository) *Store {
	return &Store{repo: repo, known: make(map[string]struct{})}
}

// WarmForUser preloads the in-memory mirror with every id already recorded
// for userID, per spec.md §4.A's list_ids_for_user cache-warming use.
func (s *Store) WarmForUser(ctx context.Context, userID string) error {
	ids, err := s.repo.ListIDsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("op=dedup.warm_for_user: %w", err)
	}
	s.mu.Lock()
	for _, id := range ids {
		s.known[id] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// ContainsAny returns the subset of ids already known to have been replied
// to. IDs found in the local mirror skip the round trip; everything else is
// checked against the authoritative store, since the mirror is a cache, not
// a source of truth.
func (s *Store) ContainsAny(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	var toCheck []string

	s.mu.RLock()
	for _, id := range ids {
		if _, ok := s.known[id]; ok {
			out[id] = true
			observability.DedupHitsTotal.Inc()
		} else {
			toCheck = append(toCheck, id)
		}
	}
	s.mu.RUnlock()

	if len(toCheck) == 0 {
		return out, nil
	}

	found, err := s.repo.ContainsAny(ctx, toCheck)
	if err != nil {
		return nil, fmt.Errorf("op=dedup.contains_any: %w", err)
	}

	s.mu.Lock()
	for id, present := range found {
		out[id] = present
		if present {
			s.known[id] = struct{}{}
			observability.DedupHitsTotal.Inc()
		}
	}
	s.mu.Unlock()

	return out, nil
}

// Insert idempotently records a reply. The mirror is only updated once the
// authoritative store confirms the row exists (I2: an insert must round-trip
// to the store before the caller treats the comment as reserved).
func (s *Store) Insert(ctx context.Context, r domain.RepliedComment) (bool, error) {
	inserted, err := s.repo.Insert(ctx, r)
	if err != nil {
		return false, fmt.Errorf("op=dedup.insert: %w", err)
	}
	s.mu.Lock()
	s.known[r.ExternalCommentID] = struct{}{}
	s.mu.Unlock()
	return inserted, nil
}

// ListIDsForUser delegates to the authoritative store.
func (s *Store) ListIDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.repo.ListIDsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("op=dedup.list_ids_for_user: %w", err)
	}
	return ids, nil
}

// CountForUserToday, StatsForUser and DailyCounts delegate to the
// authoritative store, so a Store satisfies domain.RepliedCommentRepository.
func (s *Store) CountForUserToday(ctx context.Context, userID string, today time.Time) (int64, error) {
	return s.repo.CountForUserToday(ctx, userID, today)
}

func (s *Store) StatsForUser(ctx context.Context, userID string) (domain.ReplyStats, error) {
	return s.repo.StatsForUser(ctx, userID)
}

func (s *Store) DailyCounts(ctx context.Context, userID string, days int) (map[string]int64, error) {
	return s.repo.DailyCounts(ctx, userID, days)
}
