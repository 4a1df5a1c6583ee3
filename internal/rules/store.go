// Package rules provides the rule store implementations: an in-memory
// copy-on-write store, a PostgreSQL-backed store, and a YAML file store.
// All of them satisfy types.RuleStore with snapshot read semantics — a
// slice handed to the dispatch pipeline never changes underneath it.
package rules

import (
	"context"
	"sync"

	"relaypoint/internal/types"
)

var _ types.RuleStore = (*MemoryStore)(nil)

// MemoryStore is a copy-on-write in-memory rule store. Reads return the
// current immutable snapshot without copying; writes build a new slice and
// swap it in under the lock. Suitable for tests and single-process setups
// where the configuration surface lives in the same binary.
type MemoryStore struct {
	mu    sync.RWMutex
	rules []types.Rule
}

// NewMemoryStore creates a MemoryStore seeded with the given rules.
func NewMemoryStore(seed ...types.Rule) *MemoryStore {
	s := &MemoryStore{}
	s.ReplaceAll(seed)
	return s
}

// ListRules returns the rules bound to trigger, in insertion order.
func (s *MemoryStore) ListRules(_ context.Context, trigger types.TriggerID) ([]types.Rule, error) {
	s.mu.RLock()
	snapshot := s.rules
	s.mu.RUnlock()

	// The snapshot is immutable, but filtering still allocates a fresh
	// slice so callers can't observe each other.
	out := make([]types.Rule, 0, 4)
	for _, r := range snapshot {
		if r.Trigger == trigger {
			out = append(out, r)
		}
	}
	return out, nil
}

// ReplaceAll atomically replaces the full rule set.
func (s *MemoryStore) ReplaceAll(rules []types.Rule) {
	next := append([]types.Rule(nil), rules...)
	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
}

// Upsert adds a rule, or replaces the existing rule with the same ID while
// keeping its position.
func (s *MemoryStore) Upsert(rule types.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append([]types.Rule(nil), s.rules...)
	for i, r := range next {
		if r.ID == rule.ID {
			next[i] = rule
			s.rules = next
			return
		}
	}
	s.rules = append(next, rule)
}

// Delete removes the rule with the given ID. Removing an absent ID is a
// no-op.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]types.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.ID != id {
			next = append(next, r)
		}
	}
	s.rules = next
}
