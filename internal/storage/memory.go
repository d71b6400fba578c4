package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	triggers map[string]Trigger
	runs     []RunRecord
	dedup    map[string]time.Time
	closed   bool
}

func newMemory() *memStore {
	return &memStore{
		triggers: map[string]Trigger{},
		dedup:    map[string]time.Time{},
	}
}

func (s *memStore) PutTrigger(_ context.Context, t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.triggers[t.Key()] = t
	return nil
}

func (s *memStore) GetTrigger(_ context.Context, name string) (Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[TriggerKey(name)]
	if !ok {
		return Trigger{}, ErrNotFound
	}
	return t, nil
}

func (s *memStore) ListTriggers(_ context.Context) ([]Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedTriggers(s.triggers), nil
}

func (s *memStore) DeleteTrigger(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := TriggerKey(name)
	if _, ok := s.triggers[k]; !ok {
		return ErrNotFound
	}
	delete(s.triggers, k)
	return nil
}

func (s *memStore) AppendRun(_ context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *memStore) ListRuns(_ context.Context, triggerID string, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestRuns(s.runs, triggerID, limit), nil
}

func (s *memStore) PruneRuns(_ context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	s.runs, removed = pruneRuns(s.runs, keep)
	return removed, nil
}

func (s *memStore) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	s.dedup[key] = until
	s.mu.Unlock()
	return nil
}

func (s *memStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.dedup[key]
	return until, ok, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortedTriggers(m map[string]Trigger) []Trigger {
	out := make([]Trigger, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// newestRuns expects runs in append order and returns matches newest first.
func newestRuns(runs []RunRecord, triggerID string, limit int) []RunRecord {
	out := make([]RunRecord, 0, 8)
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].TriggerID != triggerID {
			continue
		}
		out = append(out, runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// pruneRuns keeps the newest keep runs per trigger, preserving append order.
func pruneRuns(runs []RunRecord, keep int) ([]RunRecord, int) {
	if keep <= 0 {
		return runs, 0
	}
	seen := map[string]int{}
	drop := make([]bool, len(runs))
	removed := 0
	for i := len(runs) - 1; i >= 0; i-- {
		id := runs[i].TriggerID
		seen[id]++
		if seen[id] > keep {
			drop[i] = true
			removed++
		}
	}
	if removed == 0 {
		return runs, 0
	}
	out := make([]RunRecord, 0, len(runs)-removed)
	for i, r := range runs {
		if !drop[i] {
			out = append(out, r)
		}
	}
	return out, removed
}
