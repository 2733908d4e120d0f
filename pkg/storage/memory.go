package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is a map-backed Store for tests and broker-less local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]map[string][]byte

	// FailNextSet, when non-nil, makes the next Set return the given error.
	// Used to exercise compensating-transition paths in tests.
	FailNextSet error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, group, key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.groups[group][key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("unmarshal %s/%s: %w", group, key, err)
	}
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, group, key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextSet != nil {
		err := s.FailNextSet
		s.FailNextSet = nil
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", group, key, err)
	}
	if s.groups[group] == nil {
		s.groups[group] = make(map[string][]byte)
	}
	s.groups[group][key] = data
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, group, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups[group], key)
	return nil
}

func (s *MemoryStore) ScanGroup(_ context.Context, group string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	snapshot := make(map[string][]byte, len(s.groups[group]))
	for k, v := range s.groups[group] {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	for k, v := range snapshot {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
