package cache

import (
	"context"
	"sync"
)

type memPartition struct {
	keys    []string
	entries map[string]Entry
}

// MemoryStore keeps partitions in process. Keys are listed in insertion
// order.
type MemoryStore struct {
	mu         sync.RWMutex
	order      []string
	partitions map[string]*memPartition
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]*memPartition)}
}

func (s *MemoryStore) Open(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(partition)
	return nil
}

func (s *MemoryStore) openLocked(partition string) *memPartition {
	p, ok := s.partitions[partition]
	if !ok {
		p = &memPartition{entries: make(map[string]Entry)}
		s.partitions[partition] = p
		s.order = append(s.order, partition)
	}
	return p
}

func (s *MemoryStore) Match(ctx context.Context, partition, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[partition]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e, ok := p.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, partition, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.openLocked(partition)
	if _, exists := p.entries[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.entries[key] = e.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[partition]
	if !ok {
		return nil
	}
	if _, exists := p.entries[key]; !exists {
		return nil
	}
	delete(p.entries, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, partition string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[partition]
	if !ok {
		return nil, nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys, nil
}

func (s *MemoryStore) Partitions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

func (s *MemoryStore) DeletePartition(ctx context.Context, partition string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[partition]; !ok {
		return false, nil
	}
	delete(s.partitions, partition)
	for i, name := range s.order {
		if name == partition {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}
