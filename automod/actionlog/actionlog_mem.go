package actionlog

import (
	"context"
	"sync"
)

type MemStore struct {
	mu   sync.Mutex
	Data map[string][]Entry
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Data: make(map[string][]Entry),
	}
}

func (s *MemStore) Append(ctx context.Context, scopeID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Data[scopeID] = prependBounded(s.Data[scopeID], entry)
	return nil
}

func (s *MemStore) List(ctx context.Context, scopeID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := truncate(s.Data[scopeID], limit)
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}
