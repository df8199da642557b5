package photo

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Photo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Photo)}
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) Save(ctx context.Context, p *Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[p.ID] = *p
	return nil
}
