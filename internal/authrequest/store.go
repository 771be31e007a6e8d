package authrequest

import (
	"context"
	"sync"
)

// Store describes persistence operations required by the auth request flow.
type Store interface {
	Create(ctx context.Context, req *AuthRequest) error
	Find(ctx context.Context, id string) (*AuthRequest, error)
	Update(ctx context.Context, req *AuthRequest) error
}

// InMemory implements Store with in-process concurrency safety.
// Used by HTTP tests and when no database is configured.
type InMemory struct {
	mu   sync.RWMutex
	recs map[string]*AuthRequest
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{recs: make(map[string]*AuthRequest)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, req *AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.recs[req.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*AuthRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemory) Update(ctx context.Context, req *AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[req.ID]; !ok {
		return ErrNotFound
	}
	cp := *req
	s.recs[req.ID] = &cp
	return nil
}
