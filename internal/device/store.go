package device

import (
	"context"
	"sort"
	"sync"
)

// Store describes persistence operations required by the device trust flow.
type Store interface {
	Create(ctx context.Context, d *Device) error
	Find(ctx context.Context, id string) (*Device, error)
	ListByUser(ctx context.Context, userID string) ([]*Device, error)
	Upsert(ctx context.Context, d *Device) error
}

// BatchUpserter is implemented by stores that can persist a set of device
// updates atomically. The Postgres store uses one transaction; callers fall
// back to per-device Upsert when a store does not implement it.
type BatchUpserter interface {
	UpsertMany(ctx context.Context, devices []*Device) error
}

// InMemory implements Store with in-process concurrency safety.
// Used by HTTP tests and when no database is configured.
type InMemory struct {
	mu   sync.RWMutex
	recs map[string]*Device
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{recs: make(map[string]*Device)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.recs[d.ID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemory) ListByUser(ctx context.Context, userID string) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Device
	for _, rec := range s.recs {
		if rec.UserID != userID {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) Upsert(ctx context.Context, d *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.recs[d.ID] = &cp
	return nil
}
