package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
)

// MemoryEntityStore keeps entities in a map. Values are copied on the way in
// and out so callers never share pointers with the store.
type MemoryEntityStore struct {
	mu       sync.RWMutex
	entities map[string]model.TrackedEntity
	now      func() time.Time
}

// NewMemoryEntityStore returns an empty store.
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{entities: make(map[string]model.TrackedEntity), now: time.Now}
}

func (s *MemoryEntityStore) Create(_ context.Context, e model.TrackedEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[e.ID]; ok {
		return ErrConflict
	}
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.entities[e.ID] = e.Clone()
	return nil
}

func (s *MemoryEntityStore) Get(_ context.Context, id string) (model.TrackedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return model.TrackedEntity{}, entityNotFound(id)
	}
	return e.Clone(), nil
}

func (s *MemoryEntityStore) List(_ context.Context) ([]model.TrackedEntity, error) {
	s.mu.RLock()
	out := make([]model.TrackedEntity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryEntityStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return entityNotFound(id)
	}
	delete(s.entities, id)
	return nil
}

func (s *MemoryEntityStore) UpdateState(_ context.Context, id string, u model.StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return entityNotFound(id)
	}
	if u.Position != nil {
		p := *u.Position
		e.Position = &p
	}
	if u.Battery != nil {
		b := *u.Battery
		e.Battery = &b
	}
	if !u.LastFixAt.IsZero() {
		e.LastFixAt = u.LastFixAt
	}
	e.Status = u.Status
	e.UpdatedAt = s.now()
	s.entities[id] = e
	return nil
}

// MemoryFenceStore keeps geofences in a map.
type MemoryFenceStore struct {
	mu     sync.RWMutex
	fences map[string]model.Geofence
	now    func() time.Time
}

// NewMemoryFenceStore returns an empty store.
func NewMemoryFenceStore() *MemoryFenceStore {
	return &MemoryFenceStore{fences: make(map[string]model.Geofence), now: time.Now}
}

func (s *MemoryFenceStore) Get(_ context.Context, name string) (model.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.fences[name]
	if !ok {
		return model.Geofence{}, fenceNotFound(name)
	}
	return g.Clone(), nil
}

func (s *MemoryFenceStore) Replace(_ context.Context, name string, vertices []model.Point) (model.Geofence, error) {
	g := model.Geofence{
		Name:      name,
		Vertices:  append([]model.Point(nil), vertices...),
		UpdatedAt: s.now(),
	}

	s.mu.Lock()
	s.fences[name] = g
	s.mu.Unlock()
	return g.Clone(), nil
}

func (s *MemoryFenceStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fences[name]; !ok {
		return fenceNotFound(name)
	}
	delete(s.fences, name)
	return nil
}

func (s *MemoryFenceStore) List(_ context.Context) ([]model.Geofence, error) {
	s.mu.RLock()
	out := make([]model.Geofence, 0, len(s.fences))
	for _, g := range s.fences {
		out = append(out, g.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
