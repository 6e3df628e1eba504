// Package cache holds the client-side read model of entities. The cache is
// only ever changed by merging a confirmed backend result by id, removing an
// id after a confirmed hard delete, or explicit invalidation.
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Cache is a read model keyed by entity id.
type Cache interface {
	// Get returns the cached entity and whether it was present.
	Get(ctx context.Context, id string) (*types.Entity, bool, error)
	// List returns the cached entities of one type, newest first.
	List(ctx context.Context, entityType string) ([]*types.Entity, error)
	// Merge inserts e or replaces the entry with the same id.
	Merge(ctx context.Context, e *types.Entity) error
	// Remove drops id. Removing an absent id is not an error.
	Remove(ctx context.Context, id string) error
	// Invalidate drops every entity of entityType.
	Invalidate(ctx context.Context, entityType string) error
}

// Memory is an in-process Cache. The zero value is not usable; call NewMemory.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]*types.Entity
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entities: make(map[string]*types.Entity)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, id string) (*types.Entity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[id]
	return e.Clone(), ok, nil
}

// List implements Cache.
func (m *Memory) List(_ context.Context, entityType string) ([]*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Entity, 0)
	for _, e := range m.entities {
		if e.EntityType == entityType {
			out = append(out, e.Clone())
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// Merge implements Cache.
func (m *Memory) Merge(_ context.Context, e *types.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e.Clone()
	return nil
}

// Remove implements Cache.
func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entities, id)
	return nil
}

// Invalidate implements Cache.
func (m *Memory) Invalidate(_ context.Context, entityType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entities {
		if e.EntityType == entityType {
			delete(m.entities, id)
		}
	}
	return nil
}

// Len returns the number of cached entities.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// SortNewestFirst orders entities by creation time descending, then id.
func SortNewestFirst(es []*types.Entity) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].CreatedAt.After(es[j].CreatedAt)
		}
		return es[i].ID < es[j].ID
	})
}
