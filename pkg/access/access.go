// Package access exposes one generic accessor per entity kind. Feature code
// reads entities from the accessor's view of the read-model cache and writes
// through the orchestrator, so every kind gets the same validation, delete
// fallback and cache reconciliation.
package access

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Accessor is the per-kind facade over an Orchestrator. It is safe for
// concurrent use; the busy flags count operations in flight.
type Accessor struct {
	o          *orchestrator.Orchestrator
	entityType string
	query      types.EntityQuery

	mu  sync.RWMutex
	err error

	loading  atomic.Int32
	creating atomic.Int32
	updating atomic.Int32
	deleting atomic.Int32
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithQuery sets the filters used by Load and by Entities. The entity type
// of q is ignored.
func WithQuery(q types.EntityQuery) Option {
	return func(a *Accessor) { a.query = q }
}

// New returns the accessor for entityType.
func New(o *orchestrator.Orchestrator, entityType string, opts ...Option) *Accessor {
	a := &Accessor{o: o}
	for _, opt := range opts {
		opt(a)
	}
	a.entityType = entityType
	a.query.EntityType = entityType
	return a
}

// EntityType returns the kind this accessor serves.
func (a *Accessor) EntityType() string { return a.entityType }

// Entities returns the cached entities of this kind that match the
// accessor's filters, newest first.
func (a *Accessor) Entities(ctx context.Context) ([]*types.Entity, error) {
	all, err := a.o.Cache().List(ctx, a.entityType)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Entity, 0, len(all))
	for _, e := range all {
		if a.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Load queries the backend with the accessor's filters. Results are merged
// into the cache and returned.
func (a *Accessor) Load(ctx context.Context) ([]*types.Entity, error) {
	a.loading.Add(1)
	defer a.loading.Add(-1)
	list, err := a.o.Query(ctx, a.query)
	a.setErr(err)
	return list, err
}

// Create creates an entity of this kind.
func (a *Accessor) Create(ctx context.Context, name string, fields map[string]any, rels map[string][]string) (*types.Entity, error) {
	a.creating.Add(1)
	defer a.creating.Add(-1)
	e, err := a.o.Create(ctx, orchestrator.CreateRequest{
		EntityType:    a.entityType,
		EntityName:    name,
		Fields:        fields,
		Relationships: rels,
	})
	a.setErr(err)
	return e, err
}

// CreateRequest creates an entity from a full request. The request's
// entity type is replaced by this accessor's kind.
func (a *Accessor) CreateRequest(ctx context.Context, req orchestrator.CreateRequest) (*types.Entity, error) {
	a.creating.Add(1)
	defer a.creating.Add(-1)
	req.EntityType = a.entityType
	e, err := a.o.Create(ctx, req)
	a.setErr(err)
	return e, err
}

// Update applies a partial update.
func (a *Accessor) Update(ctx context.Context, id string, req orchestrator.UpdateRequest) (*types.Entity, error) {
	a.updating.Add(1)
	defer a.updating.Add(-1)
	e, err := a.o.Update(ctx, id, req)
	a.setErr(err)
	return e, err
}

// Archive hides an entity reversibly.
func (a *Accessor) Archive(ctx context.Context, id string) (*types.Entity, error) {
	a.updating.Add(1)
	defer a.updating.Add(-1)
	e, err := a.o.Archive(ctx, id)
	a.setErr(err)
	return e, err
}

// Restore makes an archived entity active again.
func (a *Accessor) Restore(ctx context.Context, id string) (*types.Entity, error) {
	a.updating.Add(1)
	defer a.updating.Add(-1)
	e, err := a.o.Restore(ctx, id)
	a.setErr(err)
	return e, err
}

// Delete removes an entity; see Orchestrator.Delete for the fallback.
func (a *Accessor) Delete(ctx context.Context, id string, opts types.DeleteOptions) orchestrator.DeleteOutcome {
	a.deleting.Add(1)
	defer a.deleting.Add(-1)
	out := a.o.Delete(ctx, id, opts)
	a.setErr(out.Err)
	return out
}

// Transition moves a workflow-bound field.
func (a *Accessor) Transition(ctx context.Context, id, field, state string) (*types.Entity, error) {
	a.updating.Add(1)
	defer a.updating.Add(-1)
	e, err := a.o.Transition(ctx, id, field, state)
	a.setErr(err)
	return e, err
}

// OverrideState sets a workflow-bound field without the transition table.
func (a *Accessor) OverrideState(ctx context.Context, id, field, state string) (*types.Entity, error) {
	a.updating.Add(1)
	defer a.updating.Add(-1)
	e, err := a.o.OverrideState(ctx, id, field, state)
	a.setErr(err)
	return e, err
}

// Err returns the error of the most recent operation, or nil if it
// succeeded.
func (a *Accessor) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// IsLoading reports whether a Load is in flight.
func (a *Accessor) IsLoading() bool { return a.loading.Load() > 0 }

// IsCreating reports whether a Create is in flight.
func (a *Accessor) IsCreating() bool { return a.creating.Load() > 0 }

// IsUpdating reports whether an update, archive, restore or transition is
// in flight.
func (a *Accessor) IsUpdating() bool { return a.updating.Load() > 0 }

// IsDeleting reports whether a Delete is in flight.
func (a *Accessor) IsDeleting() bool { return a.deleting.Load() > 0 }

func (a *Accessor) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// matches applies the accessor's filters to a cached entity. Without a
// status filter, tombstones are hidden.
func (a *Accessor) matches(e *types.Entity) bool {
	if len(a.query.Status) == 0 {
		if e.Status == types.StatusDeleted {
			return false
		}
	} else if !slices.Contains(a.query.Status, e.Status) {
		return false
	}
	if s := strings.ToLower(a.query.Search); s != "" &&
		!strings.Contains(strings.ToLower(e.EntityName), s) &&
		!strings.Contains(strings.ToLower(e.EntityCode), s) {
		return false
	}
	for relType, target := range a.query.RelFilters {
		if !slices.Contains(e.TargetIDs(relType), target) {
			return false
		}
	}
	return true
}
