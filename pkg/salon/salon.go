// Package salon is the reference domain: salon presets shipped as embedded
// YAML, and typed views over the generic entities they describe.
package salon

import (
	"context"
	"embed"
	"fmt"

	"github.com/mesh-intelligence/hera/pkg/access"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Entity types defined by the salon presets.
const (
	TypeBranch      = "BRANCH"
	TypeCategory    = "CATEGORY"
	TypeProduct     = "PRODUCT"
	TypeService     = "SERVICE"
	TypeStaff       = "STAFF"
	TypeCustomer    = "CUSTOMER"
	TypeAppointment = "APPOINTMENT"
)

// Relationship types.
const (
	RelHasCategory    = "HAS_CATEGORY"
	RelStockAt        = "STOCK_AT"
	RelAvailableAt    = "AVAILABLE_AT"
	RelPerformedBy    = "PERFORMED_BY"
	RelMemberOf       = "MEMBER_OF"
	RelPreferredStaff = "PREFERRED_STAFF"
	RelHomeBranch     = "HOME_BRANCH"
	RelForCustomer    = "FOR_CUSTOMER"
	RelWithStaff      = "WITH_STAFF"
	RelForService     = "FOR_SERVICE"
	RelAtBranch       = "AT_BRANCH"
)

// StatusField is the appointment field governed by the appointment workflow.
const StatusField = "status"

// Presets returns the salon presets.
func Presets() ([]preset.EntitySchema, error) {
	return preset.LoadFS(presetFS, "presets")
}

// Registry builds a registry holding the salon presets followed by extra.
// The built-in workflows are available to every preset.
func Registry(extra ...preset.EntitySchema) (*preset.Registry, error) {
	schemas, err := Presets()
	if err != nil {
		return nil, fmt.Errorf("load salon presets: %w", err)
	}
	b := preset.NewBuilder(lifecycle.Appointment, lifecycle.Transaction)
	if err := b.RegisterAll(schemas); err != nil {
		return nil, err
	}
	if err := b.RegisterAll(extra); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// Kind is an accessor that also maps entities to a typed view.
type Kind[V any] struct {
	*access.Accessor
	o    *orchestrator.Orchestrator
	view func(*types.Entity) V
}

func newKind[V any](o *orchestrator.Orchestrator, entityType string, view func(*types.Entity) V) *Kind[V] {
	return &Kind[V]{Accessor: access.New(o, entityType), o: o, view: view}
}

// List returns the cached views, newest first.
func (k *Kind[V]) List(ctx context.Context) ([]V, error) {
	list, err := k.Entities(ctx)
	if err != nil {
		return nil, err
	}
	return mapViews(list, k.view), nil
}

// Reload refreshes the cache from the backend and returns the views.
func (k *Kind[V]) Reload(ctx context.Context) ([]V, error) {
	list, err := k.Load(ctx)
	if err != nil {
		return nil, err
	}
	return mapViews(list, k.view), nil
}

// Get fetches one entity and maps it. An entity of another kind is
// reported as not found.
func (k *Kind[V]) Get(ctx context.Context, id string) (V, error) {
	var zero V
	e, err := k.o.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if e.EntityType != k.EntityType() {
		return zero, fmt.Errorf("%s %s: %w", k.EntityType(), id, types.ErrEntityNotFound)
	}
	return k.view(e), nil
}

// View maps e without fetching anything.
func (k *Kind[V]) View(e *types.Entity) V { return k.view(e) }

func mapViews[V any](list []*types.Entity, view func(*types.Entity) V) []V {
	out := make([]V, len(list))
	for i, e := range list {
		out[i] = view(e)
	}
	return out
}

// Salon groups the accessors of every salon kind over one orchestrator.
type Salon struct {
	o *orchestrator.Orchestrator

	Branches     *Kind[Branch]
	Categories   *Kind[Category]
	Products     *Kind[Product]
	Services     *Kind[Service]
	Staff        *Kind[Staff]
	Customers    *Kind[Customer]
	Appointments *Appointments
}

// New returns the salon facade. The orchestrator's registry must contain
// the salon presets.
func New(o *orchestrator.Orchestrator) *Salon {
	return &Salon{
		o:            o,
		Branches:     newKind(o, TypeBranch, BranchFrom),
		Categories:   newKind(o, TypeCategory, CategoryFrom),
		Products:     newKind(o, TypeProduct, ProductFrom),
		Services:     newKind(o, TypeService, ServiceFrom),
		Staff:        newKind(o, TypeStaff, StaffFrom),
		Customers:    newKind(o, TypeCustomer, CustomerFrom),
		Appointments: &Appointments{Kind: newKind(o, TypeAppointment, AppointmentFrom)},
	}
}

// Orchestrator returns the orchestrator behind the facade.
func (s *Salon) Orchestrator() *orchestrator.Orchestrator { return s.o }
