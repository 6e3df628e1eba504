package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func testRegistry() *preset.Registry {
	return preset.NewBuilder(lifecycle.Appointment).MustRegister(
		preset.EntitySchema{
			EntityType: "CATEGORY",
			SmartCode:  "HERA.SALON.CATEGORY.ENT.GROUP.V1",
		},
		preset.EntitySchema{
			EntityType: "BRANCH",
			SmartCode:  "HERA.SALON.BRANCH.ENT.SITE.V1",
		},
		preset.EntitySchema{
			EntityType:  "PRODUCT",
			SmartCode:   "HERA.SALON.PRODUCT.ENT.ITEM.V1",
			Permissions: preset.Permissions{Delete: []string{"owner"}},
			Fields: []preset.DynamicFieldDefinition{
				{Name: "price", Type: fields.TypeNumber, SmartCode: "HERA.SALON.PRODUCT.DYN.PRICE.V1", Required: true},
				{Name: "in_stock", Type: fields.TypeBoolean, SmartCode: "HERA.SALON.PRODUCT.DYN.INSTOCK.V1", Default: true},
				{Name: "notes", Type: fields.TypeText, SmartCode: "HERA.SALON.PRODUCT.DYN.NOTES.V1"},
			},
			Relationships: []preset.RelationshipDefinition{
				{Type: "HAS_CATEGORY", SmartCode: "HERA.SALON.PRODUCT.REL.CATEGORY.V1", Cardinality: preset.One, TargetType: "CATEGORY"},
				{Type: "STOCKED_AT", SmartCode: "HERA.SALON.PRODUCT.REL.STOCKEDAT.V1", Cardinality: preset.Many},
			},
		},
		preset.EntitySchema{
			EntityType: "APPOINTMENT",
			SmartCode:  "HERA.SALON.APPOINTMENT.ENT.BOOKING.V1",
			Fields: []preset.DynamicFieldDefinition{
				{Name: "status", Type: fields.TypeText, SmartCode: "HERA.SALON.APPOINTMENT.DYN.STATUS.V1", Workflow: "appointment"},
				{Name: "notes", Type: fields.TypeText, SmartCode: "HERA.SALON.APPOINTMENT.DYN.NOTES.V1"},
			},
		},
	).Build()
}

// faultyBackend injects errors into selected backend calls.
type faultyBackend struct {
	types.Backend
	deleteErr error
	updateErr error
	deletes   []types.DeleteOptions
}

func (f *faultyBackend) EntityDelete(ctx context.Context, id string, opts types.DeleteOptions) error {
	f.deletes = append(f.deletes, opts)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Backend.EntityDelete(ctx, id, opts)
}

func (f *faultyBackend) EntityUpdate(ctx context.Context, id string, patch types.EntityPatch) (*types.Entity, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return f.Backend.EntityUpdate(ctx, id, patch)
}

// recordingPublisher keeps published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Op, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Op
	}
	return out
}

type fixture struct {
	o       *Orchestrator
	backend *faultyBackend
	events  *recordingPublisher
	metrics *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := sqlstore.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })

	f := &fixture{
		backend: &faultyBackend{Backend: store},
		events:  &recordingPublisher{},
		metrics: NewMetrics(prometheus.NewRegistry()),
	}
	f.o = New(f.backend, testRegistry(), WithPublisher(f.events), WithMetrics(f.metrics))
	return f
}

func (f *fixture) create(t *testing.T, req CreateRequest) *types.Entity {
	t.Helper()
	e, err := f.o.Create(context.Background(), req)
	require.NoError(t, err)
	return e
}

func (f *fixture) category(t *testing.T, name string) *types.Entity {
	return f.create(t, CreateRequest{EntityType: "CATEGORY", EntityName: name})
}

func (f *fixture) product(t *testing.T, name string, rels map[string][]string) *types.Entity {
	return f.create(t, CreateRequest{
		EntityType:    "PRODUCT",
		EntityName:    name,
		Fields:        map[string]any{"price": 12.5},
		Relationships: rels,
	})
}

var errNetwork = errors.New("read tcp 10.0.0.1:5432: connection reset by peer")
