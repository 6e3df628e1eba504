package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// gatedBackend blocks EntityCreate until release is closed.
type gatedBackend struct {
	types.Backend
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBackend) EntityCreate(ctx context.Context, in types.NewEntity) (*types.Entity, error) {
	if g.entered != nil {
		close(g.entered)
		<-g.release
	}
	return g.Backend.EntityCreate(ctx, in)
}

func newAccessor(t *testing.T, opts ...Option) (*Accessor, *gatedBackend) {
	t.Helper()
	store := sqlstore.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })

	reg := preset.NewBuilder().MustRegister(
		preset.EntitySchema{EntityType: "BRANCH", SmartCode: "HERA.SALON.ORG.ENT.BRANCH.V1"},
		preset.EntitySchema{
			EntityType: "STAFF",
			SmartCode:  "HERA.SALON.STAFF.ENT.MEMBER.V1",
			Fields: []preset.DynamicFieldDefinition{
				{Name: "role", Type: fields.TypeText, SmartCode: "HERA.SALON.STAFF.DYN.ROLE.V1", Required: true, Default: "stylist"},
			},
			Relationships: []preset.RelationshipDefinition{
				{Type: "MEMBER_OF", SmartCode: "HERA.SALON.STAFF.REL.MEMBEROF.V1", Cardinality: preset.Many, TargetType: "BRANCH"},
			},
		},
	).Build()
	gb := &gatedBackend{Backend: store}
	o := orchestrator.New(gb, reg)
	return New(o, "STAFF", opts...), gb
}

func TestAccessor_CreateShowsUpWithoutReload(t *testing.T) {
	a, _ := newAccessor(t)
	ctx := context.Background()

	e, err := a.Create(ctx, "Maya", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "stylist", e.Field("role"))

	list, err := a.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
	assert.NoError(t, a.Err())
}

func TestAccessor_ErrTracksLastOperation(t *testing.T) {
	a, _ := newAccessor(t)
	ctx := context.Background()

	_, err := a.Create(ctx, "", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, a.Err(), types.ErrInvalidName)

	_, err = a.Create(ctx, "Jon", map[string]any{"role": "colourist"}, nil)
	require.NoError(t, err)
	assert.NoError(t, a.Err())
}

func TestAccessor_LifecycleAndFilters(t *testing.T) {
	a, _ := newAccessor(t)
	ctx := context.Background()
	maya, err := a.Create(ctx, "Maya", nil, nil)
	require.NoError(t, err)
	jon, err := a.Create(ctx, "Jon", nil, nil)
	require.NoError(t, err)

	_, err = a.Archive(ctx, jon.ID)
	require.NoError(t, err)
	out := a.Delete(ctx, maya.ID, types.DeleteOptions{HardDelete: true})
	assert.Equal(t, orchestrator.HardDeleted, out.Kind)

	list, err := a.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.StatusArchived, list[0].Status)

	_, err = a.Restore(ctx, jon.ID)
	require.NoError(t, err)
	name := "Jonathan"
	_, err = a.Update(ctx, jon.ID, orchestrator.UpdateRequest{EntityName: &name})
	require.NoError(t, err)

	active := New(a.o, "STAFF", WithQuery(types.EntityQuery{Status: []types.Status{types.StatusActive}, Search: "jona"}))
	loaded, err := active.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	view, err := active.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "Jonathan", view[0].EntityName)
	assert.Equal(t, "STAFF", active.EntityType())
}

func TestAccessor_RelationshipFilter(t *testing.T) {
	a, _ := newAccessor(t)
	ctx := context.Background()
	branches := New(a.o, "BRANCH")
	north, err := branches.Create(ctx, "North", nil, nil)
	require.NoError(t, err)
	_, err = a.Create(ctx, "Maya", nil, map[string][]string{"MEMBER_OF": {north.ID}})
	require.NoError(t, err)
	_, err = a.Create(ctx, "Jon", nil, nil)
	require.NoError(t, err)

	northStaff := New(a.o, "STAFF", WithQuery(types.EntityQuery{RelFilters: map[string]string{"MEMBER_OF": north.ID}}))
	list, err := northStaff.Entities(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Maya", list[0].EntityName)
}

func TestAccessor_BusyFlags(t *testing.T) {
	a, gb := newAccessor(t)
	gb.entered = make(chan struct{})
	gb.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := a.Create(context.Background(), "Maya", nil, nil)
		done <- err
	}()

	select {
	case <-gb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("create never reached the backend")
	}
	assert.True(t, a.IsCreating())
	assert.False(t, a.IsUpdating())
	assert.False(t, a.IsDeleting())
	assert.False(t, a.IsLoading())

	close(gb.release)
	require.NoError(t, <-done)
	assert.False(t, a.IsCreating())
}
