package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/internal/ctxutil"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func TestCreate_DefaultsAndCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.category(t, "Hair care")

	p := f.product(t, "Shampoo", map[string][]string{"HAS_CATEGORY": {cat.ID}})
	assert.Equal(t, types.StatusActive, p.Status)
	assert.Equal(t, "HERA.SALON.PRODUCT.ENT.ITEM.V1", p.SmartCode, "preset smart code is used when none is given")
	assert.Equal(t, 12.5, p.Field("price"))
	assert.Equal(t, true, p.Field("in_stock"), "default applied")
	assert.Nil(t, p.Field("notes"))
	assert.Equal(t, []string{cat.ID}, p.TargetIDs("HAS_CATEGORY"))
	require.NotNil(t, p.Relationships["HAS_CATEGORY"][0].ToEntity)
	assert.Equal(t, "Hair care", p.Relationships["HAS_CATEGORY"][0].ToEntity.EntityName)

	cached, ok, err := f.o.Cache().Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok, "created entity is merged into the cache")
	assert.Equal(t, p.EntityName, cached.EntityName)
	assert.Equal(t, []Op{OpCreate, OpCreate}, f.events.ops())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr error
	}{
		{"unknown entity type", CreateRequest{EntityType: "SPACESHIP", EntityName: "x"}, types.ErrUnknownEntityType},
		{"missing required field", CreateRequest{EntityType: "PRODUCT", EntityName: "x"}, types.ErrMissingRequiredField},
		{"explicit null required field", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": nil}}, types.ErrMissingRequiredField},
		{"type mismatch", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": "cheap"}}, types.ErrTypeMismatch},
		{"boolean is strict", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": 1, "in_stock": "true"}}, types.ErrTypeMismatch},
		{"unknown field", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": 1, "colour": "red"}}, types.ErrUnknownField},
		{"bad smart code", CreateRequest{EntityType: "PRODUCT", EntityName: "x", SmartCode: "HERA.SALON.PRODUCT.ENT.ITEM.v1",
			Fields: map[string]any{"price": 1}}, types.ErrInvalidSmartCode},
		{"blank name", CreateRequest{EntityType: "PRODUCT", EntityName: "  ",
			Fields: map[string]any{"price": 1}}, types.ErrInvalidName},
		{"unknown relationship", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": 1}, Relationships: map[string][]string{"SUPPLIED_BY": {"s1"}}}, types.ErrUnknownRelationshipType},
		{"cardinality one with two targets", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": 1}, Relationships: map[string][]string{"HAS_CATEGORY": {"a", "b"}}}, types.ErrCardinalityViolation},
		{"missing typed target", CreateRequest{EntityType: "PRODUCT", EntityName: "x",
			Fields: map[string]any{"price": 1}, Relationships: map[string][]string{"HAS_CATEGORY": {"ghost"}}}, types.ErrInvalidID},
		{"unknown workflow state", CreateRequest{EntityType: "APPOINTMENT", EntityName: "x",
			Fields: map[string]any{"status": "teleported"}}, types.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.o.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.events.ops(), "failed writes publish nothing")
		})
	}
}

func TestCreate_ZeroValuesAreNotMissing(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, CreateRequest{EntityType: "PRODUCT", EntityName: "Sample",
		Fields: map[string]any{"price": 0, "in_stock": false, "notes": ""}})
	assert.Equal(t, 0.0, p.Field("price"))
	assert.Equal(t, false, p.Field("in_stock"))
	assert.Equal(t, "", p.Field("notes"))
}

func TestCreate_TargetOfWrongType(t *testing.T) {
	f := newFixture(t)
	branch := f.create(t, CreateRequest{EntityType: "BRANCH", EntityName: "Downtown"})
	_, err := f.o.Create(context.Background(), CreateRequest{EntityType: "PRODUCT", EntityName: "x",
		Fields: map[string]any{"price": 1}, Relationships: map[string][]string{"HAS_CATEGORY": {branch.ID}}})
	assert.ErrorIs(t, err, types.ErrTypeMismatch)
}

func TestCreate_AtomicOnBackendFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.o.Create(ctx, CreateRequest{EntityType: "PRODUCT", EntityName: "Orphan",
		Fields: map[string]any{"price": 3}, Relationships: map[string][]string{"STOCKED_AT": {"no-such-branch"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)

	list, err := f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT"})
	require.NoError(t, err)
	assert.Empty(t, list, "no header row survives a failed create")
	cached, err := f.o.Cache().List(ctx, "PRODUCT")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hair := f.category(t, "Hair")
	skin := f.category(t, "Skin")
	p := f.product(t, "Shampoo", map[string][]string{"HAS_CATEGORY": {hair.ID}})

	name := "Shampoo XL"
	got, err := f.o.Update(ctx, p.ID, UpdateRequest{
		EntityName:    &name,
		Fields:        map[string]any{"price": "19.99", "notes": "new bottle"},
		Relationships: map[string][]string{"HAS_CATEGORY": {skin.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Shampoo XL", got.EntityName)
	assert.Equal(t, 19.99, got.Field("price"))
	assert.Equal(t, "new bottle", got.Field("notes"))
	assert.Equal(t, true, got.Field("in_stock"), "untouched fields are kept")
	assert.Equal(t, []string{skin.ID}, got.TargetIDs("HAS_CATEGORY"), "the old edge is replaced")

	cached, _, err := f.o.Cache().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shampoo XL", cached.EntityName, "cache is spliced by id")

	got, err = f.o.Update(ctx, p.ID, UpdateRequest{Relationships: map[string][]string{"HAS_CATEGORY": {}}})
	require.NoError(t, err)
	assert.Empty(t, got.TargetIDs("HAS_CATEGORY"), "empty list removes every edge of the type")

	got, err = f.o.Update(ctx, p.ID, UpdateRequest{Fields: map[string]any{"notes": nil}})
	require.NoError(t, err)
	assert.Nil(t, got.Field("notes"))

	_, err = f.o.Update(ctx, p.ID, UpdateRequest{Fields: map[string]any{"price": nil}})
	assert.ErrorIs(t, err, types.ErrMissingRequiredField)
	_, err = f.o.Update(ctx, p.ID, UpdateRequest{Relationships: map[string][]string{"HAS_CATEGORY": {hair.ID, skin.ID}}})
	assert.ErrorIs(t, err, types.ErrCardinalityViolation)
	_, err = f.o.Update(ctx, p.ID, UpdateRequest{Relationships: map[string][]string{"STOCKED_AT": {p.ID}}})
	assert.ErrorIs(t, err, types.ErrInvalidID)
	_, err = f.o.Update(ctx, "missing", UpdateRequest{EntityName: &name})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUpdate_UnchangedRelationshipsDoNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hair := f.category(t, "Hair")
	skin := f.category(t, "Skin")
	p := f.product(t, "Shampoo", map[string][]string{"HAS_CATEGORY": {hair.ID}})

	got, err := f.o.Update(ctx, p.ID, UpdateRequest{Relationships: map[string][]string{"HAS_CATEGORY": {hair.ID, hair.ID}}})
	require.NoError(t, err)
	assert.Equal(t, []string{hair.ID}, got.TargetIDs("HAS_CATEGORY"))
	assert.Equal(t, []Op{OpCreate, OpCreate, OpCreate}, f.events.ops(), "same targets write nothing")

	got, err = f.o.Update(ctx, p.ID, UpdateRequest{Relationships: map[string][]string{"HAS_CATEGORY": {skin.ID}}})
	require.NoError(t, err)
	require.Len(t, got.Relationships["HAS_CATEGORY"], 1, "cardinality one keeps exactly one edge")
	assert.Equal(t, skin.ID, got.Relationships["HAS_CATEGORY"][0].ToEntityID)
	assert.Equal(t, []Op{OpCreate, OpCreate, OpCreate, OpUpdate}, f.events.ops())
}

func TestArchiveRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Conditioner", nil)

	for i := 0; i < 2; i++ {
		got, err := f.o.Archive(ctx, p.ID)
		require.NoError(t, err, "archive call %d", i+1)
		assert.Equal(t, types.StatusArchived, got.Status)
	}
	assert.Equal(t, []Op{OpCreate, OpArchive}, f.events.ops(), "the second archive writes nothing")

	got, err := f.o.Restore(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)

	list, err := f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT", Status: []types.Status{types.StatusActive}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdate_DeletedEntityIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.category(t, "Nails")
	f.product(t, "Polish", map[string][]string{"HAS_CATEGORY": {cat.ID}})

	out := f.o.Delete(ctx, cat.ID, types.DeleteOptions{HardDelete: true})
	require.Equal(t, ArchivedFallback, out.Kind)

	_, err := f.o.Restore(ctx, cat.ID)
	assert.ErrorIs(t, err, types.ErrEntityAlreadyDeleted)
	name := "Nail art"
	_, err = f.o.Update(ctx, cat.ID, UpdateRequest{EntityName: &name})
	assert.ErrorIs(t, err, types.ErrEntityAlreadyDeleted)
}

func TestWorkflowTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.create(t, CreateRequest{EntityType: "APPOINTMENT", EntityName: "Cut and colour"})
	assert.Equal(t, lifecycle.AppointmentDraft, appt.Field("status"), "workflow fields start in the initial state")

	got, err := f.o.Transition(ctx, appt.ID, "status", lifecycle.AppointmentBooked)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.AppointmentBooked, got.Field("status"))

	_, err = f.o.Transition(ctx, appt.ID, "status", lifecycle.AppointmentDraft)
	var ite *lifecycle.IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, lifecycle.ReasonBackward, ite.Reason)
	assert.ErrorIs(t, err, types.ErrIllegalTransition)

	_, err = f.o.Update(ctx, appt.ID, UpdateRequest{Fields: map[string]any{"status": lifecycle.AppointmentDraft}})
	assert.ErrorIs(t, err, types.ErrIllegalTransition, "plain updates are validated too")

	_, err = f.o.Transition(ctx, appt.ID, "status", lifecycle.AppointmentNoShow)
	require.NoError(t, err)
	_, err = f.o.Transition(ctx, appt.ID, "status", lifecycle.AppointmentCompleted)
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, lifecycle.ReasonTerminal, ite.Reason)
	assert.True(t, ite.Permanent())

	got, err = f.o.OverrideState(ctx, appt.ID, "status", lifecycle.AppointmentBooked)
	require.NoError(t, err, "override bypasses the table")
	assert.Equal(t, lifecycle.AppointmentBooked, got.Field("status"))

	_, err = f.o.OverrideState(ctx, appt.ID, "status", "teleported")
	assert.ErrorIs(t, err, types.ErrIllegalTransition)
	_, err = f.o.Transition(ctx, appt.ID, "notes", "x")
	assert.ErrorIs(t, err, types.ErrUnknownField)
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Serum", nil)

	staff := ctxutil.WithRole(context.Background(), "staff")
	out := f.o.Delete(staff, p.ID, types.DeleteOptions{HardDelete: true})
	assert.Equal(t, Failed, out.Kind)
	assert.ErrorIs(t, out.Err, types.ErrPermissionDenied)
	assert.ErrorIs(t, out.Err, types.ErrForbidden)

	_, err := f.o.Archive(staff, p.ID)
	assert.NoError(t, err, "edit is open to every role")

	owner := ctxutil.WithRole(context.Background(), "owner")
	out = f.o.Delete(owner, p.ID, types.DeleteOptions{HardDelete: true})
	assert.Equal(t, HardDeleted, out.Kind)
}

func TestQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hair := f.category(t, "Hair")
	f.product(t, "Shampoo", map[string][]string{"HAS_CATEGORY": {hair.ID}})
	f.product(t, "Lotion", nil)
	require.NoError(t, f.o.Invalidate(ctx, "PRODUCT"))

	list, err := f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT", RelFilters: map[string]string{"HAS_CATEGORY": hair.ID}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Shampoo", list[0].EntityName)

	cached, err := f.o.Cache().List(ctx, "PRODUCT")
	require.NoError(t, err)
	assert.Len(t, cached, 1, "only confirmed query results enter the cache")

	list, err = f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT", Search: "lot"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Lotion", list[0].EntityName)

	_, err = f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT", RelFilters: map[string]string{"OWNED_BY": "x"}})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
	_, err = f.o.Query(ctx, types.EntityQuery{EntityType: "PRODUCT", Status: []types.Status{"gone"}})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
	_, err = f.o.Query(ctx, types.EntityQuery{EntityType: "GHOST"})
	assert.ErrorIs(t, err, types.ErrSchema)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Mask", nil)
	require.NoError(t, f.o.Invalidate(ctx, "PRODUCT"))

	got, err := f.o.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	_, ok, err := f.o.Cache().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.o.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errNetwork
	p := f.product(t, "Gel", nil)
	assert.NotEmpty(t, p.ID)
}

func TestMergeKeepsNewerCachedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Shampoo", nil)
	name := "Shampoo XL"
	newer, err := f.o.Update(ctx, p.ID, UpdateRequest{EntityName: &name})
	require.NoError(t, err)

	// A request issued before the update completes after it.
	late := p.Clone()
	late.UpdatedAt = newer.UpdatedAt.Add(-time.Second)
	f.o.merge(ctx, late)
	cached, ok, err := f.o.Cache().Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Shampoo XL", cached.EntityName)

	later := newer.Clone()
	later.EntityName = "Shampoo XXL"
	later.UpdatedAt = newer.UpdatedAt.Add(time.Second)
	f.o.merge(ctx, later)
	cached, _, err = f.o.Cache().Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shampoo XXL", cached.EntityName)
}
