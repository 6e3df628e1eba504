package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func newProduct(name string, rels map[string][]types.RelationshipRef) types.NewEntity {
	return types.NewEntity{
		EntityType: "PRODUCT",
		EntityName: name,
		EntityCode: "SKU-" + name,
		SmartCode:  "HERA.SALON.PRODUCT.ENT.ITEM.V1",
		DynamicFields: []types.DynamicFieldValue{
			{Name: "price", Type: fields.TypeNumber, SmartCode: "HERA.SALON.PRODUCT.DYN.PRICE.V1", Value: fields.NumberField{V: 25.5}},
			{Name: "in_stock", Type: fields.TypeBoolean, SmartCode: "HERA.SALON.PRODUCT.DYN.INSTOCK.V1", Value: fields.BooleanField{V: false}},
			{Name: "launched", Type: fields.TypeDate, SmartCode: "HERA.SALON.PRODUCT.DYN.LAUNCHED.V1", Value: fields.DateField{V: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}},
			{Name: "meta", Type: fields.TypeJSON, SmartCode: "HERA.SALON.PRODUCT.DYN.META.V1", Value: fields.JSONField{V: json.RawMessage(`{"tags":["a"]}`)}},
			{Name: "notes", Type: fields.TypeText, SmartCode: "HERA.SALON.PRODUCT.DYN.NOTES.V1"},
		},
		Relationships: rels,
	}
}

func newCategory(t *testing.T, b *Backend, name string) *types.Entity {
	t.Helper()
	e, err := b.EntityCreate(context.Background(), types.NewEntity{
		EntityType: "CATEGORY",
		EntityName: name,
		SmartCode:  "HERA.SALON.CATEGORY.ENT.GROUP.V1",
	})
	require.NoError(t, err)
	return e
}

func TestBackend_AttachDetach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(config))
	_, err := os.Stat(filepath.Join(dir, DatabaseFile))
	assert.NoError(t, err)
	assert.ErrorIs(t, b.Attach(config), types.ErrAlreadyAttached)
	assert.NoError(t, b.Ping(context.Background()))

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")
	_, err = b.EntityGet(context.Background(), "x")
	assert.ErrorIs(t, err, types.ErrDetached)

	// Reattach keeps data.
	require.NoError(t, b.Attach(config))
	defer b.Detach()
	_, err = b.EntityQuery(context.Background(), types.EntityQuery{EntityType: "PRODUCT"})
	assert.NoError(t, err)

	assert.ErrorIs(t, NewBackend().Attach(types.Config{Backend: "oracle"}), types.ErrBackendUnknown)
}

func TestEntity_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	cat := newCategory(t, b, "Hair Care")

	e, err := b.EntityCreate(ctx, newProduct("Shampoo", map[string][]types.RelationshipRef{
		"HAS_CATEGORY": {{ToEntityID: cat.ID, SmartCode: "HERA.SALON.PRODUCT.REL.CATEGORY.V1"}},
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, types.StatusActive, e.Status)
	assert.Equal(t, "SKU-Shampoo", e.EntityCode)

	got, err := b.EntityGet(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.5, got.Field("price"))
	assert.Equal(t, false, got.Field("in_stock"))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got.Field("launched"))
	assert.JSONEq(t, `{"tags":["a"]}`, string(got.DynamicFields["meta"].Value.(fields.JSONField).V))
	require.Contains(t, got.DynamicFields, "notes")
	assert.Nil(t, got.DynamicFields["notes"].Value, "cleared field stays present with no value")

	require.Len(t, got.Relationships["HAS_CATEGORY"], 1)
	rel := got.Relationships["HAS_CATEGORY"][0]
	assert.Equal(t, cat.ID, rel.ToEntityID)
	require.NotNil(t, rel.ToEntity)
	assert.Equal(t, "Hair Care", rel.ToEntity.EntityName)
	assert.Equal(t, "CATEGORY", rel.ToEntity.EntityType)
}

func TestEntity_CreateIsAtomic(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, err := b.EntityCreate(ctx, newProduct("Ghost", map[string][]types.RelationshipRef{
		"HAS_CATEGORY": {{ToEntityID: "does-not-exist"}},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidID)

	list, err := b.EntityQuery(ctx, types.EntityQuery{EntityType: "PRODUCT"})
	require.NoError(t, err)
	assert.Empty(t, list, "a failed relationship insert must not leave a header behind")
}

func TestEntity_CreateValidation(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	tests := []struct {
		name    string
		in      types.NewEntity
		wantErr error
	}{
		{"empty name", types.NewEntity{EntityType: "PRODUCT", SmartCode: "HERA.SALON.PRODUCT.ENT.ITEM.V1"}, types.ErrInvalidName},
		{"bad smart code", types.NewEntity{EntityType: "PRODUCT", EntityName: "x", SmartCode: "HERA.SALON.PRODUCT.ENT.ITEM.v1"}, types.ErrInvalidSmartCode},
		{"bad status", types.NewEntity{EntityType: "PRODUCT", EntityName: "x", SmartCode: "HERA.SALON.PRODUCT.ENT.ITEM.V1", Status: "gone"}, types.ErrInvalidStatus},
		{"value type disagrees", types.NewEntity{EntityType: "PRODUCT", EntityName: "x", SmartCode: "HERA.SALON.PRODUCT.ENT.ITEM.V1",
			DynamicFields: []types.DynamicFieldValue{{Name: "price", Type: fields.TypeNumber, Value: fields.TextField{V: "12"}}}}, types.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.EntityCreate(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestEntity_Update(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	c1 := newCategory(t, b, "Hair")
	c2 := newCategory(t, b, "Skin")
	e, err := b.EntityCreate(ctx, newProduct("Shampoo", map[string][]types.RelationshipRef{
		"HAS_CATEGORY": {{ToEntityID: c1.ID}},
	}))
	require.NoError(t, err)

	name := "Shampoo Deluxe"
	updated, err := b.EntityUpdate(ctx, e.ID, types.EntityPatch{
		EntityName: &name,
		Dynamic: []types.DynamicFieldValue{
			{Name: "price", Type: fields.TypeNumber, Value: fields.NumberField{V: 30}},
			{Name: "meta", Type: fields.TypeJSON},
		},
		Relationships: map[string][]types.RelationshipRef{"HAS_CATEGORY": {{ToEntityID: c2.ID}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Shampoo Deluxe", updated.EntityName)
	assert.Equal(t, 30.0, updated.Field("price"))
	assert.Nil(t, updated.Field("meta"))
	assert.Equal(t, false, updated.Field("in_stock"), "untouched fields survive")
	assert.Equal(t, []string{c2.ID}, updated.TargetIDs("HAS_CATEGORY"))

	cleared, err := b.EntityUpdate(ctx, e.ID, types.EntityPatch{
		Relationships: map[string][]types.RelationshipRef{"HAS_CATEGORY": {}},
	})
	require.NoError(t, err)
	assert.Empty(t, cleared.TargetIDs("HAS_CATEGORY"))

	_, err = b.EntityUpdate(ctx, "missing", types.EntityPatch{EntityName: &name})
	assert.ErrorIs(t, err, types.ErrEntityNotFound)

	deleted := types.StatusDeleted
	_, err = b.EntityUpdate(ctx, e.ID, types.EntityPatch{Status: &deleted})
	require.NoError(t, err)
	_, err = b.EntityUpdate(ctx, e.ID, types.EntityPatch{EntityName: &name})
	assert.ErrorIs(t, err, types.ErrEntityAlreadyDeleted)
}

func TestEntity_HardDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	cat := newCategory(t, b, "Hair")
	p, err := b.EntityCreate(ctx, newProduct("Shampoo", map[string][]types.RelationshipRef{
		"HAS_CATEGORY": {{ToEntityID: cat.ID}},
	}))
	require.NoError(t, err)

	// The category is targeted by the product's edge.
	err = b.EntityDelete(ctx, cat.ID, types.DeleteOptions{HardDelete: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrReferenced)
	assert.ErrorIs(t, err, types.ErrConflict)
	_, err = b.EntityGet(ctx, cat.ID)
	assert.NoError(t, err, "refused delete must leave the entity in place")

	// The product's own fields and edges never block its removal.
	require.NoError(t, b.EntityDelete(ctx, p.ID, types.DeleteOptions{HardDelete: true}))
	_, err = b.EntityGet(ctx, p.ID)
	assert.ErrorIs(t, err, types.ErrEntityNotFound)
	var n int
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM dynamic_data WHERE entity_id = ?", p.ID).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM relationships WHERE from_entity_id = ?", p.ID).Scan(&n))
	assert.Zero(t, n)

	// Now nothing references the category.
	require.NoError(t, b.EntityDelete(ctx, cat.ID, types.DeleteOptions{HardDelete: true}))
	assert.ErrorIs(t, b.EntityDelete(ctx, cat.ID, types.DeleteOptions{HardDelete: true}), types.ErrEntityNotFound)
}

func TestEntity_HardDeleteReferencedByTransaction(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	p, err := b.EntityCreate(ctx, newProduct("Conditioner", nil))
	require.NoError(t, err)
	_, err = b.TransactionCreate(ctx, types.NewTransaction{
		TransactionType: "SALE",
		SmartCode:       "HERA.SALON.POS.TXN.SALE.V1",
		Status:          types.TxnStatusCompleted,
		Lines: []types.Line{{LineType: "PRODUCT", EntityID: p.ID,
			Quantity: decimal.NewFromInt(1), UnitAmount: decimal.NewFromInt(10), LineAmount: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	err = b.EntityDelete(ctx, p.ID, types.DeleteOptions{HardDelete: true})
	assert.ErrorIs(t, err, types.ErrReferenced)
}

func TestEntity_SoftDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	p, err := b.EntityCreate(ctx, newProduct("Gel", nil))
	require.NoError(t, err)

	require.NoError(t, b.EntityDelete(ctx, p.ID, types.DeleteOptions{}))
	require.NoError(t, b.EntityDelete(ctx, p.ID, types.DeleteOptions{}))
	got, err := b.EntityGet(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusArchived, got.Status)
}

func TestEntity_Query(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	b := NewBackend(WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer b.Detach()

	hair := newCategory(t, b, "Hair")
	skin := newCategory(t, b, "Skin")
	mk := func(name, cat string) *types.Entity {
		e, err := b.EntityCreate(ctx, newProduct(name, map[string][]types.RelationshipRef{"HAS_CATEGORY": {{ToEntityID: cat}}}))
		require.NoError(t, err)
		return e
	}
	shampoo := mk("Shampoo", hair.ID)
	mask := mk("Hair Mask", hair.ID)
	cream := mk("Cream", skin.ID)
	archived := types.StatusArchived
	_, err := b.EntityUpdate(ctx, mask.ID, types.EntityPatch{Status: &archived})
	require.NoError(t, err)
	deleted := types.StatusDeleted
	_, err = b.EntityUpdate(ctx, cream.ID, types.EntityPatch{Status: &deleted})
	require.NoError(t, err)

	names := func(es []*types.Entity) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.EntityName
		}
		return out
	}

	tests := []struct {
		name string
		q    types.EntityQuery
		want []string
	}{
		{"default hides deleted, newest first", types.EntityQuery{EntityType: "PRODUCT"}, []string{"Hair Mask", "Shampoo"}},
		{"status filter", types.EntityQuery{EntityType: "PRODUCT", Status: []types.Status{types.StatusActive}}, []string{"Shampoo"}},
		{"tombstones on request", types.EntityQuery{EntityType: "PRODUCT", Status: []types.Status{types.StatusDeleted}}, []string{"Cream"}},
		{"search name", types.EntityQuery{EntityType: "PRODUCT", Search: "MASK"}, []string{"Hair Mask"}},
		{"search code", types.EntityQuery{EntityType: "PRODUCT", Search: "sku-sham"}, []string{"Shampoo"}},
		{"relationship filter", types.EntityQuery{EntityType: "PRODUCT", RelFilters: map[string]string{"HAS_CATEGORY": skin.ID},
			Status: []types.Status{types.StatusActive, types.StatusArchived, types.StatusDeleted}}, []string{"Cream"}},
		{"limit", types.EntityQuery{EntityType: "PRODUCT", Limit: 1}, []string{"Hair Mask"}},
		{"offset only", types.EntityQuery{EntityType: "PRODUCT", Offset: 1}, []string{"Shampoo"}},
		{"other type", types.EntityQuery{EntityType: "CATEGORY"}, []string{"Skin", "Hair"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.EntityQuery(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}

	got, err := b.EntityQuery(ctx, types.EntityQuery{EntityType: "PRODUCT", Search: "shampoo"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, shampoo.ID, got[0].ID)
	assert.Equal(t, 25.5, got[0].Field("price"), "query results are hydrated")

	_, err = b.EntityQuery(ctx, types.EntityQuery{})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
	_, err = b.EntityQuery(ctx, types.EntityQuery{EntityType: "PRODUCT", Limit: -1})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, sortedKeys(map[string]int{"b": 1, "a": 2}))
	assert.Empty(t, sortedKeys(map[string]int(nil)))
	assert.True(t, errors.Is(&types.FieldError{Code: types.ErrInvalidID}, types.ErrValidation))
}
