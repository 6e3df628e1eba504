package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/orchestrator"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/salon"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func productSchema() *preset.EntitySchema {
	return &preset.EntitySchema{
		EntityType: "PRODUCT",
		Fields: []preset.DynamicFieldDefinition{
			{Name: "price", Type: fields.TypeNumber, Label: "Price"},
			{Name: "organic", Type: fields.TypeBoolean},
			{Name: "specs", Type: fields.TypeJSON},
		},
		Relationships: []preset.RelationshipDefinition{{Type: "STOCK_AT"}},
	}
}

func TestColumnsAndRow(t *testing.T) {
	s := productSchema()
	assert.Equal(t, []string{"ID", "Name", "Code", "Status", "Smart Code", "Created", "Updated",
		"Price", "organic", "specs", "STOCK_AT"}, Columns(s))

	e := &types.Entity{
		ID:         "p1",
		EntityName: "Argan oil",
		Status:     types.StatusActive,
		DynamicFields: map[string]types.DynamicFieldValue{
			"price": {Name: "price", Type: fields.TypeNumber, Value: fields.NumberField{V: 24.5}},
			"specs": {Name: "specs", Type: fields.TypeJSON, Value: fields.JSONField{V: json.RawMessage(`{"ml":100}`)}},
		},
		Relationships: map[string][]types.RelationshipInstance{
			"STOCK_AT": {{ToEntityID: "b1"}, {ToEntityID: "b2"}},
		},
	}
	row := Row(s, e)
	require.Len(t, row, 11)
	assert.Equal(t, 24.5, row[7])
	assert.Equal(t, "", row[8])
	assert.Equal(t, `{"ml":100}`, row[9])
	assert.Equal(t, "b1,b2", row[10])
}

func TestWorkbook(t *testing.T) {
	s := productSchema()
	e := &types.Entity{ID: "p1", EntityName: "Argan oil", Status: types.StatusArchived,
		DynamicFields: map[string]types.DynamicFieldValue{
			"organic": {Name: "organic", Type: fields.TypeBoolean, Value: fields.BooleanField{V: true}},
		}}
	f, err := Workbook([]Sheet{
		{Schema: s, Entities: []*types.Entity{e}},
		{Schema: &preset.EntitySchema{EntityType: "A_VERY_LONG_ENTITY_TYPE_NAME_FOR_SHEETS"}},
	})
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"PRODUCT", "A_VERY_LONG_ENTITY_TYPE_NAME_FO"}, f.GetSheetList())
	rows, err := f.GetRows("PRODUCT")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Price", rows[0][7])
	assert.Equal(t, "archived", rows[1][3])
	assert.Equal(t, "TRUE", rows[1][8])
}

func TestExport(t *testing.T) {
	store := sqlstore.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { store.Detach() })
	reg, err := salon.Registry()
	require.NoError(t, err)
	o := orchestrator.New(store, reg)
	s := salon.New(o)
	ctx := context.Background()

	b1, err := s.Branches.Create(ctx, "Downtown", map[string]any{"address": "1 Main St"}, nil)
	require.NoError(t, err)
	_, err = s.Products.Create(ctx, "Argan oil", map[string]any{"price": 24.5}, map[string][]string{salon.RelStockAt: {b1.ID}})
	require.NoError(t, err)
	gone, err := s.Products.Create(ctx, "Old stock", map[string]any{"price": 1}, nil)
	require.NoError(t, err)
	_, err = s.Products.Archive(ctx, gone.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	stats, err := Export(ctx, o, []string{salon.TypeProduct, salon.TypeBranch}, &buf)
	require.NoError(t, err)
	assert.Equal(t, Stats{"PRODUCT": 2, "BRANCH": 1}, stats)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"PRODUCT", "BRANCH"}, f.GetSheetList())

	rows, err := f.GetRows("PRODUCT")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	cols := Columns(mustResolve(t, reg, salon.TypeProduct))
	assert.Equal(t, cols, rows[0])
	names := []string{rows[1][1], rows[2][1]}
	assert.ElementsMatch(t, []string{"Argan oil", "Old stock"}, names)

	_, err = Export(ctx, o, []string{"NOPE"}, &buf)
	assert.ErrorIs(t, err, types.ErrUnknownEntityType)
}

func mustResolve(t *testing.T, reg *preset.Registry, entityType string) *preset.EntitySchema {
	t.Helper()
	s, err := reg.Resolve(entityType)
	require.NoError(t, err)
	return s
}
