package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/hera/pkg/fields"
)

func TestDynamicFieldValueJSON(t *testing.T) {
	tests := []struct {
		name  string
		value DynamicFieldValue
	}{
		{"text", DynamicFieldValue{Name: "sku", Type: fields.TypeText, SmartCode: "HERA.SALON.PRODUCT.DYN.SKU.V1", Value: fields.TextField{V: "SKU-1"}}},
		{"number", DynamicFieldValue{Name: "price", Type: fields.TypeNumber, Value: fields.NumberField{V: 19.5}}},
		{"boolean", DynamicFieldValue{Name: "active", Type: fields.TypeBoolean, Value: fields.BooleanField{V: true}}},
		{"date", DynamicFieldValue{Name: "since", Type: fields.TypeDate, Value: fields.DateField{V: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}}},
		{"json", DynamicFieldValue{Name: "meta", Type: fields.TypeJSON, Value: fields.JSONField{V: json.RawMessage(`{"a":[1,2]}`)}}},
		{"cleared", DynamicFieldValue{Name: "notes", Type: fields.TypeText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.value)
			require.NoError(t, err)
			var got DynamicFieldValue
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, tt.value.Name, got.Name)
			assert.Equal(t, tt.value.Type, got.Type)
			assert.Equal(t, tt.value.SmartCode, got.SmartCode)
			assert.True(t, fields.Equal(tt.value.Value, got.Value), "got %#v", got.Value)
		})
	}
}

func TestDynamicFieldValueRejectsMismatchedPayload(t *testing.T) {
	var got DynamicFieldValue
	err := json.Unmarshal([]byte(`{"name":"active","type":"boolean","value":"true"}`), &got)
	assert.ErrorIs(t, err, fields.ErrTypeMismatch)
}

func TestEntityHelpers(t *testing.T) {
	e := &Entity{
		ID: "e1",
		DynamicFields: map[string]DynamicFieldValue{
			"price": {Name: "price", Type: fields.TypeNumber, Value: fields.NumberField{V: 10}},
			"notes": {Name: "notes", Type: fields.TypeText},
		},
		Relationships: map[string][]RelationshipInstance{
			"HAS_CATEGORY": {{FromEntityID: "e1", RelationshipType: "HAS_CATEGORY", ToEntityID: "c1"}},
		},
	}
	assert.Equal(t, 10.0, e.Field("price"))
	assert.Nil(t, e.Field("notes"))
	assert.Nil(t, e.Field("missing"))
	assert.Equal(t, []string{"c1"}, e.TargetIDs("HAS_CATEGORY"))
	assert.Empty(t, e.TargetIDs("HAS_BRANCH"))
	assert.Equal(t, []string{"notes", "price"}, e.FieldNames())

	c := e.Clone()
	c.Relationships["HAS_CATEGORY"][0].ToEntityID = "c2"
	delete(c.DynamicFields, "price")
	assert.Equal(t, "c1", e.Relationships["HAS_CATEGORY"][0].ToEntityID)
	assert.Contains(t, e.DynamicFields, "price")
}

func TestTransactionHelpers(t *testing.T) {
	lines := []Line{
		{LineAmount: decimal.RequireFromString("10.50")},
		{LineAmount: decimal.RequireFromString("4.25")},
	}
	assert.True(t, SumLines(lines).Equal(decimal.RequireFromString("14.75")))

	txn := &Transaction{Status: TxnStatusDraft}
	assert.False(t, txn.Finalized())
	txn.Status = TxnStatusCompleted
	assert.True(t, txn.Finalized())
}
