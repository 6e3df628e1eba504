package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mesh-intelligence/hera/pkg/fields"
)

// Status is the generic lifecycle status of an entity.
type Status string

// Lifecycle statuses. Archived is reversible; deleted is the terminal
// tombstone used when a requested hard delete was refused.
const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Valid reports whether s is one of the lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// Entity is a generic business object described by a preset.
type Entity struct {
	ID            string                            `json:"id"`
	EntityType    string                            `json:"entity_type"`
	EntityName    string                            `json:"entity_name"`
	EntityCode    string                            `json:"entity_code,omitempty"`
	SmartCode     string                            `json:"smart_code"`
	Status        Status                            `json:"status"`
	DynamicFields map[string]DynamicFieldValue      `json:"dynamic_fields"`
	Relationships map[string][]RelationshipInstance `json:"relationships"`
	CreatedAt     time.Time                         `json:"created_at"`
	UpdatedAt     time.Time                         `json:"updated_at"`
}

// Field returns the raw value of the named dynamic field, or nil.
func (e *Entity) Field(name string) any {
	f, ok := e.DynamicFields[name]
	if !ok || f.Value == nil {
		return nil
	}
	return f.Value.Raw()
}

// TargetIDs returns the target ids of the named relationship in stored order.
func (e *Entity) TargetIDs(relType string) []string {
	rels := e.Relationships[relType]
	ids := make([]string, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.ToEntityID)
	}
	return ids
}

// Clone returns a deep copy of e. Field values are immutable and shared.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.DynamicFields = make(map[string]DynamicFieldValue, len(e.DynamicFields))
	for k, v := range e.DynamicFields {
		c.DynamicFields[k] = v
	}
	c.Relationships = make(map[string][]RelationshipInstance, len(e.Relationships))
	for k, v := range e.Relationships {
		c.Relationships[k] = append([]RelationshipInstance(nil), v...)
	}
	return &c
}

// FieldNames returns the dynamic field names in sorted order.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.DynamicFields))
	for n := range e.DynamicFields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DynamicFieldValue is one typed attribute attached to an entity. A nil
// Value means the field was explicitly cleared.
type DynamicFieldValue struct {
	Name      string
	Type      fields.FieldType
	SmartCode string
	Value     fields.Value
}

type dynamicFieldJSON struct {
	Name      string           `json:"name"`
	Type      fields.FieldType `json:"type"`
	SmartCode string           `json:"smart_code"`
	Value     json.RawMessage  `json:"value"`
}

// MarshalJSON encodes the value by its raw form; dates use RFC 3339.
func (d DynamicFieldValue) MarshalJSON() ([]byte, error) {
	out := dynamicFieldJSON{Name: d.Name, Type: d.Type, SmartCode: d.SmartCode, Value: json.RawMessage("null")}
	if d.Value != nil {
		var raw any = d.Value.Raw()
		if t, ok := raw.(time.Time); ok {
			raw = t.UTC().Format(time.RFC3339Nano)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		out.Value = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the value and coerces it to the declared type.
func (d *DynamicFieldValue) UnmarshalJSON(data []byte) error {
	var in dynamicFieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.Name, d.Type, d.SmartCode, d.Value = in.Name, in.Type, in.SmartCode, nil
	if len(in.Value) == 0 || string(in.Value) == "null" {
		return nil
	}
	var raw any = in.Value
	if in.Type != fields.TypeJSON {
		dec := json.NewDecoder(bytes.NewReader(in.Value))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		raw = v
	}
	v, err := fields.Coerce(in.Type, raw)
	if err != nil {
		return fmt.Errorf("field %s: %w", in.Name, err)
	}
	d.Value = v
	return nil
}

// RelationshipInstance is a directed edge from one entity to another.
type RelationshipInstance struct {
	ID               string         `json:"id,omitempty"`
	FromEntityID     string         `json:"from_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	ToEntityID       string         `json:"to_entity_id"`
	SmartCode        string         `json:"smart_code,omitempty"`
	ToEntity         *EntitySummary `json:"to_entity,omitempty"`
}

// EntitySummary is the resolved snapshot of a relationship target.
type EntitySummary struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityName string `json:"entity_name"`
	EntityCode string `json:"entity_code,omitempty"`
	Status     Status `json:"status"`
}
