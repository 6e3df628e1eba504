// Package preset holds the declarative schemas (presets) that describe each
// entity kind: its dynamic fields, relationships, defaults and permissions.
// Presets are validated once at registration and read-only afterwards.
package preset

import (
	"github.com/mesh-intelligence/hera/pkg/fields"
)

// Cardinality bounds how many edges of one relationship type an entity may
// hold at a time.
type Cardinality string

// Cardinalities.
const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Valid reports whether c is one or many.
func (c Cardinality) Valid() bool { return c == One || c == Many }

// Action is an operation gated by Permissions.
type Action string

// Actions.
const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
)

// Permissions lists the roles allowed to perform each action. An empty list
// allows every role.
type Permissions struct {
	Create []string `yaml:"create,omitempty" json:"create,omitempty"`
	Edit   []string `yaml:"edit,omitempty" json:"edit,omitempty"`
	Delete []string `yaml:"delete,omitempty" json:"delete,omitempty"`
	View   []string `yaml:"view,omitempty" json:"view,omitempty"`
}

// Allows reports whether role may perform a.
func (p Permissions) Allows(a Action, role string) bool {
	var roles []string
	switch a {
	case ActionCreate:
		roles = p.Create
	case ActionEdit:
		roles = p.Edit
	case ActionDelete:
		roles = p.Delete
	case ActionView:
		roles = p.View
	default:
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// DynamicFieldDefinition declares one typed attribute of an entity kind.
// Default is the raw default value; nil means the field has no default.
// Workflow, when set, names a lifecycle workflow that governs the field's
// value; such a field must be text.
type DynamicFieldDefinition struct {
	Name      string           `yaml:"name" json:"name"`
	Type      fields.FieldType `yaml:"type" json:"type"`
	SmartCode string           `yaml:"smart_code" json:"smart_code"`
	Required  bool             `yaml:"required,omitempty" json:"required,omitempty"`
	Default   any              `yaml:"default_value,omitempty" json:"default_value,omitempty"`
	Label     string           `yaml:"label,omitempty" json:"label,omitempty"`
	Workflow  string           `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// HasDefault reports whether the definition carries a default value.
func (d DynamicFieldDefinition) HasDefault() bool { return d.Default != nil }

// RelationshipDefinition declares a typed edge from this entity kind.
// TargetType optionally restricts the kind of the target entity.
type RelationshipDefinition struct {
	Type        string      `yaml:"type" json:"type"`
	SmartCode   string      `yaml:"smart_code" json:"smart_code"`
	Cardinality Cardinality `yaml:"cardinality" json:"cardinality"`
	TargetType  string      `yaml:"target_type,omitempty" json:"target_type,omitempty"`
}

// EntitySchema is the preset for one entity kind.
type EntitySchema struct {
	EntityType    string                   `yaml:"entity_type" json:"entity_type"`
	Label         string                   `yaml:"label,omitempty" json:"label,omitempty"`
	SmartCode     string                   `yaml:"smart_code,omitempty" json:"smart_code,omitempty"`
	Permissions   Permissions              `yaml:"permissions,omitempty" json:"permissions"`
	Fields        []DynamicFieldDefinition `yaml:"dynamic_fields" json:"dynamic_fields"`
	Relationships []RelationshipDefinition `yaml:"relationships,omitempty" json:"relationships"`
}

// Field returns the definition of the named field.
func (s *EntitySchema) Field(name string) (*DynamicFieldDefinition, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// Relationship returns the definition of the named relationship type.
func (s *EntitySchema) Relationship(relType string) (*RelationshipDefinition, bool) {
	for i := range s.Relationships {
		if s.Relationships[i].Type == relType {
			return &s.Relationships[i], true
		}
	}
	return nil, false
}

// WorkflowFields returns the fields bound to a workflow, in declaration order.
func (s *EntitySchema) WorkflowFields() []DynamicFieldDefinition {
	var out []DynamicFieldDefinition
	for _, f := range s.Fields {
		if f.Workflow != "" {
			out = append(out, f)
		}
	}
	return out
}

// clone returns a copy whose slices are not shared with s.
func (s EntitySchema) clone() EntitySchema {
	c := s
	c.Fields = append([]DynamicFieldDefinition(nil), s.Fields...)
	c.Relationships = append([]RelationshipDefinition(nil), s.Relationships...)
	c.Permissions = Permissions{
		Create: append([]string(nil), s.Permissions.Create...),
		Edit:   append([]string(nil), s.Permissions.Edit...),
		Delete: append([]string(nil), s.Permissions.Delete...),
		View:   append([]string(nil), s.Permissions.View...),
	}
	return c
}
