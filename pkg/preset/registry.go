package preset

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/smartcode"
	"github.com/mesh-intelligence/hera/pkg/types"
)

var entityTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Builder collects presets and checks each one as it is registered. Build
// freezes the collection into a Registry.
type Builder struct {
	schemas   map[string]EntitySchema
	workflows map[string]*lifecycle.Workflow
}

// NewBuilder returns an empty builder. Fields may bind to any of the given
// workflows by name.
func NewBuilder(workflows ...*lifecycle.Workflow) *Builder {
	b := &Builder{
		schemas:   make(map[string]EntitySchema),
		workflows: make(map[string]*lifecycle.Workflow, len(workflows)),
	}
	for _, w := range workflows {
		b.workflows[w.Name()] = w
	}
	return b
}

// Register validates s and adds it. Duplicate entity types, field names,
// field smart codes and relationship types are rejected here rather than at
// first use.
func (b *Builder) Register(s EntitySchema) error {
	if !entityTypePattern.MatchString(s.EntityType) {
		return fmt.Errorf("preset %q: entity_type must be an uppercase token: %w", s.EntityType, types.ErrInvalidPreset)
	}
	if _, dup := b.schemas[s.EntityType]; dup {
		return fmt.Errorf("preset %s: %w", s.EntityType, types.ErrDuplicatePreset)
	}
	if s.SmartCode != "" {
		if err := smartcode.Validate(s.SmartCode).Err(); err != nil {
			return fmt.Errorf("preset %s: smart_code %s: %v: %w", s.EntityType, s.SmartCode, err, types.ErrInvalidPreset)
		}
	}

	names := make(map[string]bool, len(s.Fields))
	codes := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if err := b.checkField(s.EntityType, f); err != nil {
			return err
		}
		if names[f.Name] {
			return fmt.Errorf("preset %s: field %q: %w", s.EntityType, f.Name, types.ErrDuplicateFieldName)
		}
		if codes[f.SmartCode] {
			return fmt.Errorf("preset %s: field %q smart_code %s: %w", s.EntityType, f.Name, f.SmartCode, types.ErrDuplicateFieldSmartCode)
		}
		names[f.Name] = true
		codes[f.SmartCode] = true
	}

	rels := make(map[string]bool, len(s.Relationships))
	for _, r := range s.Relationships {
		if r.Type == "" {
			return fmt.Errorf("preset %s: relationship type is empty: %w", s.EntityType, types.ErrInvalidPreset)
		}
		if rels[r.Type] {
			return fmt.Errorf("preset %s: relationship %s: %w", s.EntityType, r.Type, types.ErrDuplicateRelationshipType)
		}
		if !r.Cardinality.Valid() {
			return fmt.Errorf("preset %s: relationship %s: cardinality %q: %w", s.EntityType, r.Type, r.Cardinality, types.ErrInvalidPreset)
		}
		if err := smartcode.Validate(r.SmartCode).Err(); err != nil {
			return fmt.Errorf("preset %s: relationship %s: smart_code %s: %v: %w", s.EntityType, r.Type, r.SmartCode, err, types.ErrInvalidPreset)
		}
		rels[r.Type] = true
	}

	b.schemas[s.EntityType] = s.clone()
	return nil
}

func (b *Builder) checkField(entityType string, f DynamicFieldDefinition) error {
	if f.Name == "" {
		return fmt.Errorf("preset %s: field name is empty: %w", entityType, types.ErrInvalidPreset)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("preset %s: field %q: type %q: %w", entityType, f.Name, f.Type, types.ErrInvalidPreset)
	}
	if err := smartcode.Validate(f.SmartCode).Err(); err != nil {
		return fmt.Errorf("preset %s: field %q: smart_code %s: %v: %w", entityType, f.Name, f.SmartCode, err, types.ErrInvalidPreset)
	}
	if f.Default != nil {
		if _, err := fields.Coerce(f.Type, f.Default); err != nil {
			return fmt.Errorf("preset %s: field %q: default_value: %v: %w", entityType, f.Name, err, types.ErrInvalidPreset)
		}
	}
	if f.Workflow != "" {
		w, ok := b.workflows[f.Workflow]
		if !ok {
			return fmt.Errorf("preset %s: field %q: unknown workflow %q: %w", entityType, f.Name, f.Workflow, types.ErrInvalidPreset)
		}
		if f.Type != fields.TypeText {
			return fmt.Errorf("preset %s: field %q: workflow fields must be text: %w", entityType, f.Name, types.ErrInvalidPreset)
		}
		if d, ok := f.Default.(string); ok && !w.Known(d) {
			return fmt.Errorf("preset %s: field %q: default %q is not a %s state: %w", entityType, f.Name, d, w.Name(), types.ErrInvalidPreset)
		}
	}
	return nil
}

// MustRegister is Register for built-in presets; it panics on error.
func (b *Builder) MustRegister(schemas ...EntitySchema) *Builder {
	for _, s := range schemas {
		if err := b.Register(s); err != nil {
			panic(err)
		}
	}
	return b
}

// Build returns an immutable registry of everything registered so far.
// The builder may keep registering without affecting the returned registry.
func (b *Builder) Build() *Registry {
	r := &Registry{
		schemas:   make(map[string]*EntitySchema, len(b.schemas)),
		workflows: make(map[string]*lifecycle.Workflow, len(b.workflows)),
	}
	for k, s := range b.schemas {
		c := s.clone()
		r.schemas[k] = &c
	}
	for k, w := range b.workflows {
		r.workflows[k] = w
	}
	return r
}

// Registry is a read-only set of presets keyed by entity type. It is safe
// for concurrent use.
type Registry struct {
	schemas   map[string]*EntitySchema
	workflows map[string]*lifecycle.Workflow
}

// Resolve returns the preset for entityType. Callers must not modify it.
func (r *Registry) Resolve(entityType string) (*EntitySchema, error) {
	s, ok := r.schemas[entityType]
	if !ok {
		return nil, fmt.Errorf("entity type %q: %w", entityType, types.ErrUnknownEntityType)
	}
	return s, nil
}

// EntityTypes returns the registered entity types in sorted order.
func (r *Registry) EntityTypes() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Workflow returns the named workflow a field may bind to.
func (r *Registry) Workflow(name string) (*lifecycle.Workflow, bool) {
	w, ok := r.workflows[name]
	return w, ok
}

// FieldWorkflow returns the workflow bound to field of s, if any.
func (r *Registry) FieldWorkflow(s *EntitySchema, field string) (*lifecycle.Workflow, bool) {
	d, ok := s.Field(field)
	if !ok || d.Workflow == "" {
		return nil, false
	}
	return r.Workflow(d.Workflow)
}
