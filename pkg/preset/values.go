package preset

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// ApplyDefaults returns a copy of values with every absent field that has a
// default filled in. A key present with a nil value was cleared on purpose
// and is kept as nil.
func ApplyDefaults(s *EntitySchema, values map[string]any) map[string]any {
	out := make(map[string]any, len(values)+len(s.Fields))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range s.Fields {
		if _, present := out[f.Name]; present || f.Default == nil {
			continue
		}
		if v, err := fields.Coerce(f.Type, f.Default); err == nil {
			out[f.Name] = v.Raw()
		}
	}
	return out
}

// ApplyWorkflowDefaults fills absent workflow-bound fields with their
// workflow's initial state.
func (r *Registry) ApplyWorkflowDefaults(s *EntitySchema, values map[string]any) map[string]any {
	out := ApplyDefaults(s, values)
	for _, f := range s.WorkflowFields() {
		if _, present := out[f.Name]; present {
			continue
		}
		if w, ok := r.Workflow(f.Workflow); ok {
			out[f.Name] = w.Initial()
		}
	}
	return out
}

// ValidateRequired returns one MissingRequiredField error per required
// field whose value is absent or nil. Zero values such as 0, false and ""
// are present.
func ValidateRequired(s *EntitySchema, values map[string]any) types.ValidationErrors {
	var errs types.ValidationErrors
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := values[f.Name]; !ok || v == nil {
			errs = append(errs, &types.FieldError{Code: types.ErrMissingRequiredField, Field: f.Name})
		}
	}
	return errs
}

// CoerceValues converts raw values to typed dynamic field values in the
// preset's declaration order. Unknown names and values that do not match the
// declared type are collected as validation errors. A nil value yields a
// cleared field.
func CoerceValues(s *EntitySchema, values map[string]any) ([]types.DynamicFieldValue, types.ValidationErrors) {
	var errs types.ValidationErrors
	unknown := make([]string, 0)
	for name := range values {
		if _, ok := s.Field(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, &types.FieldError{
			Code:  types.ErrUnknownField,
			Field: name,
			Msg:   fmt.Sprintf("not declared by %s", s.EntityType),
		})
	}

	out := make([]types.DynamicFieldValue, 0, len(values))
	for _, f := range s.Fields {
		raw, ok := values[f.Name]
		if !ok {
			continue
		}
		v, err := fields.Coerce(f.Type, raw)
		if err != nil {
			errs = append(errs, &types.FieldError{Code: types.ErrTypeMismatch, Field: f.Name, Msg: err.Error()})
			continue
		}
		out = append(out, types.DynamicFieldValue{
			Name:      f.Name,
			Type:      f.Type,
			SmartCode: f.SmartCode,
			Value:     v,
		})
	}
	return out, errs
}
