// Package fields defines the closed set of dynamic field value types and
// their coercion rules. Every dynamic field value carried by an entity is one
// of the Value variants declared here.
package fields

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType names one member of the field type system.
type FieldType string

// The closed set of dynamic field types.
const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeJSON    FieldType = "json"
)

// AllTypes lists every field type in declaration order.
var AllTypes = []FieldType{TypeText, TypeNumber, TypeBoolean, TypeDate, TypeJSON}

// ErrTypeMismatch is returned when a value's runtime shape does not match
// the declared field type.
var ErrTypeMismatch = errors.New("type mismatch")

// ErrUnknownType is returned for a field type outside the closed set.
var ErrUnknownType = errors.New("unknown field type")

// Valid reports whether t is a member of the closed set.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeBoolean, TypeDate, TypeJSON:
		return true
	}
	return false
}

// Value is a typed dynamic field value. The concrete types are TextField,
// NumberField, BooleanField, DateField and JSONField.
type Value interface {
	// Type returns the field type of the value.
	Type() FieldType
	// Raw returns the plain Go value: string, float64, bool, time.Time
	// or json.RawMessage.
	Raw() any
	isValue()
}

// TextField holds a text value.
type TextField struct{ V string }

// NumberField holds a numeric value.
type NumberField struct{ V float64 }

// BooleanField holds a boolean value.
type BooleanField struct{ V bool }

// DateField holds a full UTC timestamp.
type DateField struct{ V time.Time }

// JSONField holds a structurally valid JSON document.
type JSONField struct{ V json.RawMessage }

func (TextField) Type() FieldType    { return TypeText }
func (NumberField) Type() FieldType  { return TypeNumber }
func (BooleanField) Type() FieldType { return TypeBoolean }
func (DateField) Type() FieldType    { return TypeDate }
func (JSONField) Type() FieldType    { return TypeJSON }

func (f TextField) Raw() any    { return f.V }
func (f NumberField) Raw() any  { return f.V }
func (f BooleanField) Raw() any { return f.V }
func (f DateField) Raw() any    { return f.V }
func (f JSONField) Raw() any    { return f.V }

func (TextField) isValue()    {}
func (NumberField) isValue()  {}
func (BooleanField) isValue() {}
func (DateField) isValue()    {}
func (JSONField) isValue()    {}

// Coerce converts v to a Value of type t. A nil v yields a nil Value and no
// error; callers use nil to mean "intentionally cleared".
//
// Numbers accept any Go numeric kind, json.Number and numeric strings.
// Booleans accept only bool: truthy strings such as "true" or "1" are a type
// mismatch. Dates accept time.Time and ISO-8601 or backend-native strings;
// a date without a time component is midnight UTC. JSON accepts
// json.RawMessage, []byte or string holding valid JSON, and any value that
// marshals to JSON.
func Coerce(t FieldType, v any) (Value, error) {
	if v == nil {
		return nil, nil
	}
	if existing, ok := v.(Value); ok {
		if existing.Type() == t {
			return existing, nil
		}
		v = existing.Raw()
	}
	switch t {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(t, v)
		}
		return TextField{V: s}, nil
	case TypeNumber:
		n, err := toNumber(v)
		if err != nil {
			return nil, mismatch(t, v)
		}
		return NumberField{V: n}, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(t, v)
		}
		return BooleanField{V: b}, nil
	case TypeDate:
		switch d := v.(type) {
		case time.Time:
			return DateField{V: d.UTC()}, nil
		case string:
			ts, err := ParseDate(d)
			if err != nil {
				return nil, mismatch(t, v)
			}
			return DateField{V: ts}, nil
		default:
			return nil, mismatch(t, v)
		}
	case TypeJSON:
		raw, err := toJSON(v)
		if err != nil {
			return nil, mismatch(t, v)
		}
		return JSONField{V: raw}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func mismatch(t FieldType, v any) error {
	return fmt.Errorf("%w: %T is not a valid %s value", ErrTypeMismatch, v, t)
}

func toNumber(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, ErrTypeMismatch
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrTypeMismatch
	}
	return f, nil
}

func toJSON(v any) (json.RawMessage, error) {
	switch j := v.(type) {
	case json.RawMessage:
		if !json.Valid(j) {
			return nil, ErrTypeMismatch
		}
		return append(json.RawMessage(nil), j...), nil
	case []byte:
		if !json.Valid(j) {
			return nil, ErrTypeMismatch
		}
		return append(json.RawMessage(nil), j...), nil
	case string:
		if !json.Valid([]byte(j)) {
			return nil, ErrTypeMismatch
		}
		return json.RawMessage(j), nil
	default:
		b, err := json.Marshal(j)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Equal reports whether a and b hold the same type and value.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case DateField:
		return av.V.Equal(b.(DateField).V)
	case JSONField:
		return string(av.V) == string(b.(JSONField).V)
	default:
		return a.Raw() == b.Raw()
	}
}
