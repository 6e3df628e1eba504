package cli

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

func splitPair(arg, flag string) (string, string, error) {
	k, v, ok := strings.Cut(arg, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", usageErr("--%s %q: expected key=value", flag, arg)
	}
	return k, v, nil
}

// parseFields turns name=value arguments into raw field values. Booleans are
// parsed here; every other type is coerced by the orchestrator from the
// string. An empty value clears the field.
func parseFields(s *preset.EntitySchema, args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for _, arg := range args {
		name, raw, err := splitPair(arg, "field")
		if err != nil {
			return nil, err
		}
		if raw == "" {
			out[name] = nil
			continue
		}
		def, ok := s.Field(name)
		if ok && def.Type == fields.TypeBoolean {
			switch raw {
			case "true":
				out[name] = true
			case "false":
				out[name] = false
			default:
				return nil, usageErr("--field %s: %q is not a boolean, use true or false", name, raw)
			}
			continue
		}
		out[name] = raw
	}
	return out, nil
}

// parseRels turns TYPE=id1,id2 arguments into relationship targets. An
// empty list clears the relationship.
func parseRels(args []string) (map[string][]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(args))
	for _, arg := range args {
		relType, raw, err := splitPair(arg, "rel")
		if err != nil {
			return nil, err
		}
		ids := []string{}
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		out[relType] = append(out[relType], ids...)
	}
	return out, nil
}

// parseRelFilters turns TYPE=id arguments into query filters.
func parseRelFilters(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for _, arg := range args {
		relType, id, err := splitPair(arg, "rel")
		if err != nil {
			return nil, err
		}
		out[relType] = strings.TrimSpace(id)
	}
	return out, nil
}

// parseLine reads a transaction line written as comma-separated key=value
// pairs: type, entity, qty, unit, amount and smart_code.
func parseLine(arg string) (types.Line, error) {
	l := types.Line{Quantity: decimal.NewFromInt(1)}
	for _, part := range strings.Split(arg, ",") {
		k, v, err := splitPair(part, "line")
		if err != nil {
			return types.Line{}, err
		}
		v = strings.TrimSpace(v)
		switch k {
		case "type":
			l.LineType = v
		case "entity":
			l.EntityID = v
		case "smart_code":
			l.SmartCode = v
		case "qty", "unit", "amount":
			d, err := decimal.NewFromString(v)
			if err != nil {
				return types.Line{}, usageErr("--line %s=%q: not a number", k, v)
			}
			switch k {
			case "qty":
				l.Quantity = d
			case "unit":
				l.UnitAmount = d
			default:
				l.LineAmount = d
			}
		default:
			return types.Line{}, usageErr("--line: unknown key %q", k)
		}
	}
	if l.LineType == "" {
		return types.Line{}, usageErr("--line %q: type is required", arg)
	}
	return l, nil
}

func parseStatuses(args []string) ([]types.Status, error) {
	out := make([]types.Status, 0, len(args))
	for _, a := range args {
		st := types.Status(strings.TrimSpace(a))
		if !st.Valid() {
			return nil, fmt.Errorf("status %q: %w", a, types.ErrInvalidFilter)
		}
		out = append(out, st)
	}
	return out, nil
}
