// Package relationship applies cardinality-aware, full-replacement patches
// to an entity's typed edges.
package relationship

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Normalize checks targetIDs against the definition of relType in s and
// returns them with duplicates removed, first occurrence kept. A cardinality
// one relationship accepts zero or one target.
func Normalize(s *preset.EntitySchema, relType string, targetIDs []string) ([]string, error) {
	def, ok := s.Relationship(relType)
	if !ok {
		return nil, &types.FieldError{
			Code:  types.ErrUnknownRelationshipType,
			Field: relType,
			Msg:   fmt.Sprintf("not declared by %s", s.EntityType),
		}
	}
	seen := make(map[string]bool, len(targetIDs))
	ids := make([]string, 0, len(targetIDs))
	for _, id := range targetIDs {
		if id == "" {
			return nil, &types.FieldError{Code: types.ErrInvalidID, Field: relType, Msg: "empty target id"}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if def.Cardinality == preset.One && len(ids) > 1 {
		return nil, &types.FieldError{
			Code:  types.ErrCardinalityViolation,
			Field: relType,
			Msg:   fmt.Sprintf("cardinality one accepts at most one target, got %d", len(ids)),
		}
	}
	return ids, nil
}

// Patch returns a copy of current in which the edges of relType are
// replaced by exactly targetIDs. Patching is never additive: an empty
// targetIDs removes every edge of that type. Edges of other types are kept.
func Patch(s *preset.EntitySchema, current map[string][]types.RelationshipInstance, fromID, relType string, targetIDs []string) (map[string][]types.RelationshipInstance, error) {
	ids, err := Normalize(s, relType, targetIDs)
	if err != nil {
		return nil, err
	}
	def, _ := s.Relationship(relType)

	out := make(map[string][]types.RelationshipInstance, len(current)+1)
	for k, v := range current {
		if k != relType {
			out[k] = append([]types.RelationshipInstance(nil), v...)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}
	edges := make([]types.RelationshipInstance, len(ids))
	for i, id := range ids {
		edges[i] = types.RelationshipInstance{
			FromEntityID:     fromID,
			RelationshipType: relType,
			ToEntityID:       id,
			SmartCode:        def.SmartCode,
		}
	}
	out[relType] = edges
	return out, nil
}

// Refs validates a patch of several relationship types and converts it to
// write references, collecting every problem instead of stopping at the
// first. A nil slice for a type is treated like an empty one.
func Refs(s *preset.EntitySchema, patch map[string][]string) (map[string][]types.RelationshipRef, types.ValidationErrors) {
	relTypes := make([]string, 0, len(patch))
	for t := range patch {
		relTypes = append(relTypes, t)
	}
	sort.Strings(relTypes)

	var errs types.ValidationErrors
	out := make(map[string][]types.RelationshipRef, len(patch))
	for _, relType := range relTypes {
		ids, err := Normalize(s, relType, patch[relType])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		def, _ := s.Relationship(relType)
		refs := make([]types.RelationshipRef, len(ids))
		for i, id := range ids {
			refs[i] = types.RelationshipRef{ToEntityID: id, SmartCode: def.SmartCode}
		}
		out[relType] = refs
	}
	return out, errs
}
