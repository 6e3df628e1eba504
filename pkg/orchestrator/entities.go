package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/relationship"
	"github.com/mesh-intelligence/hera/pkg/smartcode"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// CreateRequest describes a new entity. Fields holds raw values keyed by
// field name; Relationships holds target ids keyed by relationship type.
// An empty SmartCode takes the preset's smart code.
type CreateRequest struct {
	EntityType    string              `json:"entity_type"`
	EntityName    string              `json:"entity_name"`
	EntityCode    string              `json:"entity_code,omitempty"`
	SmartCode     string              `json:"smart_code,omitempty"`
	Fields        map[string]any      `json:"dynamic_fields,omitempty"`
	Relationships map[string][]string `json:"relationships,omitempty"`
}

// UpdateRequest is a partial update. Nil members are untouched. Each listed
// field is replaced whole; a nil value clears it. Each listed relationship
// type is replaced by exactly the given targets.
type UpdateRequest struct {
	EntityName    *string             `json:"entity_name,omitempty"`
	EntityCode    *string             `json:"entity_code,omitempty"`
	Fields        map[string]any      `json:"dynamic_fields,omitempty"`
	Relationships map[string][]string `json:"relationships,omitempty"`
	Status        *types.Status       `json:"status,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.EntityName == nil && r.EntityCode == nil && r.Status == nil &&
		len(r.Fields) == 0 && r.Relationships == nil
}

// Create validates req against its preset and persists header, fields and
// relationships in one backend call. Defaults fill absent fields and
// workflow-bound fields start in their workflow's initial state.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*types.Entity, error) {
	s, err := o.registry.Resolve(req.EntityType)
	if err != nil {
		return nil, o.record(OpCreate, req.EntityType, err)
	}
	if err := o.authorize(ctx, s, preset.ActionCreate); err != nil {
		return nil, o.record(OpCreate, s.EntityType, err)
	}

	var errs types.ValidationErrors
	name := strings.TrimSpace(req.EntityName)
	if name == "" {
		errs = append(errs, &types.FieldError{Code: types.ErrInvalidName, Field: "entity_name", Msg: "must not be empty"})
	}
	code := req.SmartCode
	if code == "" {
		code = s.SmartCode
	}
	if err := checkSmartCode("smart_code", code); err != nil {
		errs = append(errs, err)
	}

	values := o.registry.ApplyWorkflowDefaults(s, req.Fields)
	errs = append(errs, preset.ValidateRequired(s, values)...)
	dynamic, fieldErrs := preset.CoerceValues(s, values)
	errs = append(errs, fieldErrs...)
	errs = append(errs, o.checkWorkflowStates(s, dynamic)...)
	refs, relErrs := relationship.Refs(s, req.Relationships)
	errs = append(errs, relErrs...)
	if len(errs) == 0 {
		errs = append(errs, o.checkTargets(ctx, s, refs)...)
	}
	if err := errs.Err(); err != nil {
		return nil, o.record(OpCreate, s.EntityType, err)
	}

	e, err := o.backend.EntityCreate(ctx, types.NewEntity{
		EntityType:    s.EntityType,
		EntityName:    name,
		EntityCode:    req.EntityCode,
		SmartCode:     code,
		Status:        types.StatusActive,
		DynamicFields: dynamic,
		Relationships: refs,
	})
	if err != nil {
		return nil, o.record(OpCreate, s.EntityType, classify(err))
	}
	o.merge(ctx, e)
	o.publish(ctx, entityEvent(OpCreate, e))
	o.logger.Debug("entity created", zap.String("entity_id", e.ID), zap.String("entity_type", e.EntityType))
	return e, o.record(OpCreate, s.EntityType, nil)
}

// Get fetches an entity from the backend and refreshes the cache with it.
func (o *Orchestrator) Get(ctx context.Context, id string) (*types.Entity, error) {
	e, err := o.backend.EntityGet(ctx, id)
	if err != nil {
		return nil, o.record(OpGet, "", classify(err))
	}
	s, err := o.registry.Resolve(e.EntityType)
	if err == nil {
		err = o.authorize(ctx, s, preset.ActionView)
	}
	if err != nil {
		return nil, o.record(OpGet, e.EntityType, err)
	}
	o.merge(ctx, e)
	return e, o.record(OpGet, e.EntityType, nil)
}

// Update applies req to an existing, non-deleted entity. Field and
// relationship changes are validated with the same preset rules as Create;
// changes to workflow-bound fields must be legal transitions.
func (o *Orchestrator) Update(ctx context.Context, id string, req UpdateRequest) (*types.Entity, error) {
	return o.update(ctx, OpUpdate, id, req, false)
}

// Archive hides an entity reversibly. Archiving an archived entity is a
// no-op that succeeds.
func (o *Orchestrator) Archive(ctx context.Context, id string) (*types.Entity, error) {
	archived := types.StatusArchived
	return o.update(ctx, OpArchive, id, UpdateRequest{Status: &archived}, false)
}

// Restore returns an archived entity to active.
func (o *Orchestrator) Restore(ctx context.Context, id string) (*types.Entity, error) {
	active := types.StatusActive
	return o.update(ctx, OpRestore, id, UpdateRequest{Status: &active}, false)
}

// Transition moves a workflow-bound field of an entity to state. The move
// is checked against the workflow table before any write.
func (o *Orchestrator) Transition(ctx context.Context, id, field, state string) (*types.Entity, error) {
	return o.update(ctx, OpTransition, id, UpdateRequest{Fields: map[string]any{field: state}}, false)
}

// OverrideState sets a workflow-bound field to state without consulting
// the transition table, for example to un-cancel an appointment. The state
// must still belong to the workflow.
func (o *Orchestrator) OverrideState(ctx context.Context, id, field, state string) (*types.Entity, error) {
	return o.update(ctx, OpOverride, id, UpdateRequest{Fields: map[string]any{field: state}}, true)
}

func (o *Orchestrator) update(ctx context.Context, op Op, id string, req UpdateRequest, override bool) (*types.Entity, error) {
	current, err := o.backend.EntityGet(ctx, id)
	if err != nil {
		return nil, o.record(op, "", classify(err))
	}
	if current.Status == types.StatusDeleted {
		return nil, o.record(op, current.EntityType, fmt.Errorf("entity %s: %w", id, types.ErrEntityAlreadyDeleted))
	}
	s, err := o.registry.Resolve(current.EntityType)
	if err != nil {
		return nil, o.record(op, current.EntityType, err)
	}
	if err := o.authorize(ctx, s, preset.ActionEdit); err != nil {
		return nil, o.record(op, s.EntityType, err)
	}
	if op == OpTransition || op == OpOverride {
		for name := range req.Fields {
			if _, ok := o.registry.FieldWorkflow(s, name); !ok {
				return nil, o.record(op, s.EntityType, &types.FieldError{
					Code: types.ErrUnknownField, Field: name, Msg: "not bound to a workflow"})
			}
		}
	}

	patch, err := o.buildPatch(ctx, s, current, req, override)
	if err != nil {
		return nil, o.record(op, s.EntityType, err)
	}
	if patch.Empty() {
		o.merge(ctx, current)
		return current, o.record(op, s.EntityType, nil)
	}

	e, err := o.backend.EntityUpdate(ctx, id, patch)
	if err != nil {
		return nil, o.record(op, s.EntityType, classify(err))
	}
	o.merge(ctx, e)
	o.publish(ctx, entityEvent(op, e))
	o.logger.Debug("entity updated", zap.String("op", string(op)), zap.String("entity_id", id))
	return e, o.record(op, s.EntityType, nil)
}

// buildPatch validates req against the preset and the current entity.
func (o *Orchestrator) buildPatch(ctx context.Context, s *preset.EntitySchema, current *types.Entity, req UpdateRequest, override bool) (types.EntityPatch, error) {
	var (
		patch types.EntityPatch
		errs  types.ValidationErrors
	)
	if req.EntityName != nil {
		name := strings.TrimSpace(*req.EntityName)
		if name == "" {
			errs = append(errs, &types.FieldError{Code: types.ErrInvalidName, Field: "entity_name", Msg: "must not be empty"})
		}
		patch.EntityName = &name
	}
	patch.EntityCode = req.EntityCode

	if req.Status != nil && *req.Status != current.Status {
		if !req.Status.Valid() {
			errs = append(errs, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: fmt.Sprintf("unknown status %q", *req.Status)})
		} else if err := lifecycle.ValidateStatus(current.Status, *req.Status); err != nil {
			return patch, err
		}
		patch.Status = req.Status
	}

	if len(req.Fields) > 0 {
		for _, f := range s.Fields {
			if v, ok := req.Fields[f.Name]; ok && v == nil && f.Required {
				errs = append(errs, &types.FieldError{Code: types.ErrMissingRequiredField, Field: f.Name, Msg: "required field cannot be cleared"})
			}
		}
		dynamic, fieldErrs := preset.CoerceValues(s, req.Fields)
		errs = append(errs, fieldErrs...)
		if override {
			errs = append(errs, o.checkWorkflowStates(s, dynamic)...)
		} else if err := o.checkWorkflowMoves(s, current, dynamic); err != nil {
			return patch, err
		}
		patch.Dynamic = dynamic
	}

	if req.Relationships != nil {
		refs, relErrs := relationship.Refs(s, req.Relationships)
		errs = append(errs, relErrs...)
		if len(relErrs) == 0 {
			errs = append(errs, o.checkTargets(ctx, s, refs)...)
		}
		for relType, r := range refs {
			for _, ref := range r {
				if ref.ToEntityID == current.ID {
					errs = append(errs, &types.FieldError{Code: types.ErrInvalidID, Field: relType, Msg: "an entity cannot target itself"})
				}
			}
		}
		if len(errs) == 0 {
			dropUnchanged(s, current, req.Relationships, refs)
		}
		if len(refs) > 0 {
			patch.Relationships = refs
		}
	}
	return patch, errs.Err()
}

// dropUnchanged removes from refs every relationship type whose replacement
// edge set equals the entity's current one, so resending the same targets
// does not write.
func dropUnchanged(s *preset.EntitySchema, current *types.Entity, req map[string][]string, refs map[string][]types.RelationshipRef) {
	for relType := range refs {
		next, err := relationship.Patch(s, current.Relationships, current.ID, relType, req[relType])
		if err != nil {
			continue
		}
		if sameTargets(next[relType], current.Relationships[relType]) {
			delete(refs, relType)
		}
	}
}

func sameTargets(a, b []types.RelationshipInstance) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ToEntityID != b[i].ToEntityID {
			return false
		}
	}
	return true
}

// checkWorkflowStates rejects values of workflow-bound fields that are not
// states of their workflow.
func (o *Orchestrator) checkWorkflowStates(s *preset.EntitySchema, dynamic []types.DynamicFieldValue) types.ValidationErrors {
	var errs types.ValidationErrors
	for _, d := range dynamic {
		w, ok := o.registry.FieldWorkflow(s, d.Name)
		if !ok || d.Value == nil {
			continue
		}
		state, _ := d.Value.Raw().(string)
		if !w.Known(state) {
			errs = append(errs, &lifecycle.IllegalTransitionError{
				Workflow: w.Name(), To: state, Reason: lifecycle.ReasonUnknownState})
		}
	}
	return errs
}

// checkWorkflowMoves validates every workflow-bound field change against
// its transition table. Setting a field to its current state is allowed.
func (o *Orchestrator) checkWorkflowMoves(s *preset.EntitySchema, current *types.Entity, dynamic []types.DynamicFieldValue) error {
	for _, d := range dynamic {
		w, ok := o.registry.FieldWorkflow(s, d.Name)
		if !ok {
			continue
		}
		from, _ := current.Field(d.Name).(string)
		if from == "" {
			from = w.Initial()
		}
		if d.Value == nil {
			return &types.FieldError{Code: types.ErrMissingRequiredField, Field: d.Name, Msg: "workflow state cannot be cleared"}
		}
		to, _ := d.Value.Raw().(string)
		if to == from && w.Known(to) {
			continue
		}
		if err := w.Validate(from, to); err != nil {
			return err
		}
	}
	return nil
}

// checkTargets enforces the declared target type of relationships. Targets
// are looked up in the cache first, then in the backend.
func (o *Orchestrator) checkTargets(ctx context.Context, s *preset.EntitySchema, refs map[string][]types.RelationshipRef) types.ValidationErrors {
	var errs types.ValidationErrors
	for _, relType := range sortedKeys(refs) {
		def, ok := s.Relationship(relType)
		if !ok || def.TargetType == "" {
			continue
		}
		for _, ref := range refs[relType] {
			target, err := o.lookup(ctx, ref.ToEntityID)
			if err != nil {
				errs = append(errs, &types.FieldError{Code: types.ErrInvalidID, Field: relType,
					Msg: fmt.Sprintf("target %s: %v", ref.ToEntityID, err)})
				continue
			}
			if target.EntityType != def.TargetType {
				errs = append(errs, &types.FieldError{Code: types.ErrTypeMismatch, Field: relType,
					Msg: fmt.Sprintf("target %s is %s, want %s", ref.ToEntityID, target.EntityType, def.TargetType)})
			}
		}
	}
	return errs
}

func (o *Orchestrator) lookup(ctx context.Context, id string) (*types.Entity, error) {
	if e, ok, err := o.cache.Get(ctx, id); err == nil && ok {
		return e, nil
	}
	e, err := o.backend.EntityGet(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	o.merge(ctx, e)
	return e, nil
}

// Query lists entities of one kind from the backend and merges the results
// into the cache. Relationship filters must name declared relationships.
func (o *Orchestrator) Query(ctx context.Context, q types.EntityQuery) ([]*types.Entity, error) {
	s, err := o.registry.Resolve(q.EntityType)
	if err != nil {
		return nil, o.record(OpQuery, q.EntityType, err)
	}
	if err := o.authorize(ctx, s, preset.ActionView); err != nil {
		return nil, o.record(OpQuery, s.EntityType, err)
	}
	var errs types.ValidationErrors
	for _, st := range q.Status {
		if !st.Valid() {
			errs = append(errs, &types.FieldError{Code: types.ErrInvalidFilter, Field: "status", Msg: fmt.Sprintf("unknown status %q", st)})
		}
	}
	for _, relType := range sortedKeys(q.RelFilters) {
		if _, ok := s.Relationship(relType); !ok {
			errs = append(errs, &types.FieldError{Code: types.ErrInvalidFilter, Field: "filter_rel", Msg: fmt.Sprintf("%s is not a relationship of %s", relType, s.EntityType)})
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		errs = append(errs, &types.FieldError{Code: types.ErrInvalidFilter, Field: "limit", Msg: "limit and offset must not be negative"})
	}
	if err := errs.Err(); err != nil {
		return nil, o.record(OpQuery, s.EntityType, err)
	}

	list, err := o.backend.EntityQuery(ctx, q)
	if err != nil {
		return nil, o.record(OpQuery, s.EntityType, classify(err))
	}
	for _, e := range list {
		o.merge(ctx, e)
	}
	return list, o.record(OpQuery, s.EntityType, nil)
}

// Invalidate drops every cached entity of entityType.
func (o *Orchestrator) Invalidate(ctx context.Context, entityType string) error {
	return o.cache.Invalidate(ctx, entityType)
}

func checkSmartCode(field, raw string) error {
	if err := smartcode.Validate(raw).Err(); err != nil {
		return &types.FieldError{Code: types.ErrInvalidSmartCode, Field: field, Msg: err.Error()}
	}
	return nil
}
