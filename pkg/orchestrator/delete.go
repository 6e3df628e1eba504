package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// OutcomeKind is the result of a delete request.
type OutcomeKind int

// Delete outcomes.
const (
	// Failed means nothing changed, or the compensating tombstone could
	// not be written. Err is set.
	Failed OutcomeKind = iota
	// HardDeleted means the entity is physically gone.
	HardDeleted
	// Archived means a soft delete was requested and the entity is now
	// archived.
	Archived
	// ArchivedFallback means a hard delete was refused because the entity
	// is still referenced, and the entity was tombstoned as deleted.
	ArchivedFallback
)

func (k OutcomeKind) String() string {
	switch k {
	case HardDeleted:
		return "hard_deleted"
	case Archived:
		return "archived"
	case ArchivedFallback:
		return "archived_fallback"
	}
	return "failed"
}

// DeleteOutcome reports what a delete did. Entity is the surviving entity
// for Archived and ArchivedFallback.
type DeleteOutcome struct {
	Kind    OutcomeKind
	Entity  *types.Entity
	Message string
	Err     error
}

// Success reports whether the caller's request to remove the entity was
// honored, physically or by archiving.
func (d DeleteOutcome) Success() bool { return d.Kind != Failed }

// Archived reports whether the entity still exists in a hidden state.
func (d DeleteOutcome) Archived() bool { return d.Kind == Archived || d.Kind == ArchivedFallback }

// Delete removes an entity.
//
// Without HardDelete the entity is archived. With HardDelete the backend is
// asked to remove it; if the backend refuses because other records still
// reference the entity, the entity is moved to the terminal deleted status
// instead and the outcome is ArchivedFallback, which is a success. Any
// other backend error fails the delete unchanged, wrapped in
// ErrUnexpectedDelete. If the tombstone write fails the outcome carries
// ErrCompensationFailed.
func (o *Orchestrator) Delete(ctx context.Context, id string, opts types.DeleteOptions) DeleteOutcome {
	out := o.delete(ctx, id, opts)
	o.metrics.observeDelete(out.Kind)
	return out
}

func (o *Orchestrator) delete(ctx context.Context, id string, opts types.DeleteOptions) DeleteOutcome {
	current, err := o.backend.EntityGet(ctx, id)
	if err != nil {
		return DeleteOutcome{Kind: Failed, Err: o.record(OpDelete, "", classify(err))}
	}
	s, err := o.registry.Resolve(current.EntityType)
	if err == nil {
		err = o.authorize(ctx, s, preset.ActionDelete)
	}
	if err != nil {
		return DeleteOutcome{Kind: Failed, Err: o.record(OpDelete, current.EntityType, err)}
	}

	if !opts.HardDelete {
		e, err := o.Archive(ctx, id)
		if err != nil {
			return DeleteOutcome{Kind: Failed, Err: err}
		}
		return DeleteOutcome{Kind: Archived, Entity: e, Message: fmt.Sprintf("%s archived", describe(e))}
	}

	// Owned fields and edges always go with the entity; only references
	// from other records can refuse the delete.
	opts.Cascade = true
	err = o.backend.EntityDelete(ctx, id, opts)
	if err == nil {
		o.forget(ctx, id)
		o.publish(ctx, Event{Op: OpDelete, EntityType: current.EntityType, EntityID: id})
		o.logger.Debug("entity hard deleted", zap.String("entity_id", id), zap.String("entity_type", current.EntityType))
		return DeleteOutcome{Kind: HardDeleted, Message: fmt.Sprintf("%s deleted", describe(current)),
			Err: o.record(OpDelete, current.EntityType, nil)}
	}

	cause := classify(err)
	if !errors.Is(cause, types.ErrConflict) {
		o.logger.Error("unexpected delete error", zap.String("entity_id", id), zap.Error(err))
		return DeleteOutcome{Kind: Failed,
			Err: o.record(OpDelete, current.EntityType, fmt.Errorf("%w: %w", types.ErrUnexpectedDelete, cause))}
	}

	e, err := o.tombstone(ctx, current)
	if err != nil {
		o.logger.Error("compensating tombstone failed", zap.String("entity_id", id), zap.NamedError("cause", cause), zap.Error(err))
		return DeleteOutcome{Kind: Failed,
			Err: o.record(OpDelete, current.EntityType, fmt.Errorf("%w: entity %s: %v", types.ErrCompensationFailed, id, err))}
	}
	o.logger.Warn("hard delete refused, entity tombstoned",
		zap.String("entity_id", id), zap.String("entity_type", current.EntityType),
		zap.String("reason", opts.Reason), zap.NamedError("cause", cause))
	o.publish(ctx, Event{Op: OpDelete, EntityType: e.EntityType, EntityID: id, Status: string(e.Status), Archived: true})
	return DeleteOutcome{
		Kind:    ArchivedFallback,
		Entity:  e,
		Message: fmt.Sprintf("%s is referenced by other records and was archived instead", describe(e)),
		Err:     o.record(OpDelete, current.EntityType, nil),
	}
}

// tombstone moves e to the deleted status. An entity already tombstoned is
// returned as is.
func (o *Orchestrator) tombstone(ctx context.Context, e *types.Entity) (*types.Entity, error) {
	if e.Status == types.StatusDeleted {
		o.merge(ctx, e)
		return e, nil
	}
	deleted := types.StatusDeleted
	out, err := o.backend.EntityUpdate(ctx, e.ID, types.EntityPatch{Status: &deleted})
	if err != nil {
		return nil, classify(err)
	}
	o.merge(ctx, out)
	return out, nil
}

func describe(e *types.Entity) string {
	if e.EntityName == "" {
		return e.EntityType + " " + e.ID
	}
	return fmt.Sprintf("%s %q", e.EntityType, e.EntityName)
}
