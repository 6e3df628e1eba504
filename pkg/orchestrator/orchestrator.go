// Package orchestrator implements the CRUD protocol over a remote backend:
// schema-checked atomic writes, the conflict-safe delete, workflow
// transitions, transactions and a single cache reconciliation policy.
//
// Every write is validated against the preset registry before the backend
// is called. A write that fails leaves the cache untouched; a write that
// succeeds is merged into the cache by id, published as a change event and
// counted in the operation metrics.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/ctxutil"
	"github.com/mesh-intelligence/hera/pkg/cache"
	"github.com/mesh-intelligence/hera/pkg/preset"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// Orchestrator coordinates the registry, the backend and the cache. It is
// safe for concurrent use when its backend and cache are.
type Orchestrator struct {
	backend   types.Backend
	registry  *preset.Registry
	cache     cache.Cache
	logger    *zap.Logger
	metrics   *Metrics
	publisher Publisher
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the read-model cache. The default is an in-memory cache.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublisher sets the change event publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithClock overrides the time source used for correction dates.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an orchestrator over backend using the presets in registry.
func New(backend types.Backend, registry *preset.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		registry:  registry,
		cache:     cache.NewMemory(),
		logger:    zap.NewNop(),
		publisher: NopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the preset registry.
func (o *Orchestrator) Registry() *preset.Registry { return o.registry }

// Cache returns the read-model cache.
func (o *Orchestrator) Cache() cache.Cache { return o.cache }

// authorize checks the role carried by ctx against the preset. A context
// without a role is not checked.
func (o *Orchestrator) authorize(ctx context.Context, s *preset.EntitySchema, a preset.Action) error {
	role, ok := ctxutil.RoleFromContext(ctx)
	if !ok {
		return nil
	}
	if !s.Permissions.Allows(a, role) {
		return &types.FieldError{
			Code:  types.ErrPermissionDenied,
			Field: s.EntityType,
			Msg:   "role " + role + " may not " + string(a),
		}
	}
	return nil
}

// merge reconciles a confirmed backend result into the cache. A result
// older than the cached entry, such as the late completion of an earlier
// request, is dropped. Cache failures are logged; the backend write already
// happened.
func (o *Orchestrator) merge(ctx context.Context, e *types.Entity) {
	if e == nil {
		return
	}
	if cached, ok, err := o.cache.Get(ctx, e.ID); err == nil && ok && cached.UpdatedAt.After(e.UpdatedAt) {
		o.logger.Debug("stale result not merged", zap.String("entity_id", e.ID),
			zap.Time("cached", cached.UpdatedAt), zap.Time("result", e.UpdatedAt))
		return
	}
	if err := o.cache.Merge(ctx, e); err != nil {
		o.logger.Warn("cache merge failed", zap.String("entity_id", e.ID), zap.Error(err))
	}
}

func (o *Orchestrator) forget(ctx context.Context, id string) {
	if err := o.cache.Remove(ctx, id); err != nil {
		o.logger.Warn("cache remove failed", zap.String("entity_id", id), zap.Error(err))
	}
}

// record counts an operation and returns err unchanged.
func (o *Orchestrator) record(op Op, entityType string, err error) error {
	o.metrics.observe(op, entityType, err)
	return err
}

// publish emits a change event. Failures are logged, never returned.
func (o *Orchestrator) publish(ctx context.Context, ev Event) {
	ev.Actor = ctxutil.ActorFromContext(ctx)
	if ev.At.IsZero() {
		ev.At = o.now()
	}
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.logger.Warn("publishing change event failed",
			zap.String("op", string(ev.Op)), zap.String("entity_id", ev.EntityID), zap.Error(err))
	}
}
