// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// RoleKey is the context key for the acting role.
type RoleKey struct{}

// ActorKey is the context key for the acting user id.
type ActorKey struct{}

// WithRole returns a context carrying the role permission checks run against.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey{}, role)
}

// RoleFromContext returns the role from context and whether one was set.
func RoleFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(RoleKey{}).(string)
	return v, ok
}

// WithActorID returns a context with the actor ID embedded.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the actor ID from context, or empty string if not set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok {
		return v
	}
	return ""
}
