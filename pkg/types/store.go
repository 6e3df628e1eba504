package types

import "errors"

// Store is a Backend with an explicit lifecycle. Callers attach to a
// database, run operations, and detach when done.
type Store interface {
	Backend

	// Attach connects the store to the database described by config and
	// creates the schema if needed. Returns ErrAlreadyAttached if called
	// while already attached.
	Attach(config Config) error

	// Detach releases database resources. Idempotent: multiple calls succeed.
	// After Detach, operations return ErrDetached.
	Detach() error
}

// Store lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrDetached        = newCode(ErrTransport, "StoreDetached")
)
