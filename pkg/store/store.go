// Package store provides the public API for the SQL backend service.
// This package exposes factory functions for creating stores while keeping
// implementation details internal.
//
// Example:
//
//	s, err := store.Open(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".hera",
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer s.Detach()
package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/internal/logging"
	"github.com/mesh-intelligence/hera/internal/sqlstore"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// New creates a new SQL store. The store is not attached; call Attach with
// a Config to initialize.
func New(logger *zap.Logger) types.Store {
	return sqlstore.NewBackend(sqlstore.WithLogger(logging.OrNop(logger)))
}

// Open creates a store and attaches it to config.
func Open(config types.Config, logger *zap.Logger) (types.Store, error) {
	s := New(logger)
	if err := s.Attach(config); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshotter is implemented by stores that can dump and load JSONL
// snapshots of every table.
type Snapshotter interface {
	ExportJSONL(ctx context.Context, dir string) (sqlstore.SnapshotStats, error)
	ImportJSONL(ctx context.Context, dir string) (sqlstore.SnapshotStats, error)
}

// Compile-time interface check.
var _ Snapshotter = (*sqlstore.Backend)(nil)
