// Package sqlstore implements the backend service on SQL. SQLite is the
// default engine; Postgres is supported through lib/pq. Foreign keys are
// enforced by the database, so a hard delete of a referenced entity fails
// with a real referential conflict.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// DatabaseFile is the SQLite database name inside DataDir.
const DatabaseFile = "hera.db"

// Compile-time interface check.
var _ types.Store = (*Backend)(nil)

// Backend implements types.Store on a SQL database.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	dialect  dialect
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// NewBackend creates a new backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Attach opens the database described by config and creates the schema.
// For SQLite, DataDir is created if it does not exist and the database lives
// in DataDir/hera.db. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	var (
		db  *sql.DB
		err error
	)
	switch config.Backend {
	case types.BackendSQLite:
		dataDir := config.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return err
		}
		dsn := "file:" + filepath.Join(dataDir, DatabaseFile) +
			"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return err
		}
		// A single connection keeps the foreign_keys pragma in force and
		// serializes writers.
		db.SetMaxOpenConns(1)
	case types.BackendPostgres:
		db, err = sql.Open("postgres", config.DSN)
		if err != nil {
			return err
		}
	}

	if err := b.AttachDB(db, config); err != nil {
		db.Close()
		return err
	}
	return nil
}

// AttachDB attaches to an already opened database handle and creates the
// schema. The backend takes ownership of db and closes it on Detach.
func (b *Backend) AttachDB(db *sql.DB, config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	d, err := dialectFor(config.Backend)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	b.db = db
	b.dialect = d
	b.config = config
	b.attached = true
	b.logger.Debug("store attached", zap.String("backend", config.Backend), zap.String("data_dir", config.DataDir))
	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrDetached.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	db, _, err := b.handle()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// handle returns the database and dialect, or ErrDetached.
func (b *Backend) handle() (*sql.DB, dialect, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, dialect{}, types.ErrDetached
	}
	return b.db, b.dialect, nil
}

// generateUUID generates a new UUID v7 for row IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// timeLayout is fixed width so that text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
