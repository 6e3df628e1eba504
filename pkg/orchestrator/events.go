package orchestrator

import (
	"context"
	"time"

	"github.com/mesh-intelligence/hera/pkg/types"
)

// Op names a write operation in events and metrics.
type Op string

// Operations.
const (
	OpCreate         Op = "create"
	OpUpdate         Op = "update"
	OpArchive        Op = "archive"
	OpRestore        Op = "restore"
	OpDelete         Op = "delete"
	OpTransition     Op = "transition"
	OpOverride       Op = "override"
	OpQuery          Op = "query"
	OpGet            Op = "get"
	OpTxnCreate      Op = "txn_create"
	OpTxnTransition  Op = "txn_transition"
	OpTxnUpdateLines Op = "txn_update_lines"
	OpTxnReverse     Op = "txn_reverse"
	OpTxnVoid        Op = "txn_void"
	OpTxnQuery       Op = "txn_query"
	OpTxnGet         Op = "txn_get"
)

// Event describes a confirmed write. Archived is set when a hard delete
// was turned into a tombstone.
type Event struct {
	Op            Op        `json:"op"`
	EntityType    string    `json:"entity_type,omitempty"`
	EntityID      string    `json:"entity_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Archived      bool      `json:"archived,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	At            time.Time `json:"at"`
}

// Publisher delivers change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

func entityEvent(op Op, e *types.Entity) Event {
	return Event{Op: op, EntityType: e.EntityType, EntityID: e.ID, Status: string(e.Status)}
}

func transactionEvent(op Op, t *types.Transaction) Event {
	return Event{Op: op, EntityType: t.TransactionType, TransactionID: t.ID, Status: t.Status}
}
