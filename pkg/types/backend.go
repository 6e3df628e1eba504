package types

import (
	"context"
	"time"
)

// Backend is the contract of the remote service that persists entities and
// transactions and evaluates referential integrity. The orchestrator treats
// it as opaque: every call is a network round-trip that may fail or be slow.
//
// Implementations return errors matching the kinds in this package. A hard
// delete refused because other rows still reference the entity must match
// ErrConflict.
type Backend interface {
	EntityCreate(ctx context.Context, in NewEntity) (*Entity, error)
	EntityGet(ctx context.Context, id string) (*Entity, error)
	EntityUpdate(ctx context.Context, id string, patch EntityPatch) (*Entity, error)
	EntityDelete(ctx context.Context, id string, opts DeleteOptions) error
	EntityQuery(ctx context.Context, q EntityQuery) ([]*Entity, error)

	TransactionCreate(ctx context.Context, in NewTransaction) (*Transaction, error)
	TransactionGet(ctx context.Context, id string) (*Transaction, error)
	TransactionUpdate(ctx context.Context, id string, patch TransactionPatch) (*Transaction, error)
	// TransactionCorrect atomically records correction and moves the
	// original transaction to status.
	TransactionCorrect(ctx context.Context, id string, status string, correction NewTransaction) (*Transaction, error)
	TransactionQuery(ctx context.Context, q TransactionQuery) ([]*Transaction, error)
}

// NewEntity is the atomic create payload: header, dynamic fields and
// relationships persist together or not at all.
type NewEntity struct {
	EntityType    string                       `json:"entity_type"`
	EntityName    string                       `json:"entity_name"`
	EntityCode    string                       `json:"entity_code,omitempty"`
	SmartCode     string                       `json:"smart_code"`
	Status        Status                       `json:"status,omitempty"`
	DynamicFields []DynamicFieldValue          `json:"dynamic_fields"`
	Relationships map[string][]RelationshipRef `json:"relationships"`
}

// RelationshipRef is an edge in a write payload.
type RelationshipRef struct {
	ToEntityID string `json:"to_entity_id"`
	SmartCode  string `json:"smart_code"`
}

// EntityPatch is the atomic update payload. Nil members are untouched.
// Dynamic replaces whole field values; Relationships replaces the full edge
// set of each listed type.
type EntityPatch struct {
	EntityName    *string                      `json:"entity_name,omitempty"`
	EntityCode    *string                      `json:"entity_code,omitempty"`
	Status        *Status                      `json:"status,omitempty"`
	Dynamic       []DynamicFieldValue          `json:"dynamic,omitempty"`
	Relationships map[string][]RelationshipRef `json:"relationships,omitempty"`
}

// Empty reports whether the patch touches nothing.
func (p EntityPatch) Empty() bool {
	return p.EntityName == nil && p.EntityCode == nil && p.Status == nil &&
		len(p.Dynamic) == 0 && p.Relationships == nil
}

// DeleteOptions controls a backend delete.
type DeleteOptions struct {
	HardDelete bool   `json:"hard_delete"`
	Cascade    bool   `json:"cascade"`
	Reason     string `json:"reason,omitempty"`
}

// EntityQuery filters entities of one type. RelFilters maps a relationship
// type to a required target id; all entries must match.
type EntityQuery struct {
	EntityType string            `json:"entity_type"`
	Status     []Status          `json:"status,omitempty"`
	Search     string            `json:"search,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
	RelFilters map[string]string `json:"filter_rel,omitempty"`
}

// NewTransaction is the create payload for a transaction and its lines.
type NewTransaction struct {
	TransactionType string    `json:"transaction_type"`
	TransactionCode string    `json:"transaction_code,omitempty"`
	SmartCode       string    `json:"smart_code"`
	TransactionDate time.Time `json:"transaction_date"`
	SourceEntityID  string    `json:"source_entity_id,omitempty"`
	TargetEntityID  string    `json:"target_entity_id,omitempty"`
	Status          string    `json:"status"`
	ReversalOf      string    `json:"reversal_of,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Lines           []Line    `json:"lines"`
}

// TransactionPatch updates status and/or replaces all lines.
type TransactionPatch struct {
	Status *string `json:"status,omitempty"`
	Lines  []Line  `json:"lines,omitempty"`
}

// TransactionQuery filters transactions.
type TransactionQuery struct {
	TransactionType string   `json:"transaction_type,omitempty"`
	Status          []string `json:"status,omitempty"`
	EntityID        string   `json:"entity_id,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	Offset          int      `json:"offset,omitempty"`
}
