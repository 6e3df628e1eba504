package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses. Completed transactions are finalized: their lines
// change only through a correcting transaction.
const (
	TxnStatusDraft     = "draft"
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusCancelled = "cancelled"
	TxnStatusReversed  = "reversed"
	TxnStatusVoided    = "voided"
)

// Transaction is a business event between two parties with ordered lines.
type Transaction struct {
	ID              string          `json:"id"`
	TransactionType string          `json:"transaction_type"`
	TransactionCode string          `json:"transaction_code,omitempty"`
	SmartCode       string          `json:"smart_code"`
	TransactionDate time.Time       `json:"transaction_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	SourceEntityID  string          `json:"source_entity_id,omitempty"`
	TargetEntityID  string          `json:"target_entity_id,omitempty"`
	Status          string          `json:"status"`
	ReversalOf      string          `json:"reversal_of,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Lines           []Line          `json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Finalized reports whether the transaction's lines are immutable.
func (t *Transaction) Finalized() bool {
	return t.Status != TxnStatusDraft && t.Status != TxnStatusPending
}

// Line is one item of a transaction.
type Line struct {
	LineNumber int             `json:"line_number"`
	LineType   string          `json:"line_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	SmartCode  string          `json:"smart_code,omitempty"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
	LineAmount decimal.Decimal `json:"line_amount"`
}

// SumLines returns the sum of line amounts.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineAmount)
	}
	return total
}
