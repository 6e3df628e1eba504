package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/types"
)

// CreateTransaction validates and records a transaction. A line whose
// amount is zero gets quantity times unit amount; the total is always the
// sum of line amounts. The status defaults to the workflow's initial state.
func (o *Orchestrator) CreateTransaction(ctx context.Context, in types.NewTransaction) (*types.Transaction, error) {
	var errs types.ValidationErrors
	in.TransactionType = strings.TrimSpace(in.TransactionType)
	if in.TransactionType == "" {
		errs = append(errs, &types.FieldError{Code: types.ErrInvalidName, Field: "transaction_type", Msg: "must not be empty"})
	}
	if err := checkSmartCode("smart_code", in.SmartCode); err != nil {
		errs = append(errs, err)
	}
	if in.Status == "" {
		in.Status = lifecycle.Transaction.Initial()
	}
	if !lifecycle.Transaction.Known(in.Status) {
		errs = append(errs, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: fmt.Sprintf("unknown status %q", in.Status)})
	}
	if in.TransactionDate.IsZero() {
		in.TransactionDate = o.now()
	}
	lines, lineErrs := computeLines(in.Lines)
	errs = append(errs, lineErrs...)
	if err := errs.Err(); err != nil {
		return nil, o.record(OpTxnCreate, in.TransactionType, err)
	}
	in.Lines = lines

	t, err := o.backend.TransactionCreate(ctx, in)
	if err != nil {
		return nil, o.record(OpTxnCreate, in.TransactionType, classify(err))
	}
	o.publish(ctx, transactionEvent(OpTxnCreate, t))
	o.logger.Debug("transaction created", zap.String("transaction_id", t.ID), zap.String("total", t.TotalAmount.String()))
	return t, o.record(OpTxnCreate, t.TransactionType, nil)
}

// GetTransaction fetches a transaction with its lines.
func (o *Orchestrator) GetTransaction(ctx context.Context, id string) (*types.Transaction, error) {
	t, err := o.backend.TransactionGet(ctx, id)
	if err != nil {
		return nil, o.record(OpTxnGet, "", classify(err))
	}
	return t, o.record(OpTxnGet, t.TransactionType, nil)
}

// QueryTransactions lists transactions, most recent first.
func (o *Orchestrator) QueryTransactions(ctx context.Context, q types.TransactionQuery) ([]*types.Transaction, error) {
	for _, st := range q.Status {
		if !lifecycle.Transaction.Known(st) {
			return nil, o.record(OpTxnQuery, q.TransactionType,
				&types.FieldError{Code: types.ErrInvalidFilter, Field: "status", Msg: fmt.Sprintf("unknown status %q", st)})
		}
	}
	list, err := o.backend.TransactionQuery(ctx, q)
	return list, o.record(OpTxnQuery, q.TransactionType, classify(err))
}

// TransitionTransaction moves a transaction along the transaction
// workflow. Reversal and void write a correcting transaction and are
// delegated to ReverseTransaction and VoidTransaction.
func (o *Orchestrator) TransitionTransaction(ctx context.Context, id, to, reason string) (*types.Transaction, error) {
	switch to {
	case types.TxnStatusReversed:
		return o.ReverseTransaction(ctx, id, reason)
	case types.TxnStatusVoided:
		return o.VoidTransaction(ctx, id, reason)
	}
	current, err := o.backend.TransactionGet(ctx, id)
	if err != nil {
		return nil, o.record(OpTxnTransition, "", classify(err))
	}
	if current.Status == to && lifecycle.Transaction.Known(to) && !lifecycle.Transaction.Terminal(to) {
		return current, o.record(OpTxnTransition, current.TransactionType, nil)
	}
	if err := lifecycle.Transaction.Validate(current.Status, to); err != nil {
		return nil, o.record(OpTxnTransition, current.TransactionType, err)
	}
	t, err := o.backend.TransactionUpdate(ctx, id, types.TransactionPatch{Status: &to})
	if err != nil {
		return nil, o.record(OpTxnTransition, current.TransactionType, classify(err))
	}
	o.publish(ctx, transactionEvent(OpTxnTransition, t))
	return t, o.record(OpTxnTransition, t.TransactionType, nil)
}

// UpdateTransactionLines replaces all lines of a draft or pending
// transaction and recomputes its total.
func (o *Orchestrator) UpdateTransactionLines(ctx context.Context, id string, lines []types.Line) (*types.Transaction, error) {
	current, err := o.backend.TransactionGet(ctx, id)
	if err != nil {
		return nil, o.record(OpTxnUpdateLines, "", classify(err))
	}
	if current.Finalized() {
		return nil, o.record(OpTxnUpdateLines, current.TransactionType,
			fmt.Errorf("transaction %s is %s: %w", id, current.Status, types.ErrTransactionFinalized))
	}
	computed, errs := computeLines(lines)
	if err := errs.Err(); err != nil {
		return nil, o.record(OpTxnUpdateLines, current.TransactionType, err)
	}
	t, err := o.backend.TransactionUpdate(ctx, id, types.TransactionPatch{Lines: computed})
	if err != nil {
		return nil, o.record(OpTxnUpdateLines, current.TransactionType, classify(err))
	}
	o.publish(ctx, transactionEvent(OpTxnUpdateLines, t))
	return t, o.record(OpTxnUpdateLines, t.TransactionType, nil)
}

// ReverseTransaction records a mirror of a completed transaction with
// negated quantities and amounts and marks the original reversed. It
// returns the reversing transaction.
func (o *Orchestrator) ReverseTransaction(ctx context.Context, id, reason string) (*types.Transaction, error) {
	return o.correct(ctx, OpTxnReverse, id, types.TxnStatusReversed, "REV", reason)
}

// VoidTransaction is ReverseTransaction for a transaction entered in
// error; the original is marked voided.
func (o *Orchestrator) VoidTransaction(ctx context.Context, id, reason string) (*types.Transaction, error) {
	return o.correct(ctx, OpTxnVoid, id, types.TxnStatusVoided, "VOID", reason)
}

func (o *Orchestrator) correct(ctx context.Context, op Op, id, status, suffix, reason string) (*types.Transaction, error) {
	current, err := o.backend.TransactionGet(ctx, id)
	if err != nil {
		return nil, o.record(op, "", classify(err))
	}
	if err := lifecycle.Transaction.Validate(current.Status, status); err != nil {
		return nil, o.record(op, current.TransactionType, err)
	}

	mirror := types.NewTransaction{
		TransactionType: current.TransactionType,
		SmartCode:       current.SmartCode,
		TransactionDate: o.now(),
		SourceEntityID:  current.SourceEntityID,
		TargetEntityID:  current.TargetEntityID,
		Status:          types.TxnStatusCompleted,
		Reason:          reason,
		Lines:           make([]types.Line, len(current.Lines)),
	}
	if current.TransactionCode != "" {
		mirror.TransactionCode = current.TransactionCode + "-" + suffix
	}
	for i, l := range current.Lines {
		l.Quantity = l.Quantity.Neg()
		l.LineAmount = l.LineAmount.Neg()
		mirror.Lines[i] = l
	}

	t, err := o.backend.TransactionCorrect(ctx, id, status, mirror)
	if err != nil {
		return nil, o.record(op, current.TransactionType, classify(err))
	}
	o.publish(ctx, Event{Op: op, EntityType: current.TransactionType, TransactionID: id, Status: status})
	o.logger.Info("transaction corrected", zap.String("transaction_id", id), zap.String("status", status),
		zap.String("correction_id", t.ID), zap.String("reason", reason))
	return t, o.record(op, current.TransactionType, nil)
}

// computeLines fills omitted line amounts and checks line types.
func computeLines(in []types.Line) ([]types.Line, types.ValidationErrors) {
	var errs types.ValidationErrors
	out := make([]types.Line, len(in))
	for i, l := range in {
		if strings.TrimSpace(l.LineType) == "" {
			errs = append(errs, &types.FieldError{Code: types.ErrInvalidLine, Field: fmt.Sprintf("lines[%d]", i), Msg: "line_type is required"})
		}
		if l.LineAmount.IsZero() {
			l.LineAmount = l.Quantity.Mul(l.UnitAmount)
		}
		if l.SmartCode != "" {
			if err := checkSmartCode(fmt.Sprintf("lines[%d].smart_code", i), l.SmartCode); err != nil {
				errs = append(errs, err)
			}
		}
		out[i] = l
	}
	return out, errs
}
