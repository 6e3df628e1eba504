package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/types"
)

const transactionColumns = `t.transaction_id, t.transaction_type, t.transaction_code, t.smart_code, t.transaction_date,
	t.total_amount, t.source_entity_id, t.target_entity_id, t.status, t.reversal_of, t.reason, t.created_at, t.updated_at`

// TransactionCreate inserts the transaction and its lines atomically. The
// stored total is the sum of line amounts.
func (b *Backend) TransactionCreate(ctx context.Context, in types.NewTransaction) (*types.Transaction, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := b.insertTransaction(ctx, tx, d, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	b.logger.Debug("transaction created", zap.String("transaction_id", id), zap.String("transaction_type", in.TransactionType))
	return getTransaction(ctx, db, d, id)
}

// TransactionGet returns the transaction with its lines in line order.
func (b *Backend) TransactionGet(ctx context.Context, id string) (*types.Transaction, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	return getTransaction(ctx, db, d, id)
}

// TransactionUpdate changes the status and/or replaces all lines. Lines of
// a finalized transaction cannot be replaced.
func (b *Backend) TransactionUpdate(ctx context.Context, id string, patch types.TransactionPatch) (*types.Transaction, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	now := b.now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := transactionStatus(ctx, tx, d, id)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(now)}
	if patch.Lines != nil {
		if (&types.Transaction{Status: current}).Finalized() {
			return nil, fmt.Errorf("transaction %s is %s: %w", id, current, types.ErrTransactionFinalized)
		}
		lines, err := numberLines(patch.Lines)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, d.rebind("DELETE FROM transaction_lines WHERE transaction_id = ?"), id); err != nil {
			return nil, fmt.Errorf("replacing lines of %s: %w", id, err)
		}
		if err := insertLines(ctx, tx, d, id, lines); err != nil {
			return nil, err
		}
		sets = append(sets, "total_amount = ?")
		args = append(args, types.SumLines(lines).String())
	}
	if patch.Status != nil {
		if *patch.Status == "" {
			return nil, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: "must not be empty"}
		}
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, d.rebind("UPDATE transactions SET "+strings.Join(sets, ", ")+" WHERE transaction_id = ?"), args...); err != nil {
		return nil, fmt.Errorf("updating transaction %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction %s: %w", id, err)
	}
	return getTransaction(ctx, db, d, id)
}

// TransactionCorrect records correction as a new transaction pointing back
// at id and moves the original to status, in one database transaction.
// It returns the correcting transaction.
func (b *Backend) TransactionCorrect(ctx context.Context, id string, status string, correction types.NewTransaction) (*types.Transaction, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	if status == "" {
		return nil, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: "must not be empty"}
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := transactionStatus(ctx, tx, d, id); err != nil {
		return nil, err
	}
	correction.ReversalOf = id
	newID, err := b.insertTransaction(ctx, tx, d, correction)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, d.rebind("UPDATE transactions SET status = ?, updated_at = ? WHERE transaction_id = ?"),
		status, formatTime(b.now()), id); err != nil {
		return nil, fmt.Errorf("updating transaction %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing correction of %s: %w", id, err)
	}
	b.logger.Debug("transaction corrected", zap.String("transaction_id", id), zap.String("status", status), zap.String("correction_id", newID))
	return getTransaction(ctx, db, d, newID)
}

// TransactionQuery lists transactions, most recent transaction date first.
// EntityID matches either party or any line entity.
func (b *Backend) TransactionQuery(ctx context.Context, q types.TransactionQuery) ([]*types.Transaction, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, &types.FieldError{Code: types.ErrInvalidFilter, Field: "limit", Msg: "limit and offset must not be negative"}
	}

	where := []string{"1 = 1"}
	var args []any
	if q.TransactionType != "" {
		where = append(where, "t.transaction_type = ?")
		args = append(args, q.TransactionType)
	}
	if len(q.Status) > 0 {
		where = append(where, "t.status IN ("+placeholders(len(q.Status))+")")
		for _, s := range q.Status {
			args = append(args, s)
		}
	}
	if q.EntityID != "" {
		where = append(where, `(t.source_entity_id = ? OR t.target_entity_id = ? OR EXISTS (
			SELECT 1 FROM transaction_lines l WHERE l.transaction_id = t.transaction_id AND l.entity_id = ?))`)
		args = append(args, q.EntityID, q.EntityID, q.EntityID)
	}
	bound, boundArgs := d.limitOffset(q.Limit, q.Offset)
	args = append(args, boundArgs...)

	query := "SELECT " + transactionColumns + " FROM transactions t WHERE " + strings.Join(where, " AND ") +
		" ORDER BY t.transaction_date DESC, t.created_at DESC, t.transaction_id" + bound
	rows, err := db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	out := []*types.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	for _, t := range out {
		if t.Lines, err = loadLines(ctx, db, d, t.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *Backend) insertTransaction(ctx context.Context, tx *sql.Tx, d dialect, in types.NewTransaction) (string, error) {
	if strings.TrimSpace(in.TransactionType) == "" {
		return "", &types.FieldError{Code: types.ErrInvalidName, Field: "transaction_type", Msg: "must not be empty"}
	}
	if err := checkSmartCode("smart_code", in.SmartCode); err != nil {
		return "", err
	}
	status := in.Status
	if status == "" {
		status = types.TxnStatusDraft
	}
	lines, err := numberLines(in.Lines)
	if err != nil {
		return "", err
	}
	now := b.now()
	date := in.TransactionDate
	if date.IsZero() {
		date = now
	}
	id := generateUUID()

	_, err = tx.ExecContext(ctx, d.rebind(
		`INSERT INTO transactions (transaction_id, transaction_type, transaction_code, smart_code, transaction_date,
		     total_amount, source_entity_id, target_entity_id, status, reversal_of, reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, in.TransactionType, nullString(in.TransactionCode), in.SmartCode, formatTime(date),
		types.SumLines(lines).String(), nullString(in.SourceEntityID), nullString(in.TargetEntityID),
		status, nullString(in.ReversalOf), nullString(in.Reason), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return "", &types.FieldError{Code: types.ErrInvalidID, Field: "transaction", Msg: "a referenced entity or transaction does not exist"}
		}
		return "", fmt.Errorf("inserting transaction: %w", err)
	}
	if err := insertLines(ctx, tx, d, id, lines); err != nil {
		return "", err
	}
	return id, nil
}

// numberLines assigns missing line numbers by position and rejects
// duplicates and untyped lines.
func numberLines(in []types.Line) ([]types.Line, error) {
	lines := make([]types.Line, len(in))
	seen := make(map[int]bool, len(in))
	for i, l := range in {
		if l.LineNumber == 0 {
			l.LineNumber = i + 1
		}
		if l.LineNumber < 0 || seen[l.LineNumber] {
			return nil, &types.FieldError{Code: types.ErrInvalidLine, Field: fmt.Sprintf("lines[%d]", i),
				Msg: fmt.Sprintf("line number %d is invalid or repeated", l.LineNumber)}
		}
		if l.LineType == "" {
			return nil, &types.FieldError{Code: types.ErrInvalidLine, Field: fmt.Sprintf("lines[%d]", i), Msg: "line_type is required"}
		}
		seen[l.LineNumber] = true
		lines[i] = l
	}
	return lines, nil
}

func insertLines(ctx context.Context, tx *sql.Tx, d dialect, txnID string, lines []types.Line) error {
	for _, l := range lines {
		_, err := tx.ExecContext(ctx, d.rebind(
			`INSERT INTO transaction_lines (transaction_id, line_number, line_type, entity_id, smart_code,
			     quantity, unit_amount, line_amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			txnID, l.LineNumber, l.LineType, nullString(l.EntityID), nullString(l.SmartCode),
			l.Quantity.String(), l.UnitAmount.String(), l.LineAmount.String(),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return &types.FieldError{Code: types.ErrInvalidID, Field: fmt.Sprintf("lines[%d]", l.LineNumber),
					Msg: fmt.Sprintf("entity %s does not exist", l.EntityID)}
			}
			return fmt.Errorf("inserting line %d: %w", l.LineNumber, err)
		}
	}
	return nil
}

func transactionStatus(ctx context.Context, q querier, d dialect, id string) (string, error) {
	var status string
	err := q.QueryRowContext(ctx, d.rebind("SELECT status FROM transactions WHERE transaction_id = ?"), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %s: %w", id, types.ErrTransactionNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading transaction %s: %w", id, err)
	}
	return status, nil
}

func getTransaction(ctx context.Context, q querier, d dialect, id string) (*types.Transaction, error) {
	row := q.QueryRowContext(ctx, d.rebind("SELECT "+transactionColumns+" FROM transactions t WHERE t.transaction_id = ?"), id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, types.ErrTransactionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if t.Lines, err = loadLines(ctx, q, d, id); err != nil {
		return nil, err
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*types.Transaction, error) {
	var (
		t                                  types.Transaction
		code, source, target, reversal, rs sql.NullString
		date, total, createdAt, updatedAt  string
	)
	err := row.Scan(&t.ID, &t.TransactionType, &code, &t.SmartCode, &date, &total,
		&source, &target, &t.Status, &reversal, &rs, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}
	t.TransactionCode, t.SourceEntityID, t.TargetEntityID = code.String, source.String, target.String
	t.ReversalOf, t.Reason = reversal.String, rs.String
	if t.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("transaction %s total_amount: %w", t.ID, err)
	}
	for _, ts := range []struct {
		dst *time.Time
		src string
	}{{&t.TransactionDate, date}, {&t.CreatedAt, createdAt}, {&t.UpdatedAt, updatedAt}} {
		if *ts.dst, err = parseTime(ts.src); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	return &t, nil
}

func loadLines(ctx context.Context, q querier, d dialect, txnID string) ([]types.Line, error) {
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT line_number, line_type, entity_id, smart_code, quantity, unit_amount, line_amount
		 FROM transaction_lines WHERE transaction_id = ? ORDER BY line_number`), txnID)
	if err != nil {
		return nil, fmt.Errorf("loading lines of %s: %w", txnID, err)
	}
	defer rows.Close()

	lines := []types.Line{}
	for rows.Next() {
		var (
			l                    types.Line
			entityID, sc         sql.NullString
			qty, unit, lineTotal string
		)
		if err := rows.Scan(&l.LineNumber, &l.LineType, &entityID, &sc, &qty, &unit, &lineTotal); err != nil {
			return nil, fmt.Errorf("scanning line of %s: %w", txnID, err)
		}
		l.EntityID, l.SmartCode = entityID.String, sc.String
		for _, a := range []struct {
			dst *decimal.Decimal
			src string
		}{{&l.Quantity, qty}, {&l.UnitAmount, unit}, {&l.LineAmount, lineTotal}} {
			if *a.dst, err = decimal.NewFromString(a.src); err != nil {
				return nil, fmt.Errorf("line %d of %s: %w", l.LineNumber, txnID, err)
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
