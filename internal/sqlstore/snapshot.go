package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// snapshotTables maps JSONL files to tables and columns. The order matters:
// tables with foreign keys load after the tables they reference.
var snapshotTables = []struct {
	file    string
	table   string
	columns []string
	order   string
}{
	{"entities.jsonl", entitiesTable,
		[]string{"entity_id", "entity_type", "entity_name", "entity_code", "smart_code", "status", "created_at", "updated_at"},
		"created_at, entity_id"},
	{"dynamic_data.jsonl", dynamicTable,
		[]string{"entity_id", "field_name", "field_type", "smart_code", "field_value_text", "field_value_number",
			"field_value_boolean", "field_value_date", "field_value_json", "updated_at"},
		"entity_id, field_name"},
	{"relationships.jsonl", relationshipTable,
		[]string{"relationship_id", "from_entity_id", "relationship_type", "to_entity_id", "smart_code", "ordinal", "created_at"},
		"from_entity_id, relationship_type, ordinal"},
	{"transactions.jsonl", transactionsTable,
		[]string{"transaction_id", "transaction_type", "transaction_code", "smart_code", "transaction_date", "total_amount",
			"source_entity_id", "target_entity_id", "status", "reversal_of", "reason", "created_at", "updated_at"},
		"created_at, transaction_id"},
	{"transaction_lines.jsonl", linesTable,
		[]string{"transaction_id", "line_number", "line_type", "entity_id", "smart_code", "quantity", "unit_amount", "line_amount"},
		"transaction_id, line_number"},
}

// SnapshotFiles lists the JSONL files a snapshot directory holds.
func SnapshotFiles() []string {
	out := make([]string, len(snapshotTables))
	for i, m := range snapshotTables {
		out[i] = m.file
	}
	return out
}

// SnapshotStats counts rows per table written or loaded by a snapshot
// operation, and rows skipped on import.
type SnapshotStats struct {
	Rows    map[string]int
	Skipped map[string]int
}

// ExportJSONL writes every table to dir, one JSON object per row. Each file
// is replaced atomically.
func (b *Backend) ExportJSONL(ctx context.Context, dir string) (SnapshotStats, error) {
	stats := SnapshotStats{Rows: map[string]int{}, Skipped: map[string]int{}}
	db, d, err := b.handle()
	if err != nil {
		return stats, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return stats, err
	}

	for _, m := range snapshotTables {
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(m.columns, ", "), m.table, m.order)
		rows, err := db.QueryContext(ctx, d.rebind(query))
		if err != nil {
			return stats, fmt.Errorf("reading %s: %w", m.table, err)
		}
		records, err := rowsToJSON(rows, m.columns)
		rows.Close()
		if err != nil {
			return stats, fmt.Errorf("encoding %s: %w", m.table, err)
		}
		if err := writeJSONL(filepath.Join(dir, m.file), records); err != nil {
			return stats, fmt.Errorf("writing %s: %w", m.file, err)
		}
		stats.Rows[m.table] = len(records)
	}
	b.logger.Info("snapshot exported", zap.String("dir", dir), zap.Any("rows", stats.Rows))
	return stats, nil
}

func rowsToJSON(rows *sql.Rows, columns []string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		obj := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := vals[i].([]byte); ok {
				obj[col] = string(b)
				continue
			}
			obj[col] = vals[i]
		}
		rec, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ImportJSONL replaces the contents of every table with the JSONL files in
// dir. Loading is transactional: all files load or the database is left
// unchanged. Malformed lines and rows that violate a constraint are skipped
// and counted; unknown fields are ignored.
func (b *Backend) ImportJSONL(ctx context.Context, dir string) (SnapshotStats, error) {
	stats := SnapshotStats{Rows: map[string]int{}, Skipped: map[string]int{}}
	db, d, err := b.handle()
	if err != nil {
		return stats, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for i := len(snapshotTables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+snapshotTables[i].table); err != nil {
			return stats, fmt.Errorf("clearing %s: %w", snapshotTables[i].table, err)
		}
	}

	for _, m := range snapshotTables {
		records, malformed, err := readJSONL(filepath.Join(dir, m.file))
		if err != nil {
			return stats, fmt.Errorf("reading %s: %w", m.file, err)
		}
		loaded, skipped, err := insertRecords(ctx, tx, d, m.table, m.columns, records)
		if err != nil {
			return stats, fmt.Errorf("loading %s into %s: %w", m.file, m.table, err)
		}
		stats.Rows[m.table] = loaded
		stats.Skipped[m.table] = skipped + malformed
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("committing load transaction: %w", err)
	}
	b.logger.Info("snapshot imported", zap.String("dir", dir), zap.Any("rows", stats.Rows), zap.Any("skipped", stats.Skipped))
	return stats, nil
}

// insertRecords inserts parsed JSONL records into a table. Only columns
// listed in the mapping are extracted. Each row runs under a savepoint so
// that a rejected row does not abort the enclosing transaction.
func insertRecords(ctx context.Context, tx *sql.Tx, d dialect, table string, columns []string, records []json.RawMessage) (int, int, error) {
	insertSQL := d.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns))))

	loaded, skipped := 0, 0
	for _, rec := range records {
		dec := json.NewDecoder(bytes.NewReader(rec))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			skipped++
			continue
		}

		args := make([]any, len(columns))
		for i, col := range columns {
			switch v := obj[col].(type) {
			case json.Number:
				args[i] = v.String()
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					args[i] = nil
					continue
				}
				args[i] = string(b)
			default:
				args[i] = v
			}
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT snapshot_row"); err != nil {
			return loaded, skipped, err
		}
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT snapshot_row"); rbErr != nil {
				return loaded, skipped, rbErr
			}
			skipped++
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT snapshot_row"); err != nil {
			return loaded, skipped, err
		}
		loaded++
	}
	return loaded, skipped, nil
}
