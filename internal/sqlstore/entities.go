package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/smartcode"
	"github.com/mesh-intelligence/hera/pkg/types"
)

const entityColumns = "e.entity_id, e.entity_type, e.entity_name, e.entity_code, e.smart_code, e.status, e.created_at, e.updated_at"

// EntityCreate inserts the header, dynamic fields and relationships in one
// database transaction and returns the stored entity.
func (b *Backend) EntityCreate(ctx context.Context, in types.NewEntity) (*types.Entity, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.EntityType) == "" {
		return nil, &types.FieldError{Code: types.ErrInvalidName, Field: "entity_type", Msg: "must not be empty"}
	}
	if strings.TrimSpace(in.EntityName) == "" {
		return nil, &types.FieldError{Code: types.ErrInvalidName, Field: "entity_name", Msg: "must not be empty"}
	}
	if err := checkSmartCode("smart_code", in.SmartCode); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = types.StatusActive
	}
	if !status.Valid() {
		return nil, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: string(status)}
	}

	now := b.now()
	id := generateUUID()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, d.rebind(
		`INSERT INTO entities (entity_id, entity_type, entity_name, entity_code, smart_code, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, in.EntityType, in.EntityName, nullString(in.EntityCode), in.SmartCode, string(status),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting entity: %w", err)
	}
	for _, f := range in.DynamicFields {
		if err := insertField(ctx, tx, d, id, f, now); err != nil {
			return nil, err
		}
	}
	for _, relType := range sortedKeys(in.Relationships) {
		if err := insertEdges(ctx, tx, d, id, relType, in.Relationships[relType], now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entity: %w", err)
	}

	b.logger.Debug("entity created", zap.String("entity_id", id), zap.String("entity_type", in.EntityType))
	return getEntity(ctx, db, d, id)
}

// EntityGet returns the entity with its fields and resolved relationships.
func (b *Backend) EntityGet(ctx context.Context, id string) (*types.Entity, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, &types.FieldError{Code: types.ErrInvalidID, Field: "id", Msg: "must not be empty"}
	}
	return getEntity(ctx, db, d, id)
}

// EntityUpdate applies patch atomically. Dynamic values replace whole
// fields; relationship types listed in the patch have their edge set
// replaced. A deleted entity cannot be updated.
func (b *Backend) EntityUpdate(ctx context.Context, id string, patch types.EntityPatch) (*types.Entity, error) {
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

	current, err := currentStatus(ctx, tx, d, id)
	if err != nil {
		return nil, err
	}
	if current == types.StatusDeleted {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrEntityAlreadyDeleted)
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(now)}
	if patch.EntityName != nil {
		if strings.TrimSpace(*patch.EntityName) == "" {
			return nil, &types.FieldError{Code: types.ErrInvalidName, Field: "entity_name", Msg: "must not be empty"}
		}
		sets = append(sets, "entity_name = ?")
		args = append(args, *patch.EntityName)
	}
	if patch.EntityCode != nil {
		sets = append(sets, "entity_code = ?")
		args = append(args, nullString(*patch.EntityCode))
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, &types.FieldError{Code: types.ErrInvalidStatus, Field: "status", Msg: string(*patch.Status)}
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, d.rebind("UPDATE entities SET "+strings.Join(sets, ", ")+" WHERE entity_id = ?"), args...); err != nil {
		return nil, fmt.Errorf("updating entity %s: %w", id, err)
	}

	for _, f := range patch.Dynamic {
		if _, err := tx.ExecContext(ctx, d.rebind("DELETE FROM dynamic_data WHERE entity_id = ? AND field_name = ?"), id, f.Name); err != nil {
			return nil, fmt.Errorf("replacing field %s: %w", f.Name, err)
		}
		if err := insertField(ctx, tx, d, id, f, now); err != nil {
			return nil, err
		}
	}
	for _, relType := range sortedKeys(patch.Relationships) {
		if _, err := tx.ExecContext(ctx, d.rebind("DELETE FROM relationships WHERE from_entity_id = ? AND relationship_type = ?"), id, relType); err != nil {
			return nil, fmt.Errorf("replacing relationship %s: %w", relType, err)
		}
		if err := insertEdges(ctx, tx, d, id, relType, patch.Relationships[relType], now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entity %s: %w", id, err)
	}
	return getEntity(ctx, db, d, id)
}

// EntityDelete archives the entity, or with HardDelete removes it. A hard
// delete of an entity still referenced by relationships of other entities,
// transactions or transaction lines fails with ErrReferenced. The entity's
// own fields and outgoing relationships are always removed with it, so
// Cascade does not change the outcome.
func (b *Backend) EntityDelete(ctx context.Context, id string, opts types.DeleteOptions) error {
	if !opts.HardDelete {
		archived := types.StatusArchived
		_, err := b.EntityUpdate(ctx, id, types.EntityPatch{Status: &archived})
		return err
	}

	db, d, err := b.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := currentStatus(ctx, tx, d, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, d.rebind("DELETE FROM entities WHERE entity_id = ?"), id); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("entity %s is referenced by other records (%v): %w", id, err, types.ErrReferenced)
		}
		return fmt.Errorf("deleting entity %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("entity %s is referenced by other records (%v): %w", id, err, types.ErrReferenced)
		}
		return fmt.Errorf("committing delete of %s: %w", id, err)
	}
	b.logger.Debug("entity hard deleted", zap.String("entity_id", id))
	return nil
}

// EntityQuery lists entities of one type, newest first. Without a status
// filter, deleted tombstones are excluded.
func (b *Backend) EntityQuery(ctx context.Context, q types.EntityQuery) ([]*types.Entity, error) {
	db, d, err := b.handle()
	if err != nil {
		return nil, err
	}
	if q.EntityType == "" {
		return nil, &types.FieldError{Code: types.ErrInvalidFilter, Field: "entity_type", Msg: "is required"}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, &types.FieldError{Code: types.ErrInvalidFilter, Field: "limit", Msg: "limit and offset must not be negative"}
	}

	where := []string{"e.entity_type = ?"}
	args := []any{q.EntityType}
	if len(q.Status) == 0 {
		where = append(where, "e.status <> ?")
		args = append(args, string(types.StatusDeleted))
	} else {
		where = append(where, "e.status IN ("+placeholders(len(q.Status))+")")
		for _, s := range q.Status {
			args = append(args, string(s))
		}
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, "(LOWER(e.entity_name) LIKE ? OR LOWER(COALESCE(e.entity_code, '')) LIKE ?)")
		args = append(args, like, like)
	}
	for _, relType := range sortedKeys(q.RelFilters) {
		where = append(where, `EXISTS (SELECT 1 FROM relationships r
			WHERE r.from_entity_id = e.entity_id AND r.relationship_type = ? AND r.to_entity_id = ?)`)
		args = append(args, relType, q.RelFilters[relType])
	}
	bound, boundArgs := d.limitOffset(q.Limit, q.Offset)
	args = append(args, boundArgs...)

	query := "SELECT " + entityColumns + " FROM entities e WHERE " + strings.Join(where, " AND ") +
		" ORDER BY e.created_at DESC, e.entity_id" + bound

	rows, err := db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	// Hydrate after the cursor is closed; SQLite runs on a single connection.
	for _, e := range out {
		if err := hydrateEntity(ctx, db, d, e); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []*types.Entity{}
	}
	return out, nil
}

func currentStatus(ctx context.Context, q querier, d dialect, id string) (types.Status, error) {
	var status string
	err := q.QueryRowContext(ctx, d.rebind("SELECT status FROM entities WHERE entity_id = ?"), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("entity %s: %w", id, types.ErrEntityNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading entity %s: %w", id, err)
	}
	return types.Status(status), nil
}

func getEntity(ctx context.Context, q querier, d dialect, id string) (*types.Entity, error) {
	row := q.QueryRowContext(ctx, d.rebind("SELECT "+entityColumns+" FROM entities e WHERE e.entity_id = ?"), id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrEntityNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := hydrateEntity(ctx, q, d, e); err != nil {
		return nil, err
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		e                    types.Entity
		code                 sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.EntityType, &e.EntityName, &code, &e.SmartCode, &status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning entity: %w", err)
	}
	e.EntityCode = code.String
	e.Status = types.Status(status)
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("entity %s created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("entity %s updated_at: %w", e.ID, err)
	}
	return &e, nil
}

// hydrateEntity loads dynamic fields and relationships into e.
func hydrateEntity(ctx context.Context, q querier, d dialect, e *types.Entity) error {
	var err error
	if e.DynamicFields, err = loadFields(ctx, q, d, e.ID); err != nil {
		return err
	}
	if e.Relationships, err = loadRelationships(ctx, q, d, e.ID); err != nil {
		return err
	}
	return nil
}

func loadFields(ctx context.Context, q querier, d dialect, entityID string) (map[string]types.DynamicFieldValue, error) {
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT field_name, field_type, smart_code, field_value_text, field_value_number,
		        field_value_boolean, field_value_date, field_value_json
		 FROM dynamic_data WHERE entity_id = ? ORDER BY field_name`), entityID)
	if err != nil {
		return nil, fmt.Errorf("loading fields of %s: %w", entityID, err)
	}
	defer rows.Close()

	out := make(map[string]types.DynamicFieldValue)
	for rows.Next() {
		var (
			name, ftype           string
			sc, text, date, jsonV sql.NullString
			num                   sql.NullFloat64
			boolean               sql.NullBool
		)
		if err := rows.Scan(&name, &ftype, &sc, &text, &num, &boolean, &date, &jsonV); err != nil {
			return nil, fmt.Errorf("scanning field of %s: %w", entityID, err)
		}
		f := types.DynamicFieldValue{Name: name, Type: fields.FieldType(ftype), SmartCode: sc.String}
		switch f.Type {
		case fields.TypeText:
			if text.Valid {
				f.Value = fields.TextField{V: text.String}
			}
		case fields.TypeNumber:
			if num.Valid {
				f.Value = fields.NumberField{V: num.Float64}
			}
		case fields.TypeBoolean:
			if boolean.Valid {
				f.Value = fields.BooleanField{V: boolean.Bool}
			}
		case fields.TypeDate:
			if date.Valid {
				t, err := parseTime(date.String)
				if err != nil {
					return nil, fmt.Errorf("field %s of %s: %w", name, entityID, err)
				}
				f.Value = fields.DateField{V: t}
			}
		case fields.TypeJSON:
			if jsonV.Valid {
				f.Value = fields.JSONField{V: json.RawMessage(jsonV.String)}
			}
		}
		out[name] = f
	}
	return out, rows.Err()
}

func loadRelationships(ctx context.Context, q querier, d dialect, entityID string) (map[string][]types.RelationshipInstance, error) {
	rows, err := q.QueryContext(ctx, d.rebind(
		`SELECT r.relationship_id, r.relationship_type, r.to_entity_id, r.smart_code,
		        t.entity_type, t.entity_name, t.entity_code, t.status
		 FROM relationships r LEFT JOIN entities t ON t.entity_id = r.to_entity_id
		 WHERE r.from_entity_id = ?
		 ORDER BY r.relationship_type, r.ordinal`), entityID)
	if err != nil {
		return nil, fmt.Errorf("loading relationships of %s: %w", entityID, err)
	}
	defer rows.Close()

	out := make(map[string][]types.RelationshipInstance)
	for rows.Next() {
		var (
			r                            types.RelationshipInstance
			sc                           sql.NullString
			tType, tName, tCode, tStatus sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RelationshipType, &r.ToEntityID, &sc, &tType, &tName, &tCode, &tStatus); err != nil {
			return nil, fmt.Errorf("scanning relationship of %s: %w", entityID, err)
		}
		r.FromEntityID = entityID
		r.SmartCode = sc.String
		if tType.Valid {
			r.ToEntity = &types.EntitySummary{
				ID:         r.ToEntityID,
				EntityType: tType.String,
				EntityName: tName.String,
				EntityCode: tCode.String,
				Status:     types.Status(tStatus.String),
			}
		}
		out[r.RelationshipType] = append(out[r.RelationshipType], r)
	}
	return out, rows.Err()
}

func insertField(ctx context.Context, tx *sql.Tx, d dialect, entityID string, f types.DynamicFieldValue, now time.Time) error {
	if f.Name == "" {
		return &types.FieldError{Code: types.ErrInvalidName, Field: "dynamic_fields", Msg: "field name must not be empty"}
	}
	if !f.Type.Valid() {
		return &types.FieldError{Code: types.ErrTypeMismatch, Field: f.Name, Msg: fmt.Sprintf("unknown type %q", f.Type)}
	}
	if f.Value != nil && f.Value.Type() != f.Type {
		return &types.FieldError{Code: types.ErrTypeMismatch, Field: f.Name,
			Msg: fmt.Sprintf("%s value for %s field", f.Value.Type(), f.Type)}
	}

	var text, num, boolean, date, jsonV any
	switch v := f.Value.(type) {
	case fields.TextField:
		text = v.V
	case fields.NumberField:
		num = v.V
	case fields.BooleanField:
		boolean = v.V
	case fields.DateField:
		date = formatTime(v.V)
	case fields.JSONField:
		jsonV = string(v.V)
	}

	_, err := tx.ExecContext(ctx, d.rebind(
		`INSERT INTO dynamic_data (entity_id, field_name, field_type, smart_code, field_value_text,
		     field_value_number, field_value_boolean, field_value_date, field_value_json, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entityID, f.Name, string(f.Type), nullString(f.SmartCode), text, num, boolean, date, jsonV, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting field %s: %w", f.Name, err)
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, d dialect, fromID, relType string, refs []types.RelationshipRef, now time.Time) error {
	for i, ref := range refs {
		if ref.ToEntityID == "" {
			return &types.FieldError{Code: types.ErrInvalidID, Field: relType, Msg: "empty target id"}
		}
		if ref.ToEntityID == fromID {
			return &types.FieldError{Code: types.ErrInvalidID, Field: relType, Msg: "an entity cannot relate to itself"}
		}
		_, err := tx.ExecContext(ctx, d.rebind(
			`INSERT INTO relationships (relationship_id, from_entity_id, relationship_type, to_entity_id, smart_code, ordinal, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`),
			generateUUID(), fromID, relType, ref.ToEntityID, nullString(ref.SmartCode), i, formatTime(now),
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return &types.FieldError{Code: types.ErrInvalidID, Field: relType,
					Msg: fmt.Sprintf("target %s does not exist", ref.ToEntityID)}
			}
			return fmt.Errorf("inserting relationship %s: %w", relType, err)
		}
	}
	return nil
}

func checkSmartCode(field, raw string) error {
	if err := smartcode.Validate(raw).Err(); err != nil {
		return &types.FieldError{Code: types.ErrInvalidSmartCode, Field: field, Msg: err.Error()}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
