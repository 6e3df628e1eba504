package sqlstore

import "fmt"

// Table names.
const (
	entitiesTable     = "entities"
	dynamicTable      = "dynamic_data"
	relationshipTable = "relationships"
	transactionsTable = "transactions"
	linesTable        = "transaction_lines"
)

// Entity rows own their dynamic data and outgoing relationships (cascade).
// Incoming relationships, transactions and transaction lines restrict the
// delete of the entity they reference.
const (
	createEntities = `CREATE TABLE IF NOT EXISTS entities (
    entity_id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_name TEXT NOT NULL,
    entity_code TEXT,
    smart_code TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

	createDynamic = `CREATE TABLE IF NOT EXISTS dynamic_data (
    entity_id TEXT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    field_name TEXT NOT NULL,
    field_type TEXT NOT NULL,
    smart_code TEXT,
    field_value_text TEXT,
    field_value_number %[1]s,
    field_value_boolean %[2]s,
    field_value_date TEXT,
    field_value_json TEXT,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (entity_id, field_name)
)`

	createRelationships = `CREATE TABLE IF NOT EXISTS relationships (
    relationship_id TEXT PRIMARY KEY,
    from_entity_id TEXT NOT NULL REFERENCES entities(entity_id) ON DELETE CASCADE,
    relationship_type TEXT NOT NULL,
    to_entity_id TEXT NOT NULL REFERENCES entities(entity_id) ON DELETE RESTRICT,
    smart_code TEXT,
    ordinal INTEGER NOT NULL,
    created_at TEXT NOT NULL
)`

	createTransactions = `CREATE TABLE IF NOT EXISTS transactions (
    transaction_id TEXT PRIMARY KEY,
    transaction_type TEXT NOT NULL,
    transaction_code TEXT,
    smart_code TEXT NOT NULL,
    transaction_date TEXT NOT NULL,
    total_amount TEXT NOT NULL,
    source_entity_id TEXT REFERENCES entities(entity_id) ON DELETE RESTRICT,
    target_entity_id TEXT REFERENCES entities(entity_id) ON DELETE RESTRICT,
    status TEXT NOT NULL,
    reversal_of TEXT REFERENCES transactions(transaction_id) ON DELETE RESTRICT,
    reason TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`

	createLines = `CREATE TABLE IF NOT EXISTS transaction_lines (
    transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id) ON DELETE CASCADE,
    line_number INTEGER NOT NULL,
    line_type TEXT NOT NULL,
    entity_id TEXT REFERENCES entities(entity_id) ON DELETE RESTRICT,
    smart_code TEXT,
    quantity TEXT NOT NULL,
    unit_amount TEXT NOT NULL,
    line_amount TEXT NOT NULL,
    PRIMARY KEY (transaction_id, line_number)
)`
)

// Index DDL for common queries.
var indexDDL = []string{
	`CREATE INDEX IF NOT EXISTS idx_entities_type_status ON entities(entity_type, status)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_created ON entities(created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_unique ON relationships(from_entity_id, relationship_type, to_entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(transaction_type, status)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions(source_entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_target ON transactions(target_entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_entity ON transaction_lines(entity_id)`,
}

// schema lists all CREATE statements in dependency order.
func (d dialect) schema() []string {
	out := []string{
		createEntities,
		fmt.Sprintf(createDynamic, d.numeric, d.boolean),
		createRelationships,
		createTransactions,
		createLines,
	}
	return append(out, indexDDL...)
}
