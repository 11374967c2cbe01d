package storage

// Logical schema. Property maps persist as canonical JSON blobs; labels and
// relationship types are interned through the labels / rel_types tables and
// every index is keyed by surrogate id. AUTOINCREMENT keeps node and
// relationship ids monotone and never reused within a database lifetime.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		properties_json BLOB NOT NULL,
		created_at REAL NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS rel_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS node_labels (
		node_id INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
		label_id INTEGER NOT NULL REFERENCES labels(id),
		PRIMARY KEY (node_id, label_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_node_labels_by_label ON node_labels(label_id, node_id)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES nodes(id),
		target_id INTEGER NOT NULL REFERENCES nodes(id),
		type_id INTEGER NOT NULL REFERENCES rel_types(id),
		properties_json BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id, type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id, type_id)`,
	`CREATE TABLE IF NOT EXISTS property_indexes (
		name TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		property TEXT NOT NULL,
		kind TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS property_index_entries (
		index_name TEXT NOT NULL REFERENCES property_indexes(name) ON DELETE CASCADE,
		node_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (index_name, node_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prop_entries_value ON property_index_entries(index_name, value)`,
	`CREATE TABLE IF NOT EXISTS constraints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		label TEXT NOT NULL,
		property TEXT NOT NULL,
		value_kind TEXT NOT NULL DEFAULT '',
		UNIQUE (kind, label, property)
	)`,
	`CREATE TABLE IF NOT EXISTS unique_values (
		constraint_id INTEGER NOT NULL REFERENCES constraints(id) ON DELETE CASCADE,
		value TEXT NOT NULL,
		node_id INTEGER NOT NULL,
		PRIMARY KEY (constraint_id, value)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_unique_values_node ON unique_values(constraint_id, node_id)`,
	`CREATE TABLE IF NOT EXISTS vector_indexes (
		name TEXT PRIMARY KEY,
		dim INTEGER NOT NULL,
		metric TEXT NOT NULL,
		method TEXT NOT NULL,
		options_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS vector_entries (
		index_name TEXT NOT NULL REFERENCES vector_indexes(name) ON DELETE CASCADE,
		node_id INTEGER NOT NULL,
		vector_blob BLOB,
		PRIMARY KEY (index_name, node_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vector_entries_node ON vector_entries(node_id)`,
}

// ftsDDL is applied only when the driver was compiled with FTS5.
const ftsDDL = `CREATE VIRTUAL TABLE IF NOT EXISTS node_fts USING fts5(content, node_id UNINDEXED)`
