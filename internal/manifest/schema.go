// Package manifest persists catalog definitions in a SQLite database
// (manifest.db). Types, stream views and streams are stored one row per
// definition with the full definition as a JSON body.
package manifest

// SchemaVersion is the layout version written to schema_versions. A
// manifest written by a newer layout is refused.
const SchemaVersion = 1

// CreateTypesTableSQL creates the types table.
const CreateTypesTableSQL = `
CREATE TABLE IF NOT EXISTS types (
    id TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateStreamViewsTableSQL creates the stream views table. Source and
// target type ids are kept as columns so references can be inspected
// without decoding bodies.
const CreateStreamViewsTableSQL = `
CREATE TABLE IF NOT EXISTS stream_views (
    id TEXT PRIMARY KEY,
    source_type_id TEXT NOT NULL,
    target_type_id TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateStreamsTableSQL creates the streams table.
const CreateStreamsTableSQL = `
CREATE TABLE IF NOT EXISTS streams (
    id TEXT PRIMARY KEY,
    type_id TEXT NOT NULL,
    storage_type_id TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateSchemaVersionsTableSQL creates the schema versions table.
const CreateSchemaVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version INTEGER PRIMARY KEY,
    created_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates lookup indexes on type references.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_streams_type ON streams(type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_storage_type ON streams(storage_type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_views_source ON stream_views(source_type_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_views_target ON stream_views(target_type_id)`,
}

// AllSchemaSQL returns all SQL statements needed to initialize the manifest.
func AllSchemaSQL() []string {
	statements := []string{
		CreateTypesTableSQL,
		CreateStreamViewsTableSQL,
		CreateStreamsTableSQL,
		CreateSchemaVersionsTableSQL,
	}
	return append(statements, CreateIndexesSQL...)
}
