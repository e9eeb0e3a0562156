package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the ledger schema.
// Timestamps are stored as unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS passes (
    id TEXT PRIMARY KEY,
    started INTEGER NOT NULL,
    finished INTEGER NOT NULL,
    files INTEGER NOT NULL,
    matched INTEGER NOT NULL,
    applied INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    unresolvable INTEGER NOT NULL,
    fatal BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS pass_entries (
    pass_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    file TEXT NOT NULL,
    rule TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error TEXT,
    duration_ns INTEGER NOT NULL,
    recorded INTEGER NOT NULL,
    PRIMARY KEY (pass_id, seq)
);

CREATE TABLE IF NOT EXISTS marks (
    pass_id TEXT NOT NULL,
    file TEXT NOT NULL,
    rule TEXT NOT NULL,
    state TEXT NOT NULL,
    created INTEGER NOT NULL,
    updated INTEGER NOT NULL,
    PRIMARY KEY (pass_id, file, rule)
);

CREATE TABLE IF NOT EXISTS deletions (
    file TEXT PRIMARY KEY,
    scheduled INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_passes_started ON passes(started);
CREATE INDEX IF NOT EXISTS idx_pass_entries_file ON pass_entries(file);
CREATE INDEX IF NOT EXISTS idx_marks_state ON marks(state);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
