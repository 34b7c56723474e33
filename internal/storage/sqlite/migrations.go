package sqlite

import (
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	// 1: documents and conversations
	`
CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL DEFAULT '',
    view_mode  TEXT NOT NULL DEFAULT 'split'
               CHECK(view_mode IN ('editor','split','preview')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT PRIMARY KEY,
    document_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
    title       TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'active'
                CHECK(status IN ('active','running','completed','failed')),
    model       TEXT NOT NULL DEFAULT '',
    profile     TEXT NOT NULL DEFAULT '',
    lang        TEXT NOT NULL DEFAULT 'en' CHECK(lang IN ('en','zh')),
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_document ON sessions(document_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

CREATE TABLE IF NOT EXISTS session_messages (
    session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
    messages   TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL
);
`,
	// 2: settings edited in the UI
	`
CREATE TABLE IF NOT EXISTS settings (
    id        INTEGER PRIMARY KEY CHECK(id = 1),
    api_url   TEXT NOT NULL DEFAULT '',
    api_key   TEXT NOT NULL DEFAULT '',
    model     TEXT NOT NULL DEFAULT '',
    lang      TEXT NOT NULL DEFAULT '',
    view_mode TEXT NOT NULL DEFAULT ''
);
`,
}

var schemaVersion = len(migrations)

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
		return err
	}

	for v := current; v < schemaVersion; v++ {
		if err := applyMigration(db, v+1, migrations[v]); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, schema string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return err
	}
	return tx.Commit()
}
