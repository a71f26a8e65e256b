package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 3

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database: create the current schema directly.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	case 3:
		return migrateToVersion3(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds delivery attempt tracking to processed messages.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE processed_messages ADD COLUMN attempts INTEGER NOT NULL DEFAULT 1",
		"CREATE INDEX IF NOT EXISTS idx_processed_received ON processed_messages(received_at)",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// migrateToVersion3 adds lowercased copies of document titles and content. SQLite's lower()
// only folds ASCII, so search matches against these columns, folded with strings.ToLower.
func migrateToVersion3(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE knowledge_documents ADD COLUMN title_folded TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE knowledge_documents ADD COLUMN content_folded TEXT NOT NULL DEFAULT ''",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	type docText struct {
		id             int64
		title, content string
	}
	rows, err := db.Query(`SELECT id, title, content FROM knowledge_documents`)
	if err != nil {
		return fmt.Errorf("failed to read documents: %w", err)
	}
	var docs []docText
	for rows.Next() {
		var d docText
		if err := rows.Scan(&d.id, &d.title, &d.content); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to close document rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	for _, d := range docs {
		if _, err := db.Exec(`UPDATE knowledge_documents SET title_folded = ?, content_folded = ? WHERE id = ?`,
			strings.ToLower(d.title), strings.ToLower(d.content), d.id); err != nil {
			return fmt.Errorf("failed to fold document %d: %w", d.id, err)
		}
	}
	return nil
}

// schemaV1 is the version 1 table layout. createSchema builds on it so that fresh and
// migrated databases end up identical.
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS knowledge_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		keywords TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS processed_messages (
		item_id TEXT PRIMARY KEY,
		sender TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		received_at TEXT NOT NULL,
		urgency TEXT NOT NULL CHECK (urgency IN ('Urgent', 'Not Urgent')),
		sentiment TEXT NOT NULL CHECK (sentiment IN ('Positive', 'Negative', 'Neutral')),
		summary TEXT NOT NULL DEFAULT '',
		customer_request TEXT NOT NULL DEFAULT '',
		contact TEXT,
		context_summary TEXT NOT NULL DEFAULT '',
		actions TEXT NOT NULL DEFAULT '[]',
		document_ids TEXT NOT NULL DEFAULT '[]',
		draft TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Resolved')),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	"CREATE INDEX IF NOT EXISTS idx_processed_status ON processed_messages(status)",
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	for _, ddl := range schemaV1 {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if err := setSchemaVersion(db, 1); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return runMigrations(db, 1, CurrentSchemaVersion)
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
