package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order; never edit a released step, append a new one.
var migrations = []migration{
	{
		version: 1,
		name:    "client_session",
		sql: `
		CREATE TABLE IF NOT EXISTS client_session (
			client_id TEXT PRIMARY KEY,
			user_json TEXT NOT NULL DEFAULT '',
			token TEXT NOT NULL DEFAULT '',
			is_authenticated INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);`,
	},
	{
		version: 2,
		name:    "client_session_expiry_index",
		sql:     `CREATE INDEX IF NOT EXISTS idx_client_session_expires_at ON client_session(expires_at);`,
	},
}

// LatestSchemaVersion returns the version MigrateDB brings a database to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// SchemaVersion returns the currently applied schema version (0 for a fresh database).
// PRE: schema_version table exists (MigrateDB creates it)
func SchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// MigrateDB applies pending migrations.
// PRE: db is a valid SQLite connection
// POST: schema is at LatestSchemaVersion; re-running is a no-op
func MigrateDB(db *sql.DB, dbPath string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		slog.Info("db_migration", "db", dbPath, "version", m.version, "name", m.name)
	}
	return nil
}
