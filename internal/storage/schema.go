package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

func OpenDB(dbPath string) (*sql.DB, error) {
	parentDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)

	// Several hooks may fire at once for one tool call.
	if _, err := db.Exec("PRAGMA busy_timeout=2000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	} else {
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if err == sql.ErrNoRows {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this devkit-gates version supports (max: %d); upgrade devkit-gates or delete %s to start fresh",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}

	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}

	return nil
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []struct {
		what string
		sql  string
	}{
		{"schema_version table", `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER NOT NULL
			)`},
		{"schema version", "INSERT INTO schema_version (version) VALUES (1)"},
		{"decisions table", `
			CREATE TABLE IF NOT EXISTS decisions (
				id TEXT PRIMARY KEY,
				timestamp TEXT NOT NULL,
				gate TEXT NOT NULL,
				hook_event TEXT,
				session_id TEXT,
				tool_name TEXT,
				cwd TEXT,
				decision TEXT NOT NULL,
				reason TEXT,
				duration_us INTEGER
			)`},
		{"daily_summaries table", `
			CREATE TABLE IF NOT EXISTS daily_summaries (
				date TEXT NOT NULL,
				gate TEXT NOT NULL,
				allowed INTEGER NOT NULL,
				blocked INTEGER NOT NULL,
				sessions INTEGER NOT NULL,
				UNIQUE(date, gate)
			)`},
		{"maintenance table", `
			CREATE TABLE IF NOT EXISTS maintenance (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"idx_decisions_ts", "CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(timestamp)"},
		{"idx_decisions_gate", "CREATE INDEX IF NOT EXISTS idx_decisions_gate ON decisions(gate)"},
		{"idx_decisions_session", "CREATE INDEX IF NOT EXISTS idx_decisions_session ON decisions(session_id)"},
		{"idx_daily_date", "CREATE INDEX IF NOT EXISTS idx_daily_date ON daily_summaries(date)"},
	}

	for _, st := range statements {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s: %w", st.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
