// Package history keeps a local SQLite log of compilations and builds.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// EnvDBPath overrides the default history location.
const EnvDBPath = "PIPECONFIG_HISTORY_DB"

// DB is a migrated history database.
type DB struct {
	conn *sql.DB
	path string
}

// DefaultDBPath returns $PIPECONFIG_HISTORY_DB if set, otherwise
// ~/.pipeconfig/history.db. The parent directory is created.
func DefaultDBPath() (string, error) {
	path := os.Getenv(EnvDBPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate history database: %w", err)
		}
		path = filepath.Join(home, ".pipeconfig", "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create history directory: %w", err)
	}
	return path, nil
}

// dsn adds the connection pragmas the driver applies on every new
// connection: WAL journaling, enforced foreign keys and a busy timeout so
// a concurrent `pipeconfig build` waits instead of failing.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
}

// Open connects to the database at path, creating the file if needed. Call
// Migrate before use. ":memory:" gives a private in-memory database.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One connection: an in-memory database lives and dies with it, and
	// SQLite serialises writers anyway.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	return &DB{conn: conn, path: path}, nil
}

func (d *DB) Close() error { return d.conn.Close() }

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

// migrations[i] upgrades the schema from version i to i+1.
var migrations = []string{
	// 1: compile and build runs.
	`
CREATE TABLE compile_runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    config_path TEXT NOT NULL,
    output_path TEXT,
    fingerprint TEXT,
    outcome     TEXT NOT NULL CHECK(outcome IN ('ok','usage','parse','validation','cycle','io','error')),
    stages      INTEGER NOT NULL DEFAULT 0,
    rules       INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    error       TEXT,
    timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_compile_config ON compile_runs(config_path, id DESC);

CREATE TABLE build_runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    compile_id  INTEGER REFERENCES compile_runs(id) ON DELETE CASCADE,
    makefile    TEXT NOT NULL,
    command     TEXT NOT NULL,
    passed      BOOLEAN NOT NULL,
    up_to_date  BOOLEAN NOT NULL DEFAULT FALSE,
    exit_code   INTEGER,
    duration_ms INTEGER,
    summary     TEXT,
    timestamp   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX idx_build_compile ON build_runs(compile_id);
`,
	// 2: parameter overrides, which change the emitted recipes.
	`ALTER TABLE compile_runs ADD COLUMN params TEXT;`,
}

// LatestVersion is the schema version Migrate brings a database to.
var LatestVersion = len(migrations)

// SchemaVersion returns the highest applied migration, 0 for a new database.
func (d *DB) SchemaVersion() (int, error) {
	var v int
	err := d.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Migrate applies every migration newer than the database, each in its own
// transaction. It is a no-op on an up-to-date database.
func (d *DB) Migrate() error {
	if _, err := d.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	current, err := d.SchemaVersion()
	if err != nil {
		return err
	}
	for v := current + 1; v <= LatestVersion; v++ {
		if err := d.apply(v); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) apply(version int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migrations[version-1]); err != nil {
		return fmt.Errorf("migrate to v%d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("migrate to v%d: record version: %w", version, err)
	}
	return tx.Commit()
}

// Reset deletes all history and recreates the schema.
func (d *DB) Reset() error {
	for _, t := range []string{"build_runs", "compile_runs", "schema_version"} {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("reset history: drop %s: %w", t, err)
		}
	}
	return d.Migrate()
}
