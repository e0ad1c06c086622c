package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for traced call records.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled. The
// path ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
	if dbPath == ":memory:" {
		dsn = ":memory:?_foreign_keys=ON"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              INTEGER PRIMARY KEY,
  module_path     TEXT NOT NULL,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  exit_code       INTEGER,
  record_count    INTEGER DEFAULT 0
);

-- One row per call site: a newer record replaces the older one.
CREATE TABLE IF NOT EXISTS call_records (
  path            TEXT NOT NULL,
  line            INTEGER NOT NULL,
  run_id          INTEGER REFERENCES runs(id),
  args            TEXT NOT NULL,
  return_kind     INTEGER NOT NULL,
  return_path     TEXT,
  return_line     INTEGER,
  return_builtin  TEXT,
  recorded_at     TIMESTAMP NOT NULL,
  PRIMARY KEY (path, line)
);

CREATE TABLE IF NOT EXISTS source_hashes (
  path            TEXT PRIMARY KEY,
  hash            TEXT NOT NULL,
  recorded_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_records_run ON call_records(run_id);
`
