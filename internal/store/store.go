// Package store keeps invocation sessions, imported results and captured
// dumps in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"compatsuite/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Store is the session database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens the database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.StoreDebug("opened store %s", path)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		suite_name TEXT NOT NULL,
		plan_json TEXT NOT NULL,
		suite_version TEXT,
		result_start INTEGER,
		result_end INTEGER
	);

	CREATE TABLE IF NOT EXISTS module_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		abi TEXT NOT NULL,
		module TEXT NOT NULL,
		done INTEGER NOT NULL,
		runtime INTEGER NOT NULL DEFAULT 0,
		passed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		UNIQUE (session_id, abi, module)
	);

	CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		abi TEXT NOT NULL,
		module TEXT NOT NULL,
		test_case TEXT NOT NULL,
		test TEXT NOT NULL,
		result TEXT NOT NULL,
		message TEXT,
		stack_trace TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_test_results_session ON test_results(session_id, abi, module);
	CREATE INDEX IF NOT EXISTS idx_test_results_result ON test_results(session_id, result);

	CREATE TABLE IF NOT EXISTS incident_dumps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		service TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		raw_size INTEGER NOT NULL,
		data BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dumps_session ON incident_dumps(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) sessionExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id int64) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return nil
}
