package store

import (
	"database/sql"
	"fmt"

	"compatsuite/internal/logging"
)

// Migration adds a column that older databases lack.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists the columns added since the first schema.
var pendingMigrations = []Migration{
	{"sessions", "suite_version", "TEXT"},
	{"sessions", "result_start", "INTEGER"},
	{"sessions", "result_end", "INTEGER"},
	{"module_results", "runtime", "INTEGER NOT NULL DEFAULT 0"},
	{"test_results", "stack_trace", "TEXT"},
	{"incident_dumps", "raw_size", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations adds missing columns to existing tables.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		exists, err := tableExists(db, m.Table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		has, err := columnExists(db, m.Table, m.Column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	logging.StoreDebug("schema migrations complete: applied=%d", applied)
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("PRAGMA table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}
