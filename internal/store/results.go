package store

import (
	"context"
	"database/sql"
	"fmt"

	"compatsuite/internal/logging"
	"compatsuite/internal/results"
)

// ImportResult replaces the stored results of a session with res.
func (s *Store) ImportResult(ctx context.Context, sessionID int64, res *results.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if err := s.sessionExists(ctx, tx, sessionID); err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM test_results WHERE session_id = ?`,
		`DELETE FROM module_results WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET suite_version = ?, result_start = ?, result_end = ? WHERE id = ?
	`, res.SuiteVersion, res.Start, res.End, sessionID); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	modStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO module_results (session_id, abi, module, done, runtime, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer modStmt.Close()
	testStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO test_results (session_id, abi, module, test_case, test, result, message, stack_trace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer testStmt.Close()

	tests := 0
	for _, m := range res.Modules {
		c := m.Counts()
		if _, err := modStmt.ExecContext(ctx, sessionID, m.ABI, m.Name, m.Done, m.Runtime, c.Passed, c.Failed); err != nil {
			return fmt.Errorf("failed to store module %s %s: %w", m.ABI, m.Name, err)
		}
		for _, tc := range m.TestCases {
			for _, t := range tc.Tests {
				var msg, trace sql.NullString
				if t.Failure != nil {
					msg = sql.NullString{String: t.Failure.Message, Valid: true}
					trace = sql.NullString{String: t.Failure.StackTrace, Valid: t.Failure.StackTrace != ""}
				}
				if _, err := testStmt.ExecContext(ctx, sessionID, m.ABI, m.Name, tc.Name, t.Name, t.Result, msg, trace); err != nil {
					return fmt.Errorf("failed to store test %s#%s: %w", tc.Name, t.Name, err)
				}
				tests++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	logging.Store("imported %d modules, %d tests into session %d", len(res.Modules), tests, sessionID)
	return nil
}

// LoadResult rebuilds the result tree stored for a session, in import order.
func (s *Store) LoadResult(ctx context.Context, sessionID int64) (*results.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := &results.Result{}
	var version sql.NullString
	var start, end sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT suite_name, suite_version, result_start, result_end FROM sessions WHERE id = ?
	`, sessionID).Scan(&res.SuiteName, &version, &start, &end)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	res.SuiteVersion, res.Start, res.End = version.String, start.Int64, end.Int64

	rows, err := s.db.QueryContext(ctx, `
		SELECT abi, module, done, runtime FROM module_results WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	modules := map[string]*results.Module{}
	for rows.Next() {
		m := &results.Module{}
		if err := rows.Scan(&m.ABI, &m.Name, &m.Done, &m.Runtime); err != nil {
			rows.Close()
			return nil, err
		}
		res.Modules = append(res.Modules, m)
		modules[m.ABI+" "+m.Name] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT abi, module, test_case, test, result, message, stack_trace
		FROM test_results WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var abi, module, testCase string
		var msg, trace sql.NullString
		t := &results.Test{}
		if err := rows.Scan(&abi, &module, &testCase, &t.Name, &t.Result, &msg, &trace); err != nil {
			return nil, err
		}
		if msg.Valid {
			t.Failure = &results.Failure{Message: msg.String, StackTrace: trace.String}
		}
		m, ok := modules[abi+" "+module]
		if !ok {
			return nil, fmt.Errorf("test %s#%s references unknown module %s %s", testCase, t.Name, abi, module)
		}
		var tc *results.TestCase
		if n := len(m.TestCases); n > 0 && m.TestCases[n-1].Name == testCase {
			tc = m.TestCases[n-1]
		} else {
			tc = &results.TestCase{Name: testCase}
			m.TestCases = append(m.TestCases, tc)
		}
		tc.Tests = append(tc.Tests, t)
	}
	return res, rows.Err()
}
