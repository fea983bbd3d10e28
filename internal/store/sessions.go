package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"compatsuite/internal/logging"

	"github.com/google/uuid"
)

// Plan is the recorded shape of an invocation.
type Plan struct {
	Subplan        string   `json:"subplan,omitempty"`
	IncludeFilters []string `json:"include_filters,omitempty"`
	ExcludeFilters []string `json:"exclude_filters,omitempty"`
	Modules        []string `json:"modules"`
}

// Session is one recorded invocation.
type Session struct {
	ID           int64
	UUID         string
	CreatedAt    time.Time
	SuiteName    string
	SuiteVersion string
	Plan         Plan
	Passed       int
	Failed       int
	ModulesDone  int
	ModulesTotal int
}

// CreateSession records a planned invocation and returns its ID.
func (s *Store) CreateSession(ctx context.Context, suiteName string, plan Plan) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return 0, fmt.Errorf("failed to encode plan: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (uuid, created_at, suite_name, plan_json)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), time.Now().UTC(), suiteName, string(planJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.Store("created session %d (%d modules)", id, len(plan.Modules))
	return id, nil
}

const sessionQuery = `
	SELECT s.id, s.uuid, s.created_at, s.suite_name, COALESCE(s.suite_version, ''), s.plan_json,
		COALESCE(SUM(m.passed), 0), COALESCE(SUM(m.failed), 0),
		COALESCE(SUM(m.done), 0), COUNT(m.id)
	FROM sessions s
	LEFT JOIN module_results m ON m.session_id = s.id
`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var planJSON string
	if err := row.Scan(&sess.ID, &sess.UUID, &sess.CreatedAt, &sess.SuiteName, &sess.SuiteVersion,
		&planJSON, &sess.Passed, &sess.Failed, &sess.ModulesDone, &sess.ModulesTotal); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(planJSON), &sess.Plan); err != nil {
		return nil, fmt.Errorf("session %d: corrupt plan: %w", sess.ID, err)
	}
	return &sess, nil
}

// Session returns the session with the given ID.
func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.id = ? GROUP BY s.id`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return sess, nil
}

// ListSessions returns all sessions, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, sessionQuery+` GROUP BY s.id ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}
