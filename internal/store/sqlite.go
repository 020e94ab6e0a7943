package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by CreateAssignment when the
	// (test_id, user_id) uniqueness constraint rejects the insert.
	ErrAlreadyExists = errors.New("already exists")
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    lifecycle_state TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    start_date INTEGER,
    end_date INTEGER,
    variants TEXT NOT NULL,
    target_criteria TEXT,
    success_metrics TEXT NOT NULL,
    results_summary TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_state_status ON experiments(lifecycle_state, status);

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    test_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    assigned_at INTEGER NOT NULL,
    lifecycle_state_before TEXT NOT NULL,
    churn_risk_before REAL NOT NULL,
    sessions_7days_before INTEGER NOT NULL,
    intervention_shown INTEGER NOT NULL DEFAULT 0,
    shown_at INTEGER,
    user_action TEXT,
    action_at INTEGER,
    conversion_events TEXT,
    lifecycle_state_after TEXT,
    churn_risk_after REAL,
    sessions_7days_after INTEGER,
    FOREIGN KEY (test_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_test ON assignments(test_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_test_user ON assignments(test_id, user_id);

CREATE TABLE IF NOT EXISTS lifecycle_states (
    user_id TEXT PRIMARY KEY,
    current_state TEXT NOT NULL,
    state_entered_at INTEGER NOT NULL,
    churn_risk_score REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS retention_states (
    user_id TEXT PRIMARY KEY,
    weekly_engagement TEXT
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	variantsJSON, err := json.Marshal(exp.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}

	metricsJSON, err := json.Marshal(exp.SuccessMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal success metrics: %w", err)
	}

	var criteriaJSON []byte
	if exp.TargetCriteria != nil {
		criteriaJSON, err = json.Marshal(exp.TargetCriteria)
		if err != nil {
			return fmt.Errorf("failed to marshal target criteria: %w", err)
		}
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, lifecycle_state, status, start_date, end_date, variants, target_criteria, success_metrics, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.LifecycleState, string(exp.Status),
		nullableTime(exp.StartDate), nullableTime(exp.EndDate),
		string(variantsJSON), nullableString(criteriaJSON), string(metricsJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

const experimentColumns = `id, name, lifecycle_state, status, start_date, end_date, variants, target_criteria, success_metrics, results_summary, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var startDate, endDate sql.NullInt64
	var variantsJSON string
	var criteriaJSON, summaryJSON sql.NullString
	var createdAt, updatedAt int64
	var metricsJSON string

	err := row.Scan(&exp.ID, &exp.Name, &exp.LifecycleState, &exp.Status,
		&startDate, &endDate, &variantsJSON, &criteriaJSON, &metricsJSON,
		&summaryJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	if err := json.Unmarshal([]byte(variantsJSON), &exp.Variants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variants: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &exp.SuccessMetrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success metrics: %w", err)
	}
	if criteriaJSON.Valid && criteriaJSON.String != "" {
		exp.TargetCriteria = &TargetCriteria{}
		if err := json.Unmarshal([]byte(criteriaJSON.String), exp.TargetCriteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target criteria: %w", err)
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		exp.ResultsSummary = &ResultsSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), exp.ResultsSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results summary: %w", err)
		}
	}

	if startDate.Valid {
		t := time.Unix(startDate.Int64, 0)
		exp.StartDate = &t
	}
	if endDate.Valid {
		t := time.Unix(endDate.Int64, 0)
		exp.EndDate = &t
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return scanExperiment(row)
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

// ListActiveExperiments filters on segment and status only; date-window
// filtering belongs to the engine.
func (s *SQLiteStore) ListActiveExperiments(ctx context.Context, lifecycleState string) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments
		 WHERE lifecycle_state = ? AND status = ? ORDER BY created_at DESC`,
		lifecycleState, string(StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active experiments: %w", err)
	}
	defer rows.Close()

	return collectExperiments(rows)
}

func collectExperiments(rows *sql.Rows) ([]*Experiment, error) {
	var exps []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		exps = append(exps, exp)
	}
	return exps, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) UpdateResultsSummary(ctx context.Context, id string, summary *ResultsSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal results summary: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET results_summary = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update results summary: %w", err)
	}
	return requireRows(result)
}

// CreateAssignment inserts a new assignment. The unique (test_id, user_id)
// index makes the insert-if-absent atomic: a concurrent duplicate loses the
// race and gets ErrAlreadyExists instead of a second row.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	var eventsJSON []byte
	if len(a.ConversionEvents) > 0 {
		var err error
		eventsJSON, err = json.Marshal(a.ConversionEvents)
		if err != nil {
			return fmt.Errorf("failed to marshal conversion events: %w", err)
		}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (id, test_id, user_id, variant_id, assigned_at,
		    lifecycle_state_before, churn_risk_before, sessions_7days_before,
		    intervention_shown, conversion_events)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(test_id, user_id) DO NOTHING`,
		a.ID, a.TestID, a.UserID, a.VariantID, a.AssignedAt.Unix(),
		a.LifecycleStateBefore, a.ChurnRiskBefore, a.Sessions7DaysBefore,
		nullableString(eventsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	return nil
}

const assignmentColumns = `id, test_id, user_id, variant_id, assigned_at,
    lifecycle_state_before, churn_risk_before, sessions_7days_before,
    intervention_shown, shown_at, user_action, action_at, conversion_events,
    lifecycle_state_after, churn_risk_after, sessions_7days_after`

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	var assignedAt int64
	var shown int
	var shownAt, actionAt, sessionsAfter sql.NullInt64
	var action, eventsJSON, stateAfter sql.NullString
	var churnAfter sql.NullFloat64

	err := row.Scan(&a.ID, &a.TestID, &a.UserID, &a.VariantID, &assignedAt,
		&a.LifecycleStateBefore, &a.ChurnRiskBefore, &a.Sessions7DaysBefore,
		&shown, &shownAt, &action, &actionAt, &eventsJSON,
		&stateAfter, &churnAfter, &sessionsAfter)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan assignment: %w", err)
	}

	a.AssignedAt = time.Unix(assignedAt, 0)
	a.InterventionShown = shown != 0

	if shownAt.Valid {
		t := time.Unix(shownAt.Int64, 0)
		a.ShownAt = &t
	}
	if action.Valid {
		a.UserAction = UserAction(action.String)
	}
	if actionAt.Valid {
		t := time.Unix(actionAt.Int64, 0)
		a.ActionAt = &t
	}
	if eventsJSON.Valid && eventsJSON.String != "" {
		if err := json.Unmarshal([]byte(eventsJSON.String), &a.ConversionEvents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversion events: %w", err)
		}
	}
	if stateAfter.Valid {
		v := stateAfter.String
		a.LifecycleStateAfter = &v
	}
	if churnAfter.Valid {
		v := churnAfter.Float64
		a.ChurnRiskAfter = &v
	}
	if sessionsAfter.Valid {
		v := int(sessionsAfter.Int64)
		a.Sessions7DaysAfter = &v
	}

	return &a, nil
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	return scanAssignment(row)
}

func (s *SQLiteStore) GetAssignmentByTestAndUser(ctx context.Context, testID, userID string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE test_id = ? AND user_id = ?`,
		testID, userID)
	return scanAssignment(row)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, testID string) ([]*Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE test_id = ? ORDER BY assigned_at`,
		testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (s *SQLiteStore) SetInterventionShown(ctx context.Context, id string, shownAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET intervention_shown = 1, shown_at = ? WHERE id = ?`,
		shownAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set intervention shown: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) SetUserAction(ctx context.Context, id string, action UserAction, actionAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET user_action = ?, action_at = ? WHERE id = ?`,
		string(action), actionAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set user action: %w", err)
	}
	return requireRows(result)
}

// AppendConversionEvent appends in a single UPDATE via the JSON1 extension,
// so concurrent appends cannot lose events.
func (s *SQLiteStore) AppendConversionEvent(ctx context.Context, id string, ev ConversionEvent) error {
	evJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion event: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments
		 SET conversion_events = json_insert(COALESCE(conversion_events, '[]'), '$[#]', json(?))
		 WHERE id = ?`,
		string(evJSON), id)
	if err != nil {
		return fmt.Errorf("failed to append conversion event: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) UpdatePostMetrics(ctx context.Context, id string, stateAfter *string, churnAfter *float64, sessionsAfter int) error {
	var state sql.NullString
	if stateAfter != nil {
		state = sql.NullString{String: *stateAfter, Valid: true}
	}
	var churn sql.NullFloat64
	if churnAfter != nil {
		churn = sql.NullFloat64{Float64: *churnAfter, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET lifecycle_state_after = ?, churn_risk_after = ?, sessions_7days_after = ? WHERE id = ?`,
		state, churn, sessionsAfter, id)
	if err != nil {
		return fmt.Errorf("failed to update post metrics: %w", err)
	}
	return requireRows(result)
}

func (s *SQLiteStore) GetLifecycleState(ctx context.Context, userID string) (*LifecycleState, error) {
	var ls LifecycleState
	var enteredAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, current_state, state_entered_at, churn_risk_score
		 FROM lifecycle_states WHERE user_id = ?`, userID,
	).Scan(&ls.UserID, &ls.CurrentState, &enteredAt, &ls.ChurnRiskScore)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle state: %w", err)
	}

	ls.StateEnteredAt = time.Unix(enteredAt, 0)
	return &ls, nil
}

func (s *SQLiteStore) PutLifecycleState(ctx context.Context, ls *LifecycleState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_states (user_id, current_state, state_entered_at, churn_risk_score)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		    current_state = excluded.current_state,
		    state_entered_at = excluded.state_entered_at,
		    churn_risk_score = excluded.churn_risk_score`,
		ls.UserID, ls.CurrentState, ls.StateEnteredAt.Unix(), ls.ChurnRiskScore)
	if err != nil {
		return fmt.Errorf("failed to put lifecycle state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRetentionState(ctx context.Context, userID string) (*RetentionState, error) {
	var rs RetentionState
	var engagementJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, weekly_engagement FROM retention_states WHERE user_id = ?`, userID,
	).Scan(&rs.UserID, &engagementJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retention state: %w", err)
	}

	if engagementJSON.Valid && engagementJSON.String != "" {
		if err := json.Unmarshal([]byte(engagementJSON.String), &rs.WeeklyEngagement); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weekly engagement: %w", err)
		}
	}

	return &rs, nil
}

func (s *SQLiteStore) PutRetentionState(ctx context.Context, rs *RetentionState) error {
	engagementJSON, err := json.Marshal(rs.WeeklyEngagement)
	if err != nil {
		return fmt.Errorf("failed to marshal weekly engagement: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO retention_states (user_id, weekly_engagement)
		 VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET weekly_engagement = excluded.weekly_engagement`,
		rs.UserID, string(engagementJSON))
	if err != nil {
		return fmt.Errorf("failed to put retention state: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func requireRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
