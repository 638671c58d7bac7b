package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/splitpilot/splitpilot/internal/experiment"
)

// SQLiteStore implements Store on an embedded SQLite database. Enrollment
// uniqueness and event idempotency are enforced by unique indexes, so
// concurrent writers never coordinate beyond the insert itself.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    scope TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    seed INTEGER NOT NULL,
    winner_variant_id TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    started_at INTEGER,
    ended_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_experiments_scope ON experiments(scope);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    name TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1,
    is_control INTEGER NOT NULL DEFAULT 0,
    payload TEXT,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON variants(experiment_id);

CREATE TABLE IF NOT EXISTS enrollments (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    assigned_at INTEGER NOT NULL,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_subject ON enrollments(experiment_id, subject_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_variant ON enrollments(experiment_id, variant_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    enrollment_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    occurred_at INTEGER NOT NULL,
    value REAL,
    FOREIGN KEY (enrollment_id) REFERENCES enrollments(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(enrollment_id, kind);
`

func Open(dbPath string) (*SQLiteStore, error) {
	// busy_timeout is per-connection, so it must be set in the DSN to cover
	// every connection in the database/sql pool, not just the one that runs
	// the PRAGMA Exec below.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode so readers never block writers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Concurrent first-assignment inserts retry instead of failing fast
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *experiment.Experiment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, name, scope, status, seed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Scope, string(exp.Status), exp.Seed, exp.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	for _, v := range exp.Variants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (id, experiment_id, name, weight, is_control, payload)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			v.ID, exp.ID, v.Name, v.Weight, boolToInt(v.IsControl), nullableString(v.Payload),
		)
		if err != nil {
			return fmt.Errorf("failed to insert variant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experiment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	var exp experiment.Experiment
	var status string
	var winner sql.NullString
	var createdAt int64
	var startedAt, endedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, scope, status, seed, winner_variant_id, created_at, started_at, ended_at
		 FROM experiments WHERE id = ?`, id,
	).Scan(&exp.ID, &exp.Name, &exp.Scope, &status, &exp.Seed, &winner, &createdAt, &startedAt, &endedAt)

	if err == sql.ErrNoRows {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	exp.Status = experiment.Status(status)
	if winner.Valid {
		w := winner.String
		exp.WinnerVariantID = &w
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		exp.StartedAt = &t
	}
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		exp.EndedAt = &t
	}

	variants, err := s.getVariants(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	exp.Variants = variants

	return &exp, nil
}

func (s *SQLiteStore) getVariants(ctx context.Context, experimentID string) ([]experiment.Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, name, weight, is_control, payload
		 FROM variants WHERE experiment_id = ? ORDER BY is_control DESC, name`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []experiment.Variant
	for rows.Next() {
		var v experiment.Variant
		var isControl int
		var payload sql.NullString
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.Weight, &isControl, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		v.IsControl = isControl != 0
		if payload.Valid {
			v.Payload = []byte(payload.String)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, scope string) ([]*experiment.Experiment, error) {
	query := `SELECT id FROM experiments ORDER BY created_at DESC`
	args := []any{}
	if scope != "" {
		query = `SELECT id FROM experiments WHERE scope = ? ORDER BY created_at DESC`
		args = append(args, scope)
	}
	return s.listByIDQuery(ctx, query, args...)
}

func (s *SQLiteStore) ListExperimentsByStatus(ctx context.Context, status experiment.Status) ([]*experiment.Experiment, error) {
	return s.listByIDQuery(ctx,
		`SELECT id FROM experiments WHERE status = ? ORDER BY created_at DESC`,
		string(status))
}

func (s *SQLiteStore) listByIDQuery(ctx context.Context, query string, args ...any) ([]*experiment.Experiment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan experiment id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiments: %w", err)
	}

	experiments := make([]*experiment.Experiment, 0, len(ids))
	for _, id := range ids {
		exp, err := s.GetExperiment(ctx, id)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status experiment.Status, winnerVariantID *string) error {
	now := time.Now().Unix()

	var result sql.Result
	var err error

	switch status {
	case experiment.StatusRunning:
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`,
			string(status), now, id,
		)
	case experiment.StatusCompleted:
		if winnerVariantID != nil {
			result, err = s.db.ExecContext(ctx,
				`UPDATE experiments SET status = ?, winner_variant_id = ?, ended_at = ? WHERE id = ?`,
				string(status), *winnerVariantID, now, id,
			)
		} else {
			result, err = s.db.ExecContext(ctx,
				`UPDATE experiments SET status = ?, ended_at = ? WHERE id = ?`,
				string(status), now, id,
			)
		}
	default:
		result, err = s.db.ExecContext(ctx,
			`UPDATE experiments SET status = ? WHERE id = ?`,
			string(status), id,
		)
	}

	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return experiment.ErrNotFound
	}
	return nil
}

// CreateEnrollment inserts a new enrollment. A conflicting insert for the
// same (experiment, subject) pair returns ErrDuplicateEnrollment; the caller
// re-reads the winning row.
func (s *SQLiteStore) CreateEnrollment(ctx context.Context, e *experiment.Enrollment) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO enrollments (id, experiment_id, subject_id, variant_id, assigned_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.ExperimentID, e.SubjectID, e.VariantID, e.AssignedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return experiment.ErrDuplicateEnrollment
	}
	return nil
}

func (s *SQLiteStore) GetEnrollment(ctx context.Context, id string) (*experiment.Enrollment, error) {
	return s.scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, subject_id, variant_id, assigned_at
		 FROM enrollments WHERE id = ?`, id))
}

func (s *SQLiteStore) GetEnrollmentBySubject(ctx context.Context, experimentID, subjectID string) (*experiment.Enrollment, error) {
	return s.scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, subject_id, variant_id, assigned_at
		 FROM enrollments WHERE experiment_id = ? AND subject_id = ?`,
		experimentID, subjectID))
}

func (s *SQLiteStore) scanEnrollment(row *sql.Row) (*experiment.Enrollment, error) {
	var e experiment.Enrollment
	var assignedAt int64
	err := row.Scan(&e.ID, &e.ExperimentID, &e.SubjectID, &e.VariantID, &assignedAt)
	if err == sql.ErrNoRows {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan enrollment: %w", err)
	}
	e.AssignedAt = time.Unix(assignedAt, 0)
	return &e, nil
}

func (s *SQLiteStore) CountEnrollmentsByVariant(ctx context.Context, experimentID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT variant_id, COUNT(*) FROM enrollments WHERE experiment_id = ? GROUP BY variant_id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count enrollments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var variantID string
		var n int
		if err := rows.Scan(&variantID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment count: %w", err)
		}
		counts[variantID] = n
	}
	return counts, rows.Err()
}

// RecordEvent appends an event. The unique index on (enrollment_id, kind)
// plus INSERT OR IGNORE makes duplicates silent no-ops, so the first-seen
// timestamp and value per kind always win.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev *experiment.Event) error {
	var value any
	if ev.Value != nil {
		value = *ev.Value
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (enrollment_id, kind, occurred_at, value)
		 VALUES (?, ?, ?, ?)`,
		ev.EnrollmentID, string(ev.Kind), ev.OccurredAt.Unix(), value,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVariantEventStats(ctx context.Context, experimentID string) ([]VariantEventStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			en.variant_id,
			COUNT(CASE WHEN ev.kind = 'impression' THEN 1 END) as impressions,
			COUNT(CASE WHEN ev.kind = 'opened' THEN 1 END) as opens,
			COUNT(CASE WHEN ev.kind = 'clicked' THEN 1 END) as clicks,
			COUNT(CASE WHEN ev.kind = 'converted' THEN 1 END) as conversions,
			COALESCE(SUM(CASE WHEN ev.kind = 'converted' THEN COALESCE(ev.value, 0) END), 0) as revenue
		FROM events ev
		JOIN enrollments en ON en.id = ev.enrollment_id
		WHERE en.experiment_id = ?
		GROUP BY en.variant_id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant event stats: %w", err)
	}
	defer rows.Close()

	var stats []VariantEventStats
	for rows.Next() {
		var vs VariantEventStats
		if err := rows.Scan(&vs.VariantID, &vs.Impressions, &vs.Opens, &vs.Clicks, &vs.Conversions, &vs.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, vs)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) GetEvents(ctx context.Context, enrollmentID string) ([]*experiment.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT enrollment_id, kind, occurred_at, value
		 FROM events WHERE enrollment_id = ? ORDER BY occurred_at`,
		enrollmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*experiment.Event
	for rows.Next() {
		var ev experiment.Event
		var kind string
		var occurredAt int64
		var value sql.NullFloat64
		if err := rows.Scan(&ev.EnrollmentID, &kind, &occurredAt, &value); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = experiment.EventKind(kind)
		ev.OccurredAt = time.Unix(occurredAt, 0)
		if value.Valid {
			v := value.Float64
			ev.Value = &v
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
