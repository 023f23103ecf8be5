// Package tracking is the experiment-tracking sink for the training
// pipeline: one run per candidate model, each carrying key/value params and
// key/value metrics. Runs are stored in a local SQLite database so they
// survive across pipeline executions and can be audited later.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/YuminosukeSato/medcost/pkg/errors"
)

// Store records experiment runs in SQLite.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Run is a recorded experiment run.
type Run struct {
	ID         string
	Experiment string
	Name       string
	Status     string
	StartedAt  time.Time
}

// NewStore opens (and if needed initializes) the tracking database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("tracking: dbPath is required")
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "tracking: create database directory")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "tracking: open database")
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "tracking: ping database")
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			experiment TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS params (
			run_id TEXT NOT NULL REFERENCES runs(id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (run_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT NOT NULL REFERENCES runs(id),
			key TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "tracking: apply schema")
		}
	}
	return nil
}

// StartRun creates a run and returns its ID.
func (s *Store) StartRun(ctx context.Context, experiment, name string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment, name, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		id, experiment, name, time.Now().UTC(),
	)
	if err != nil {
		return "", errors.Wrapf(err, "tracking: start run %q", name)
	}
	return id, nil
}

// LogParams records the run's configuration as key/value pairs.
func (s *Store) LogParams(ctx context.Context, runID string, params map[string]interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "tracking: begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range params {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO params (run_id, key, value) VALUES (?, ?, ?)`,
			runID, key, fmt.Sprintf("%v", value),
		); err != nil {
			return errors.Wrapf(err, "tracking: log param %q", key)
		}
	}
	return errors.Wrap(tx.Commit(), "tracking: commit params")
}

// LogMetrics records scalar scores for a run.
func (s *Store) LogMetrics(ctx context.Context, runID string, values map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "tracking: begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO metrics (run_id, key, value) VALUES (?, ?, ?)`,
			runID, key, value,
		); err != nil {
			return errors.Wrapf(err, "tracking: log metric %q", key)
		}
	}
	return errors.Wrap(tx.Commit(), "tracking: commit metrics")
}

// FinishRun marks the run finished with the given status ("finished" or
// "failed").
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID,
	)
	return errors.Wrapf(err, "tracking: finish run %s", runID)
}

// Runs lists the recorded runs of an experiment, newest first.
func (s *Store) Runs(ctx context.Context, experiment string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment, name, status, started_at FROM runs WHERE experiment = ? ORDER BY started_at DESC`,
		experiment,
	)
	if err != nil {
		return nil, errors.Wrap(err, "tracking: query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Experiment, &r.Name, &r.Status, &r.StartedAt); err != nil {
			return nil, errors.Wrap(err, "tracking: scan run")
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "tracking: iterate runs")
}

// Metrics returns the recorded metrics of a run.
func (s *Store) Metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "tracking: query metrics")
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "tracking: scan metric")
		}
		out[key] = value
	}
	return out, errors.Wrap(rows.Err(), "tracking: iterate metrics")
}
