package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists run history in a local sqlite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	worker_id  TEXT NOT NULL,
	started_at TEXT NOT NULL,
	duration_s REAL NOT NULL,
	total      INTEGER NOT NULL,
	passed     INTEGER NOT NULL,
	failed     INTEGER NOT NULL,
	skipped    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scenarios (
	run_id      TEXT NOT NULL REFERENCES runs(run_id),
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms REAL NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS idx_scenarios_name ON scenarios(name, status);
`

// OpenStore opens (creating if needed) the history database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun records a run and its scenarios atomically.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, worker_id, started_at, duration_s, total, passed, failed, skipped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.WorkerID, run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Duration, run.Summary.Total, run.Summary.Passed, run.Summary.Failed, run.Summary.Skipped)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}

	for _, sc := range run.Scenarios {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scenarios (run_id, name, status, duration_ms, error)
			 VALUES (?, ?, ?, ?, ?)`,
			run.RunID, sc.Name, string(sc.Status), sc.DurationMs, sc.Error)
		if err != nil {
			return fmt.Errorf("save scenario %s/%s: %w", run.RunID, sc.Name, err)
		}
	}
	return tx.Commit()
}

// FlakeRate is per-scenario failure history.
type FlakeRate struct {
	Name     string
	Runs     int
	Failures int
}

// Rate returns the failure fraction.
func (f FlakeRate) Rate() float64 {
	if f.Runs == 0 {
		return 0
	}
	return float64(f.Failures) / float64(f.Runs)
}

// FlakeRates returns failure rates per scenario over the most recent limit
// runs, worst first. Skipped scenarios do not count as executions.
func (s *Store) FlakeRates(ctx context.Context, limit int) ([]FlakeRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name,
		       COUNT(*) AS runs,
		       SUM(CASE WHEN status = 'fail' THEN 1 ELSE 0 END) AS failures
		FROM scenarios
		WHERE status != 'skip'
		  AND run_id IN (SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?)
		GROUP BY name
		ORDER BY CAST(failures AS REAL) / COUNT(*) DESC, name`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query flake rates: %w", err)
	}
	defer rows.Close()

	var out []FlakeRate
	for rows.Next() {
		var f FlakeRate
		if err := rows.Scan(&f.Name, &f.Runs, &f.Failures); err != nil {
			return nil, fmt.Errorf("scan flake rate: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecentRuns returns summaries of the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, worker_id, started_at, duration_s, total, passed, failed, skipped
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.RunID, &r.WorkerID, &started, &r.Duration,
			&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}
