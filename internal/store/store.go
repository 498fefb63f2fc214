// Package store keeps the run ledger: one row per pipeline run, its stage
// counts and the outcome of every call it touched.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			command TEXT,
			input_path TEXT,
			output_dir TEXT,
			status TEXT,
			error TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS stage_counts (
			run_id TEXT,
			stage TEXT,
			position INTEGER,
			input INTEGER,
			success INTEGER,
			failure INTEGER,
			skip INTEGER,
			output_rows INTEGER,
			PRIMARY KEY (run_id, stage)
		);`,
		`CREATE TABLE IF NOT EXISTS call_outcomes (
			run_id TEXT,
			stage TEXT,
			call_id TEXT,
			outcome TEXT,
			error TEXT,
			duration_ms INTEGER,
			created_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_outcomes_run ON call_outcomes(run_id, stage);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return eris.Wrap(err, "store: migrate")
		}
	}
	return nil
}

// Run is one invocation of the batch pipeline.
type Run struct {
	RunID      string        `json:"run_id"`
	Command    string        `json:"command"`
	InputPath  string        `json:"input_path"`
	OutputDir  string        `json:"output_dir"`
	Status     string        `json:"status"`
	Error      *string       `json:"error"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at"`
	Stages     []StageReport `json:"stages,omitempty"`
}

// StageReport holds the success / failure / skip counts of one stage.
type StageReport struct {
	Stage      string `json:"stage"`
	Input      int    `json:"input"`
	Success    int    `json:"success"`
	Failure    int    `json:"failure"`
	Skip       int    `json:"skip"`
	OutputRows int    `json:"output_rows"`
}

// CallOutcome is what one stage did with one call.
type CallOutcome struct {
	Stage      string `json:"stage"`
	CallID     string `json:"call_id"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (s *Store) StartRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs(run_id, command, input_path, output_dir, status, started_at) VALUES(?,?,?,?,?,?)`,
		r.RunID, r.Command, r.InputPath, r.OutputDir, StatusRunning, r.StartedAt.UTC())
	return eris.Wrapf(err, "store: start run %s", r.RunID)
}

// RecordStage stores or replaces the counts of one stage. position keeps the
// stages in execution order.
func (s *Store) RecordStage(ctx context.Context, runID string, position int, st StageReport) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO stage_counts(run_id, stage, position, input, success, failure, skip, output_rows)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(run_id, stage) DO UPDATE SET position=excluded.position, input=excluded.input, success=excluded.success,
			failure=excluded.failure, skip=excluded.skip, output_rows=excluded.output_rows`,
		runID, st.Stage, position, st.Input, st.Success, st.Failure, st.Skip, st.OutputRows)
	return eris.Wrapf(err, "store: record stage %s", st.Stage)
}

func (s *Store) RecordCall(ctx context.Context, runID string, c CallOutcome, ts time.Time) error {
	var errMsg *string
	if c.Error != "" {
		errMsg = &c.Error
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO call_outcomes(run_id, stage, call_id, outcome, error, duration_ms, created_at) VALUES(?,?,?,?,?,?,?)`,
		runID, c.Stage, c.CallID, c.Outcome, errMsg, c.DurationMs, ts.UTC())
	return eris.Wrapf(err, "store: record call %s", c.CallID)
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr error, ts time.Time) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status=?, error=?, finished_at=? WHERE run_id=?`, status, errMsg, ts.UTC(), runID)
	return eris.Wrapf(err, "store: finish run %s", runID)
}

// ListRuns returns the latest runs first, each with its stage counts.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, command, input_path, output_dir, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var errMsg sql.NullString
		var finished sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Command, &r.InputPath, &r.OutputDir, &r.Status, &errMsg, &r.StartedAt, &finished); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "store: scan run")
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, eris.Wrap(err, "store: list runs")
	}
	rows.Close()

	// Stages are read after the cursor is closed: the pool has one connection.
	for i := range runs {
		st, err := s.Stages(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Stages = st
	}
	return runs, nil
}

func (s *Store) Stages(ctx context.Context, runID string) ([]StageReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, input, success, failure, skip, output_rows FROM stage_counts WHERE run_id=? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: stages")
	}
	defer rows.Close()
	var out []StageReport
	for rows.Next() {
		var st StageReport
		if err := rows.Scan(&st.Stage, &st.Input, &st.Success, &st.Failure, &st.Skip, &st.OutputRows); err != nil {
			return nil, eris.Wrap(err, "store: scan stage")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "store: stages")
}

func (s *Store) Calls(ctx context.Context, runID string) ([]CallOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, call_id, outcome, error, duration_ms FROM call_outcomes WHERE run_id=? ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "store: calls")
	}
	defer rows.Close()
	var out []CallOutcome
	for rows.Next() {
		var c CallOutcome
		var errMsg sql.NullString
		if err := rows.Scan(&c.Stage, &c.CallID, &c.Outcome, &errMsg, &c.DurationMs); err != nil {
			return nil, eris.Wrap(err, "store: scan call")
		}
		c.Error = errMsg.String
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "store: calls")
}

// Health returns err if DB not reachable.
func (s *Store) Health(ctx context.Context) error {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&v); err != nil {
		return eris.Wrap(err, "store: health")
	}
	return nil
}
