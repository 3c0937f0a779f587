package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/banshee-data/hextile/internal/timeutil"
	"github.com/banshee-data/hextile/internal/trials"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the tiler.
type Run struct {
	RunID          string          `json:"run_id"`
	Version        string          `json:"version"`
	Input          string          `json:"input"`
	CRS            string          `json:"crs"`
	SourceCount    int             `json:"source_count"`
	Size           float64         `json:"size"`
	NumTrials      int             `json:"num_trials"`
	Seed           *uint64         `json:"seed,omitempty"`
	Workers        int             `json:"workers"`
	GeometryPolicy string          `json:"geometry_policy"`
	Outcome        string          `json:"outcome"`
	ParamsJSON     json.RawMessage `json:"params_json,omitempty"`
	StartedAt      int64           `json:"started_at"`
	FinishedAt     int64           `json:"finished_at"`
}

// Trial is one row of a run's per-trial results.
type Trial struct {
	RunID      string   `json:"run_id"`
	TrialIndex int      `json:"trial_index"`
	OffsetX    float64  `json:"offset_x"`
	OffsetY    float64  `json:"offset_y"`
	Columns    int      `json:"columns"`
	Rows       int      `json:"rows"`
	Cells      int      `json:"cells"`
	State      string   `json:"state"`
	TotalCost  *float64 `json:"total_cost,omitempty"`
	MeanCost   *float64 `json:"mean_cost,omitempty"`
	MaxCost    *float64 `json:"max_cost,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationNS int64    `json:"duration_ns"`
}

// TrialFromResult converts an orchestrator result into a row. Costs are
// only set for trials that finished.
func TrialFromResult(runID string, r trials.TrialResult) *Trial {
	t := &Trial{
		RunID:      runID,
		TrialIndex: r.Index,
		OffsetX:    r.Offset.X,
		OffsetY:    r.Offset.Y,
		Columns:    r.Columns,
		Rows:       r.Rows,
		Cells:      r.Cells,
		State:      r.State.String(),
		OutputPath: r.OutputPath,
		DurationNS: r.Duration.Nanoseconds(),
	}
	if r.State == trials.StateDone {
		total, mean, maxCost := r.TotalCost, r.MeanCost, r.MaxCost
		t.TotalCost, t.MeanCost, t.MaxCost = &total, &mean, &maxCost
	}
	if r.Err != nil {
		t.Error = r.Err.Error()
	}
	return t
}

// RunStore persists run history.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a RunStore on an open database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB, clock: timeutil.RealClock{}}
}

// WithClock sets the clock used to stamp runs that lack timestamps.
func (s *RunStore) WithClock(c timeutil.Clock) *RunStore {
	s.clock = timeutil.OrReal(c)
	return s
}

// RecordReport stores run and every trial of report in one transaction.
// If run.RunID is empty, a UUID is generated.
func (s *RunStore) RecordReport(run *Run, report *trials.Report) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.FinishedAt == 0 {
		run.FinishedAt = s.clock.Now().UnixNano()
	}
	run.Outcome = report.Outcome.String()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertRun(tx, run); err != nil {
		return err
	}
	for _, r := range report.Trials {
		if err := insertTrial(tx, TrialFromResult(run.RunID, r)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertRun persists a run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	return s.insertRun(s.db, run)
}

// InsertTrial persists one trial row of an existing run.
func (s *RunStore) InsertTrial(t *Trial) error {
	return insertTrial(s.db, t)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *RunStore) insertRun(ex execer, run *Run) error {
	if run.StartedAt == 0 {
		run.StartedAt = s.clock.Now().UnixNano()
	}
	if run.FinishedAt == 0 {
		run.FinishedAt = run.StartedAt
	}
	var seed, params interface{}
	if run.Seed != nil {
		// TEXT keeps seeds above MaxInt64 intact.
		seed = strconv.FormatUint(*run.Seed, 10)
	}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}
	_, err := ex.Exec(`
		INSERT INTO runs (
			run_id, version, input, crs, source_count, size, num_trials, seed,
			workers, geometry_policy, outcome, params_json, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Version, run.Input, run.CRS, run.SourceCount, run.Size, run.NumTrials, seed,
		run.Workers, run.GeometryPolicy, run.Outcome, params, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertTrial(ex execer, t *Trial) error {
	var outputPath, errText interface{}
	if t.OutputPath != "" {
		outputPath = t.OutputPath
	}
	if t.Error != "" {
		errText = t.Error
	}
	_, err := ex.Exec(`
		INSERT INTO trials (
			run_id, trial_index, offset_x, offset_y, grid_cols, grid_rows, cells, state,
			total_cost, mean_cost, max_cost, output_path, error, duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TrialIndex, t.OffsetX, t.OffsetY, t.Columns, t.Rows, t.Cells, t.State,
		t.TotalCost, t.MeanCost, t.MaxCost, outputPath, errText, t.DurationNS,
	)
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", t.TrialIndex, err)
	}
	return nil
}

const runColumns = `run_id, version, input, crs, source_count, size, num_trials, seed,
	workers, geometry_policy, outcome, params_json, started_at, finished_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var seed, params sql.NullString
	if err := row.Scan(
		&r.RunID, &r.Version, &r.Input, &r.CRS, &r.SourceCount, &r.Size, &r.NumTrials, &seed,
		&r.Workers, &r.GeometryPolicy, &r.Outcome, &params, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	if seed.Valid {
		v, err := strconv.ParseUint(seed.String, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad seed %q: %w", r.RunID, seed.String, err)
		}
		r.Seed = &v
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	return &r, nil
}

// GetRun returns a single run by id.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 means all.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTrials returns a run's trials in trial order.
func (s *RunStore) ListTrials(runID string) ([]*Trial, error) {
	rows, err := s.db.Query(`
		SELECT run_id, trial_index, offset_x, offset_y, grid_cols, grid_rows, cells, state,
		       total_cost, mean_cost, max_cost, output_path, error, duration_ns
		FROM trials
		WHERE run_id = ?
		ORDER BY trial_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []*Trial
	for rows.Next() {
		var t Trial
		var total, mean, maxCost sql.NullFloat64
		var outputPath, errText sql.NullString
		if err := rows.Scan(
			&t.RunID, &t.TrialIndex, &t.OffsetX, &t.OffsetY, &t.Columns, &t.Rows, &t.Cells, &t.State,
			&total, &mean, &maxCost, &outputPath, &errText, &t.DurationNS,
		); err != nil {
			return nil, err
		}
		if total.Valid {
			t.TotalCost = &total.Float64
		}
		if mean.Valid {
			t.MeanCost = &mean.Float64
		}
		if maxCost.Valid {
			t.MaxCost = &maxCost.Float64
		}
		t.OutputPath = outputPath.String
		t.Error = errText.String
		out = append(out, &t)
	}
	return out, rows.Err()
}
