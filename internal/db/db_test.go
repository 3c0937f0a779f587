package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/timeutil"
	"github.com/banshee-data/hextile/internal/trials"
	"github.com/google/uuid"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_Migrated(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("expected version 1 clean, got %d dirty=%v", version, dirty)
	}

	for _, table := range []string{"runs", "trials"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestNewDB_InMemory(t *testing.T) {
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB(:memory:) failed: %v", err)
	}
	defer db.Close()

	store := NewRunStore(db)
	if err := store.InsertRun(&Run{Version: "test", Input: "x.geojson", CRS: "EPSG:3857", Size: 1, NumTrials: 1, Workers: 1, GeometryPolicy: "drop", Outcome: "complete"}); err != nil {
		t.Fatalf("InsertRun on in-memory db failed: %v", err)
	}
	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestMigrateDownUp(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after down, got %d", version)
	}
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	// Already at latest.
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}
}

func TestRecordReport(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)

	seed := uint64(1<<63 + 5)
	run := &Run{
		Version:        "v0.1.0",
		Input:          "zones.geojson",
		CRS:            "EPSG:3857",
		SourceCount:    4,
		Size:           10,
		NumTrials:      3,
		Seed:           &seed,
		Workers:        2,
		GeometryPolicy: "drop",
		ParamsJSON:     []byte(`{"size":10}`),
		StartedAt:      time.Now().UnixNano(),
	}
	report := &trials.Report{
		Outcome: trials.OutcomePartial,
		Trials: []trials.TrialResult{
			{Index: 1, Offset: hexgrid.Offset{X: 1.5, Y: 2.5}, State: trials.StateDone, Columns: 10, Rows: 9, Cells: 90,
				TotalCost: 20, MeanCost: 5, MaxCost: 7, OutputPath: "out/assigned_grid_1.geojson", Duration: time.Millisecond},
			{Index: 2, State: trials.StateSkipped, Cells: 4,
				Err: &trials.TrialError{Trial: 2, Err: errors.New("infeasible grid: 4 cells for 5 source polygons")}},
			{Index: 3, State: trials.StateFailed, Err: &trials.TrialError{Trial: 3, Err: errors.New("disk full")}},
		},
	}

	if err := store.RecordReport(run, report); err != nil {
		t.Fatalf("RecordReport failed: %v", err)
	}
	if _, err := uuid.Parse(run.RunID); err != nil {
		t.Errorf("run id %q is not a uuid: %v", run.RunID, err)
	}

	got, err := store.GetRun(run.RunID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Outcome != "partial" {
		t.Errorf("outcome = %q, want partial", got.Outcome)
	}
	if got.Seed == nil || *got.Seed != seed {
		t.Errorf("seed round trip failed: %v", got.Seed)
	}
	if string(got.ParamsJSON) != `{"size":10}` {
		t.Errorf("params_json = %s", got.ParamsJSON)
	}
	if got.Size != 10 || got.Workers != 2 || got.SourceCount != 4 {
		t.Errorf("unexpected run row: %+v", got)
	}

	rows, err := store.ListTrials(run.RunID)
	if err != nil {
		t.Fatalf("ListTrials failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(rows))
	}
	done := rows[0]
	if done.State != "done" || done.TotalCost == nil || *done.TotalCost != 20 || *done.MaxCost != 7 {
		t.Errorf("unexpected done trial: %+v", done)
	}
	if done.OffsetX != 1.5 || done.Columns != 10 || done.Rows != 9 || done.OutputPath != "out/assigned_grid_1.geojson" {
		t.Errorf("unexpected done trial fields: %+v", done)
	}
	if done.DurationNS != int64(time.Millisecond) {
		t.Errorf("duration = %d", done.DurationNS)
	}
	skipped := rows[1]
	if skipped.State != "skipped" || skipped.TotalCost != nil {
		t.Errorf("unexpected skipped trial: %+v", skipped)
	}
	if skipped.Error != "trial 2: infeasible grid: 4 cells for 5 source polygons" {
		t.Errorf("skipped error = %q", skipped.Error)
	}
	if rows[2].State != "failed" || rows[2].OutputPath != "" {
		t.Errorf("unexpected failed trial: %+v", rows[2])
	}
}

func TestRecordReport_DuplicateRollsBack(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)

	report := &trials.Report{Trials: []trials.TrialResult{
		{Index: 1, State: trials.StateDone},
		{Index: 1, State: trials.StateDone},
	}}
	run := &Run{Version: "v", Input: "in", CRS: "EPSG:3857", GeometryPolicy: "drop"}
	if err := store.RecordReport(run, report); err == nil {
		t.Fatal("expected duplicate trial index to fail")
	}
	if _, err := store.GetRun(run.RunID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("run should have been rolled back, got %v", err)
	}
}

func TestInsertTrial_UnknownRun(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)
	err := store.InsertTrial(&Trial{RunID: "missing", TrialIndex: 1, State: "done"})
	if err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	store := NewRunStore(db)

	for i := 0; i < 3; i++ {
		run := &Run{Version: "v", Input: "in", CRS: "EPSG:3857", GeometryPolicy: "drop", Outcome: "complete", StartedAt: int64(i + 1)}
		if err := store.InsertRun(run); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].StartedAt != 3 || runs[1].StartedAt != 2 {
		t.Errorf("runs not newest first: %d, %d", runs[0].StartedAt, runs[1].StartedAt)
	}
	if runs[0].Seed != nil {
		t.Errorf("expected nil seed, got %v", *runs[0].Seed)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewRunStore(db).GetRun("nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRecordReport_StampsFromClock(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	store := NewRunStore(db).WithClock(timeutil.NewMockClock(now))

	run := &Run{Version: "v", Input: "in", CRS: "EPSG:3857", GeometryPolicy: "drop"}
	if err := store.RecordReport(run, &trials.Report{Outcome: trials.OutcomeNoneFeasible}); err != nil {
		t.Fatalf("RecordReport failed: %v", err)
	}
	got, err := store.GetRun(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StartedAt != now.UnixNano() || got.FinishedAt != now.UnixNano() {
		t.Errorf("timestamps = %d/%d, want %d", got.StartedAt, got.FinishedAt, now.UnixNano())
	}
	if got.Outcome != "none_feasible" {
		t.Errorf("outcome = %q", got.Outcome)
	}
}
