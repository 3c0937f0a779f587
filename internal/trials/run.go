package trials

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/hextile/internal/assign"
	"github.com/banshee-data/hextile/internal/features"
	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/merge"
	"github.com/banshee-data/hextile/internal/monitoring"
	"github.com/banshee-data/hextile/internal/timeutil"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// Sink persists the assigned grid of a successful trial and returns where
// it went. Implementations must be safe for concurrent use when
// Options.Workers > 1.
type Sink interface {
	Persist(ctx context.Context, trial int, grid *merge.AssignedGrid) (string, error)
}

// Options configures a run.
type Options struct {
	Size           float64
	NumTrials      int
	Workers        int // <= 0 means 1
	Sampler        OffsetSampler
	GeometryPolicy merge.GeometryPolicy
	Clock          timeutil.Clock // nil means the wall clock

	// Assign solves one trial's assignment. Nil means assign.Assign.
	Assign func(sources *features.Collection, grid *hexgrid.Grid) (*assign.Assignment, error)
}

func (o Options) validate() error {
	if !(o.Size > 0) {
		return fmt.Errorf("%w: size must be positive, got %v", ErrInvalidOptions, o.Size)
	}
	if o.NumTrials < 1 {
		return fmt.Errorf("%w: num_trials must be at least 1, got %d", ErrInvalidOptions, o.NumTrials)
	}
	if o.Sampler == nil {
		return fmt.Errorf("%w: no offset sampler", ErrInvalidOptions)
	}
	return nil
}

// Run executes opts.NumTrials independent trials over sources. Skipped and
// failed trials are recorded in the report, not returned as errors; the
// returned error is non-nil only for invalid options or cancellation, in
// which case the partial report is still returned.
func Run(ctx context.Context, sources *features.Collection, opts Options, sink Sink) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if sources == nil {
		return nil, fmt.Errorf("%w: nil source collection", ErrInvalidOptions)
	}
	extent := sources.Bound()

	// Offsets are drawn up front so the run depends only on the sampler,
	// not on scheduling.
	contexts := make([]TrialContext, opts.NumTrials)
	results := make([]TrialResult, opts.NumTrials)
	for i := range contexts {
		contexts[i] = TrialContext{Index: i + 1, Offset: opts.Sampler.Sample(opts.Size)}
		results[i] = TrialResult{
			Index:   contexts[i].Index,
			Offset:  contexts[i].Offset,
			State:   StateSampleOffset,
			Sources: sources.Len(),
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	monitoring.Debugf("running %d trials with %d workers, size=%v, %d sources", opts.NumTrials, workers, opts.Size, sources.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range contexts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			runTrial(gctx, contexts[i], sources, extent, opts, sink, &results[i])
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Trials: results}
	done, skipped, failed := report.Counts()
	report.Outcome = outcomeOf(done, skipped, failed, len(results))
	if err := ctx.Err(); err != nil {
		return report, err
	}
	monitoring.Logf("%d trials: %d done, %d skipped, %d failed (%s)", len(results), done, skipped, failed, report.Outcome)
	return report, nil
}

func runTrial(ctx context.Context, tc TrialContext, sources *features.Collection, extent orb.Bound, opts Options, sink Sink, res *TrialResult) {
	clock := timeutil.OrReal(opts.Clock)
	start := clock.Now()
	defer func() { res.Duration = clock.Since(start) }()

	fail := func(err error) {
		res.State = StateFailed
		res.Err = &TrialError{Trial: tc.Index, Err: err}
		monitoring.Logf("Trial %d failed: %v", tc.Index, err)
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	res.State = StateBuildGrid
	grid, err := hexgrid.BuildGrid(extent, opts.Size, tc.Offset)
	if err != nil {
		fail(err)
		return
	}
	res.Cells, res.Columns, res.Rows = grid.Len(), grid.Columns, grid.Rows
	monitoring.Debugf("trial %d: offset=(%.3f, %.3f) grid %dx%d = %d cells", tc.Index, tc.Offset.X, tc.Offset.Y, grid.Columns, grid.Rows, grid.Len())

	res.State = StateCheckFeasible
	if grid.Len() < sources.Len() {
		skip(res, tc.Index, &assign.InfeasibleGridError{Sources: sources.Len(), Cells: grid.Len()})
		return
	}

	res.State = StateAssignAndMerge
	solve := opts.Assign
	if solve == nil {
		solve = assign.Assign
	}
	a, err := solve(sources, grid)
	if err != nil {
		var inf *assign.InfeasibleGridError
		if errors.As(err, &inf) {
			skip(res, tc.Index, inf)
			return
		}
		fail(err)
		return
	}
	assigned, err := merge.Merge(sources, grid, a, opts.GeometryPolicy)
	if err != nil {
		fail(err)
		return
	}
	res.Assigned = assigned
	res.TotalCost = a.TotalCost
	res.MeanCost = a.MeanCost()
	res.MaxCost = a.MaxCost()

	if sink != nil {
		path, err := sink.Persist(ctx, tc.Index, assigned)
		if err != nil {
			fail(err)
			return
		}
		res.OutputPath = path
	}
	res.State = StateDone
}

func skip(res *TrialResult, trial int, cause *assign.InfeasibleGridError) {
	res.State = StateSkipped
	res.Err = &TrialError{Trial: trial, Err: cause}
	monitoring.Logf("Trial %d: not enough grid cells (%d cells for %d polygons), skipping", trial, cause.Cells, cause.Sources)
}
