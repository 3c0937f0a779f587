package trials

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/merge"
)

// ErrInvalidOptions is returned by Run for unusable options.
var ErrInvalidOptions = errors.New("invalid trial options")

// State is the position of a trial in its state machine.
type State int

const (
	StateSampleOffset State = iota
	StateBuildGrid
	StateCheckFeasible
	StateAssignAndMerge
	StateDone
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSampleOffset:
		return "sample_offset"
	case StateBuildGrid:
		return "build_grid"
	case StateCheckFeasible:
		return "check_feasible"
	case StateAssignAndMerge:
		return "assign_and_merge"
	case StateDone:
		return "done"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome summarises a whole run.
type Outcome int

const (
	// OutcomeComplete: every trial produced an assigned grid.
	OutcomeComplete Outcome = iota
	// OutcomePartial: some trials produced grids, others were skipped or failed.
	OutcomePartial
	// OutcomeNoneFeasible: every trial was skipped for lack of grid cells.
	OutcomeNoneFeasible
	// OutcomeNoneSucceeded: no trial produced a grid and at least one failed.
	OutcomeNoneSucceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomePartial:
		return "partial"
	case OutcomeNoneFeasible:
		return "none_feasible"
	case OutcomeNoneSucceeded:
		return "none_succeeded"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// TrialContext is the explicit per-trial input: nothing else varies
// between trials of one run.
type TrialContext struct {
	Index  int // 1-based
	Offset hexgrid.Offset
}

// TrialError attaches the trial index to a skipped or failed trial's cause.
type TrialError struct {
	Trial int
	Err   error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("trial %d: %v", e.Trial, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }

// TrialResult is the write-once output slot of one trial.
type TrialResult struct {
	Index      int
	Offset     hexgrid.Offset
	State      State
	Sources    int
	Cells      int
	Columns    int
	Rows       int
	Assigned   *merge.AssignedGrid
	TotalCost  float64
	MeanCost   float64
	MaxCost    float64
	OutputPath string
	Duration   time.Duration
	Err        error // *TrialError for skipped and failed trials
}

// Report collects every trial of a run in index order.
type Report struct {
	Trials  []TrialResult
	Outcome Outcome
}

// Assigned returns the grids of successful trials in trial order.
func (r *Report) Assigned() []*merge.AssignedGrid {
	var out []*merge.AssignedGrid
	for _, t := range r.Trials {
		if t.State == StateDone {
			out = append(out, t.Assigned)
		}
	}
	return out
}

// Counts tallies trials by terminal state.
func (r *Report) Counts() (done, skipped, failed int) {
	for _, t := range r.Trials {
		switch t.State {
		case StateDone:
			done++
		case StateSkipped:
			skipped++
		case StateFailed:
			failed++
		}
	}
	return done, skipped, failed
}

// Best returns the successful trial with the lowest total cost, or nil.
func (r *Report) Best() *TrialResult {
	var best *TrialResult
	for i := range r.Trials {
		t := &r.Trials[i]
		if t.State != StateDone {
			continue
		}
		if best == nil || t.TotalCost < best.TotalCost {
			best = t
		}
	}
	return best
}

func outcomeOf(done, skipped, failed, total int) Outcome {
	switch {
	case done == total:
		return OutcomeComplete
	case done > 0:
		return OutcomePartial
	case failed == 0 && skipped == total:
		return OutcomeNoneFeasible
	default:
		return OutcomeNoneSucceeded
	}
}
