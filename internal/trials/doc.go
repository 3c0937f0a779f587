// Package trials drives repeated randomized tilings of one source set.
//
// Each trial samples a phase offset, builds a hexagon grid, checks the grid
// has enough cells, assigns sources to cells and merges attributes, then
// hands the result to a Sink. Trials share nothing but read-only access to
// the source collection, so they may run concurrently.
//
// Per-trial state machine:
//
//	SampleOffset → BuildGrid → CheckFeasible → AssignAndMerge → Done
//	                                  └──────→ Skipped
//
// with Failed reachable from BuildGrid and AssignAndMerge.
package trials
