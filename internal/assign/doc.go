// Package assign matches source polygons to grid cells one-to-one so the
// summed centroid distance is minimal.
//
// Responsibilities: centroid extraction, the dense Euclidean cost matrix
// and an exact rectangular assignment solve. Key types: CostMatrix,
// Assignment, Match. Greedy or nearest-neighbour matching is not offered;
// every result here is optimal for its cost matrix.
//
// Distances are taken in whatever planar CRS the caller supplies. Callers
// must reproject geographic coordinates before building a matrix.
package assign
