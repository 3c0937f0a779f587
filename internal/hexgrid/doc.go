// Package hexgrid builds flat-topped hexagon lattices over a planar
// bounding rectangle.
//
// Responsibilities: single-cell construction (MakeHexagon), lattice
// sizing (Dimensions) and full grid generation with a phase offset
// (BuildGrid). Key types: HexCell, Grid, Offset.
//
// Coordinates are planar and share the linear unit of the size
// parameter. Nothing here reprojects or looks at attributes.
package hexgrid
