// Package merge reattaches source attributes to the hexagons they were
// assigned, producing one output polygon set per trial.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/hextile/internal/assign"
	"github.com/banshee-data/hextile/internal/features"
	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/monitoring"
)

// GeometryField is the name of the single geometry column of an output set.
const GeometryField = "geometry"

// GeometryPolicy controls what happens to geometry-valued source attributes.
type GeometryPolicy int

const (
	// PolicyDrop removes geometry-valued attribute columns from the output.
	PolicyDrop GeometryPolicy = iota
	// PolicyStrict rejects any geometry-valued attribute column.
	PolicyStrict
)

func (p GeometryPolicy) String() string {
	switch p {
	case PolicyDrop:
		return "drop"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("GeometryPolicy(%d)", int(p))
	}
}

// ParseGeometryPolicy maps a config string onto a GeometryPolicy.
func ParseGeometryPolicy(s string) (GeometryPolicy, error) {
	switch strings.ToLower(s) {
	case "", "drop":
		return PolicyDrop, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown geometry policy %q (want drop or strict)", s)
	}
}

// SchemaConflictError reports a source attribute that would compete with
// the output geometry column and cannot be dropped unambiguously.
type SchemaConflictError struct {
	Field  string
	Source int // first source polygon carrying the field
	Reason string
}

func (e *SchemaConflictError) Error() string {
	return fmt.Sprintf("schema conflict on attribute %q (source %d): %s", e.Field, e.Source, e.Reason)
}

// Record is one output feature: the matched hexagon plus the attributes of
// the source polygon it stands in for.
type Record struct {
	Source     int
	CellIndex  int
	Cell       hexgrid.HexCell
	Cost       float64
	Attributes map[string]interface{}
}

// AssignedGrid is the output polygon set of one trial, one record per
// source polygon in source order.
type AssignedGrid struct {
	Records       []Record
	Fields        []string // attribute schema, sorted
	DroppedFields []string // geometry-valued attributes removed under PolicyDrop
	CRS           string
	TotalCost     float64
}

// Len returns the number of records.
func (g *AssignedGrid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Records)
}

// Merge builds the output set for one assignment. The geometry of record i
// is the hexagon assigned to source polygon i; its attributes are copied
// verbatim from that polygon, minus any dropped geometry-valued columns.
func Merge(sources *features.Collection, grid *hexgrid.Grid, a *assign.Assignment, policy GeometryPolicy) (*AssignedGrid, error) {
	if len(a.Matches) != sources.Len() {
		return nil, fmt.Errorf("assignment has %d matches for %d source polygons", len(a.Matches), sources.Len())
	}

	fields, dropped, err := resolveSchema(sources, policy)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		monitoring.Logf("merge: dropping geometry-valued attributes %v", dropped)
	}
	skip := make(map[string]bool, len(dropped))
	for _, f := range dropped {
		skip[f] = true
	}

	out := &AssignedGrid{
		Records:       make([]Record, sources.Len()),
		Fields:        fields,
		DroppedFields: dropped,
		CRS:           sources.CRS,
		TotalCost:     a.TotalCost,
	}
	filled := make([]bool, sources.Len())
	for _, m := range a.Matches {
		if m.Source < 0 || m.Source >= sources.Len() || filled[m.Source] {
			return nil, fmt.Errorf("assignment has invalid or repeated source index %d", m.Source)
		}
		if m.Cell < 0 || m.Cell >= grid.Len() {
			return nil, fmt.Errorf("assignment references cell %d of a %d-cell grid", m.Cell, grid.Len())
		}
		filled[m.Source] = true

		src := sources.Polygons[m.Source].Attributes
		attrs := make(map[string]interface{}, len(src))
		for k, v := range src {
			if !skip[k] {
				attrs[k] = v
			}
		}
		out.Records[m.Source] = Record{
			Source:     m.Source,
			CellIndex:  m.Cell,
			Cell:       grid.Cells[m.Cell],
			Cost:       m.Cost,
			Attributes: attrs,
		}
	}
	return out, nil
}

// resolveSchema walks every attribute column once and decides which
// columns survive. A column is geometry-valued when every non-nil value in
// it is a geometry; a column mixing geometry and other values is a
// conflict under any policy, as is a non-geometry column that reuses the
// reserved geometry column name.
func resolveSchema(sources *features.Collection, policy GeometryPolicy) (fields, dropped []string, err error) {
	type column struct {
		first    int
		geometry int
		other    int
	}
	cols := make(map[string]*column)
	for i, p := range sources.Polygons {
		for k, v := range p.Attributes {
			c, ok := cols[k]
			if !ok {
				c = &column{first: i}
				cols[k] = c
			}
			switch {
			case v == nil:
			case IsGeometryValue(v):
				c.geometry++
			default:
				c.other++
			}
		}
	}

	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		c := cols[name]
		switch {
		case c.geometry > 0 && c.other > 0:
			return nil, nil, &SchemaConflictError{Field: name, Source: c.first, Reason: "column mixes geometry and non-geometry values"}
		case c.geometry > 0 && policy == PolicyStrict:
			return nil, nil, &SchemaConflictError{Field: name, Source: c.first, Reason: "geometry-valued attribute not allowed under strict policy"}
		case c.geometry > 0:
			dropped = append(dropped, name)
		case strings.EqualFold(name, GeometryField):
			return nil, nil, &SchemaConflictError{Field: name, Source: c.first, Reason: "non-geometry attribute uses the reserved geometry column name"}
		default:
			fields = append(fields, name)
		}
	}
	return fields, dropped, nil
}
