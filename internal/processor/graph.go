// Package processor evaluates named virtual series over fetched archive
// data: a series is either sourced directly from a database archive or
// computed from previously declared series via a small RPN expression
// language. It is the "DEF/CDEF" half of RRDtool's graph pipeline, with
// no renderer attached.
package processor

import (
	"fmt"
	"math"

	"github.com/wellsgz/rrdb/internal/rrd"
)

type defKind int

const (
	kindSource defKind = iota
	kindExpr
)

type seriesDef struct {
	kind   defKind
	name   string
	path   string
	dsName string
	cf     rrd.CFunc
	expr   string
}

// Graph is an ordered collection of named series definitions: DEFs
// sourced from an archive, and CDEFs computed from earlier entries in
// the same Graph.
type Graph struct {
	defs []seriesDef
	seen map[string]bool
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{seen: make(map[string]bool)}
}

// AddSource declares name as a series read from (path, dsName, cf).
func (g *Graph) AddSource(name, path, dsName string, cf rrd.CFunc) error {
	if g.seen[name] {
		return fmt.Errorf("processor: series %q already defined", name)
	}
	g.seen[name] = true
	g.defs = append(g.defs, seriesDef{kind: kindSource, name: name, path: path, dsName: dsName, cf: cf})
	return nil
}

// AddExpr declares name as the result of evaluating the RPN expression
// expr over series already declared in this Graph.
func (g *Graph) AddExpr(name, expr string) error {
	if g.seen[name] {
		return fmt.Errorf("processor: series %q already defined", name)
	}
	g.seen[name] = true
	g.defs = append(g.defs, seriesDef{kind: kindExpr, name: name, expr: expr})
	return nil
}

// Result is the outcome of evaluating a Graph: one shared timestamp axis
// plus every declared series resampled onto it.
type Result struct {
	Timestamps []int64
	Step       int64
	Series     map[string][]float64
}

// Opener resolves a database path to an already-open (or newly opened)
// handle; the caller owns its lifecycle.
type Opener func(path string) (*rrd.Database, error)

// Compute fetches every DEF in the graph over [start, end] at the given
// resolution, evaluates every CDEF in declaration order, and returns all
// series aligned to one shared grid (the coarsest of the DEFs actually
// selected, per the fetch engine's own archive-selection rule).
func (g *Graph) Compute(open Opener, start, end int64, resolution int32) (*Result, error) {
	if len(g.defs) == 0 {
		return nil, fmt.Errorf("processor: graph has no series defined")
	}

	fetched := make(map[string]*rrd.FetchResult)
	dsIndex := make(map[string]int)
	var commonStart, commonEnd, commonStep int64
	haveCommon := false

	for _, d := range g.defs {
		if d.kind != kindSource {
			continue
		}
		db, err := open(d.path)
		if err != nil {
			return nil, fmt.Errorf("processor: opening %q for series %q: %w", d.path, d.name, err)
		}
		res, err := db.CreateFetchRequest(d.cf, start, end, resolution).Fetch()
		if err != nil {
			return nil, fmt.Errorf("processor: fetching series %q: %w", d.name, err)
		}
		idx := -1
		for i, n := range res.DSNames {
			if n == d.dsName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("processor: data source %q not found in %q", d.dsName, d.path)
		}
		fetched[d.name] = res
		dsIndex[d.name] = idx

		step := int64(res.Step)
		if !haveCommon || step > commonStep {
			commonStep = step
		}
		if !haveCommon || res.Start < commonStart {
			commonStart = res.Start
		}
		if !haveCommon || res.End > commonEnd {
			commonEnd = res.End
		}
		haveCommon = true
	}
	if !haveCommon {
		return nil, fmt.Errorf("processor: graph has no archive-sourced series")
	}

	timestamps := buildGrid(commonStart, commonEnd, commonStep)
	series := make(map[string][]float64, len(g.defs))

	for _, d := range g.defs {
		switch d.kind {
		case kindSource:
			series[d.name] = resample(fetched[d.name], dsIndex[d.name], timestamps)
		case kindExpr:
			vals, err := evalExpr(d.expr, series, timestamps, commonStep)
			if err != nil {
				return nil, fmt.Errorf("processor: evaluating series %q: %w", d.name, err)
			}
			series[d.name] = vals
		}
	}

	return &Result{Timestamps: timestamps, Step: commonStep, Series: series}, nil
}

// ComputeSeries is the Graph-free entry point: fetch one named-series
// map directly from a set of DEF/CDEF declarations without constructing
// a Graph by hand, the split the query API's fetch handler performs when
// a request carries cdef expressions alongside a plain archive fetch.
func ComputeSeries(open Opener, sources map[string]SourceSpec, cdefs map[string]string, order []string, start, end int64, resolution int32) (*Result, error) {
	g := NewGraph()
	for _, name := range order {
		if src, ok := sources[name]; ok {
			if err := g.AddSource(name, src.Path, src.DSName, src.CF); err != nil {
				return nil, err
			}
			continue
		}
		if expr, ok := cdefs[name]; ok {
			if err := g.AddExpr(name, expr); err != nil {
				return nil, err
			}
			continue
		}
		return nil, fmt.Errorf("processor: series %q named in order but not declared", name)
	}
	return g.Compute(open, start, end, resolution)
}

// SourceSpec names one archive-backed DEF series.
type SourceSpec struct {
	Path   string
	DSName string
	CF     rrd.CFunc
}

func buildGrid(start, end, step int64) []int64 {
	if step <= 0 {
		return nil
	}
	n := (end-start)/step + 1
	if n < 0 {
		n = 0
	}
	grid := make([]int64, n)
	for i := range grid {
		grid[i] = start + int64(i)*step
	}
	return grid
}

// resample maps a fetched result's rows onto grid, filling NaN where the
// grid timestamp doesn't land on one of the source's own rows.
func resample(res *rrd.FetchResult, dsIdx int, grid []int64) []float64 {
	step := int64(res.Step)
	out := make([]float64, len(grid))
	for i, ts := range grid {
		out[i] = math.NaN()
		if step <= 0 {
			continue
		}
		off := ts - res.Start
		if off < 0 || off%step != 0 {
			continue
		}
		rowIdx := int(off / step)
		if rowIdx < 0 || rowIdx >= len(res.Rows) {
			continue
		}
		if dsIdx < 0 || dsIdx >= len(res.Rows[rowIdx]) {
			continue
		}
		out[i] = res.Rows[rowIdx][dsIdx]
	}
	return out
}
