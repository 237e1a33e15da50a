package rrd

import "math"

// FetchRequest is a builder for one fetch: consolidation function, time
// window and desired resolution.
type FetchRequest struct {
	db         *Database
	cf         CFunc
	start, end int64
	resolution int32
}

// CreateFetchRequest returns a new FetchRequest bound to db.
func (db *Database) CreateFetchRequest(cf CFunc, start, end int64, resolution int32) *FetchRequest {
	return &FetchRequest{db: db, cf: cf, start: start, end: end, resolution: resolution}
}

// FetchResult is the rectangular result of a Fetch: one row per output
// timestamp, one column per data source, NaN preserved verbatim.
type FetchResult struct {
	Start      int64
	End        int64
	Step       int32
	DSNames    []string
	Rows       [][]float64 // Rows[i][ds]
}

// Fetch executes the request: selects the best archive, snaps the window
// to the archive's step and reads wrapped rows.
func (r *FetchRequest) Fetch() (*FetchResult, error) {
	db := r.db
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if r.start >= r.end {
		return nil, newErr(KindDefinitionError, "fetch start %d must be before end %d", r.start, r.end)
	}
	if r.resolution < 1 {
		return nil, newErr(KindDefinitionError, "fetch resolution must be >= 1, got %d", r.resolution)
	}

	step, err := db.header.Step()
	if err != nil {
		return nil, db.poison(err)
	}
	lut, err := db.header.LastUpdateTime()
	if err != nil {
		return nil, db.poison(err)
	}

	arc, archStep, err := selectArchive(db, r.cf, r.start, r.end, r.resolution, step, lut)
	if err != nil {
		return nil, err
	}

	tStart := floorTo(r.start, archStep)
	tEnd := ceilTo(r.end, archStep)
	rowsOut := (tEnd-tStart)/archStep + 1

	currentRow, err := arc.CurrentRow()
	if err != nil {
		return nil, db.poison(err)
	}
	rows, err := arc.Rows()
	if err != nil {
		return nil, db.poison(err)
	}
	archiveEnd := floorTo(lut, archStep)

	dsCount := len(db.dss)
	names := make([]string, dsCount)
	for i, ds := range db.dss {
		n, err := ds.Name()
		if err != nil {
			return nil, db.poison(err)
		}
		names[i] = n
	}

	result := &FetchResult{
		Start:   tStart,
		End:     tEnd,
		Step:    int32(archStep),
		DSNames: names,
		Rows:    make([][]float64, rowsOut),
	}

	for i := int64(0); i < rowsOut; i++ {
		ti := tStart + i*archStep
		k := (archiveEnd - ti) / archStep
		row := make([]float64, dsCount)
		if k < 0 || k >= int64(rows) {
			for ds := range row {
				row[ds] = math.NaN()
			}
		} else {
			idx := wrapIndex(int64(currentRow)-k, int64(rows))
			for ds := range row {
				v, err := arc.Robin().Get(int(idx), ds)
				if err != nil {
					return nil, db.poison(err)
				}
				row[ds] = v
			}
		}
		result.Rows[i] = row
	}

	return result, nil
}

func wrapIndex(i, n int64) int64 {
	m := i % n
	if m < 0 {
		m += n
	}
	return m
}

func floorTo(t, step int64) int64 {
	if t >= 0 {
		return (t / step) * step
	}
	q := t / step
	if t%step != 0 {
		q--
	}
	return q * step
}

func ceilTo(t, step int64) int64 {
	f := floorTo(t, step)
	if f == t {
		return f
	}
	return f + step
}

type candidate struct {
	arc      *Archive
	archStep int64
	archEnd  int64
	archStart int64
	overlap  int64
	full     bool
}

// selectArchive implements the archive-selection rule from spec.md §4.4.
func selectArchive(db *Database, cf CFunc, start, end int64, resolution int32, step int32, lut int64) (*Archive, int64, error) {
	var full, partial []candidate

	for _, arc := range db.archives {
		arcCF, err := arc.ConsolidationFunction()
		if err != nil {
			return nil, 0, db.poison(err)
		}
		if arcCF != cf {
			continue
		}
		steps, err := arc.Steps()
		if err != nil {
			return nil, 0, db.poison(err)
		}
		rows, err := arc.Rows()
		if err != nil {
			return nil, 0, db.poison(err)
		}
		archStep := int64(step) * int64(steps)
		archEnd := floorTo(lut, archStep)
		archStart := archEnd - archStep*int64(rows)

		c := candidate{arc: arc, archStep: archStep, archEnd: archEnd, archStart: archStart}
		if archStart <= start && end <= archEnd {
			c.full = true
			full = append(full, c)
			continue
		}
		lo := max64(archStart, start)
		hi := min64(archEnd, end)
		if hi > lo {
			c.overlap = hi - lo
			partial = append(partial, c)
		}
	}

	if len(full) == 0 && len(partial) == 0 {
		return nil, 0, newErr(KindNoMatchingArchive, "no archive with consolidation function %s covers [%d,%d]", cf, start, end)
	}

	if len(full) > 0 {
		best := full[0]
		bestDiff := absInt64(int64(resolution) - best.archStep)
		for _, c := range full[1:] {
			d := absInt64(int64(resolution) - c.archStep)
			if d < bestDiff {
				best, bestDiff = c, d
			}
		}
		return best.arc, best.archStep, nil
	}

	best := partial[0]
	for _, c := range partial[1:] {
		if c.overlap > best.overlap {
			best = c
		}
	}
	return best.arc, best.archStep, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
