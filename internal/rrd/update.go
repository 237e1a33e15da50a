package rrd

import (
	"math"
	"strconv"
	"strings"
)

const (
	wrap32 float64 = 1 << 32
	wrap64 float64 = 1 << 64
)

// Sample is a builder for one update: set a time and a raw reading per
// data source, then call Update. It mirrors the classic
// CreateSample/Update split rather than exposing the mutation as a single
// free function.
type Sample struct {
	db   *Database
	time int64
	raw  []string
}

// CreateSample returns a new Sample bound to db, with every reading
// defaulted to unknown ("U").
func (db *Database) CreateSample() *Sample {
	raw := make([]string, len(db.dss))
	for i := range raw {
		raw[i] = "U"
	}
	return &Sample{db: db, raw: raw}
}

// SetTime sets the sample's timestamp (epoch seconds).
func (s *Sample) SetTime(t int64) *Sample {
	s.time = t
	return s
}

// SetValue sets the raw reading for the data source at idx.
func (s *Sample) SetValue(idx int, raw string) *Sample {
	s.raw[idx] = raw
	return s
}

// SetValueByName sets the raw reading for a named data source.
func (s *Sample) SetValueByName(name, raw string) *Sample {
	for i, ds := range s.db.dss {
		if n, err := ds.Name(); err == nil && n == name {
			s.raw[i] = raw
			return s
		}
	}
	return s
}

// SetValues sets every raw reading at once, in data source order.
func (s *Sample) SetValues(raw ...string) *Sample {
	copy(s.raw, raw)
	return s
}

// Update applies the sample to the database.
func (s *Sample) Update() error {
	return s.db.update(s.time, s.raw)
}

// UpdateString applies the classic "T:v1:v2:...:vN" colon-separated form.
func (db *Database) UpdateString(spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 {
		return newErr(KindUnparseable, "update string %q missing time or values", spec)
	}
	t, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return wrapErr(KindUnparseable, err, "update string %q: bad timestamp", spec)
	}
	return db.update(t, parts[1:])
}

// ParseReading parses one raw reading token: "U" (or empty) means unknown.
func ParseReading(raw string) (float64, error) {
	if raw == "U" || raw == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, newErr(KindUnparseable, "cannot parse reading %q", raw)
	}
	return v, nil
}

// update is the core Sample/Update engine: raw readings -> rates -> PDP
// accumulation -> per-archive CDP consolidation -> ring writes.
func (db *Database) update(t int64, rawReadings []string) error {
	if err := db.checkWritable(); err != nil {
		return err
	}
	if len(rawReadings) != len(db.dss) {
		return newErr(KindWrongDataSourceCount, "got %d readings, want %d", len(rawReadings), len(db.dss))
	}

	prevT, err := db.header.LastUpdateTime()
	if err != nil {
		return db.poison(err)
	}
	dt := t - prevT
	if dt <= 0 {
		return newErr(KindTimeNonMonotonic, "update time %d is not after last update time %d", t, prevT)
	}
	step, err := db.header.Step()
	if err != nil {
		return db.poison(err)
	}

	rates := make([]float64, len(db.dss))
	for i, ds := range db.dss {
		rate, err := computeRate(db, ds, rawReadings[i], float64(dt))
		if err != nil {
			return err
		}
		rates[i] = rate
	}

	prevStepIdx := prevT / int64(step)
	newStepIdx := t / int64(step)

	if newStepIdx == prevStepIdx {
		// Still inside the current PDP window: just accumulate.
		for i, ds := range db.dss {
			if err := accumulate(ds, rates[i], float64(dt)); err != nil {
				return db.poison(err)
			}
		}
	} else {
		boundary := (prevStepIdx + 1) * int64(step)
		dPre := float64(boundary - prevT)
		dPost := float64(t - newStepIdx*int64(step))
		nMiddle := newStepIdx - prevStepIdx - 1

		closePDPs := make([]float64, len(db.dss))
		for i, ds := range db.dss {
			if err := accumulate(ds, rates[i], dPre); err != nil {
				return db.poison(err)
			}
			pdp, err := finalizePDP(ds, step)
			if err != nil {
				return db.poison(err)
			}
			closePDPs[i] = pdp
			if err := ds.SetAccumulated(0); err != nil {
				return db.poison(err)
			}
			if err := ds.SetNanSeconds(0); err != nil {
				return db.poison(err)
			}
		}
		if err := foldPDPIntoArchives(db, prevStepIdx, closePDPs); err != nil {
			return db.poison(err)
		}

		for m := int64(1); m <= nMiddle; m++ {
			if err := foldPDPIntoArchives(db, prevStepIdx+m, rates); err != nil {
				return db.poison(err)
			}
		}

		for i, ds := range db.dss {
			if err := accumulate(ds, rates[i], dPost); err != nil {
				return db.poison(err)
			}
		}
	}

	for i, ds := range db.dss {
		if err := ds.SetLastReading(rawReadings[i]); err != nil {
			return db.poison(err)
		}
	}
	if err := db.header.SetLastUpdateTime(t); err != nil {
		return db.poison(err)
	}
	return nil
}

// computeRate converts one raw reading into a rate per spec.md §4.3.
func computeRate(db *Database, ds *DataSource, rawStr string, dt float64) (float64, error) {
	raw, err := ParseReading(rawStr)
	if err != nil {
		return 0, err
	}

	dsType, err := ds.Type()
	if err != nil {
		return 0, db.poison(err)
	}
	prevRawStr, err := ds.LastReading()
	if err != nil {
		return 0, db.poison(err)
	}

	var rate float64
	switch dsType {
	case Gauge:
		rate = raw
	case Counter:
		rate = counterRate(prevRawStr, raw, dt)
	case Derive:
		rate = deriveRate(prevRawStr, raw, dt)
	case Absolute:
		if math.IsNaN(raw) {
			rate = math.NaN()
		} else {
			rate = raw / dt
		}
	default:
		rate = math.NaN()
	}

	min, err := ds.Min()
	if err != nil {
		return 0, db.poison(err)
	}
	max, err := ds.Max()
	if err != nil {
		return 0, db.poison(err)
	}
	if !math.IsNaN(min) && rate < min {
		rate = math.NaN()
	}
	if !math.IsNaN(max) && rate > max {
		rate = math.NaN()
	}

	heartbeat, err := ds.Heartbeat()
	if err != nil {
		return 0, db.poison(err)
	}
	if dt > float64(heartbeat) {
		rate = math.NaN()
	}

	return rate, nil
}

func counterRate(prevRawStr string, raw, dt float64) float64 {
	if prevRawStr == "" || math.IsNaN(raw) {
		return math.NaN()
	}
	prev, err := strconv.ParseFloat(prevRawStr, 64)
	if err != nil {
		return math.NaN()
	}
	delta := raw - prev
	if delta < 0 {
		if prev < wrap32 {
			delta += wrap32
		} else {
			delta += wrap64
		}
	}
	return delta / dt
}

func deriveRate(prevRawStr string, raw, dt float64) float64 {
	if prevRawStr == "" || math.IsNaN(raw) {
		return math.NaN()
	}
	prev, err := strconv.ParseFloat(prevRawStr, 64)
	if err != nil {
		return math.NaN()
	}
	return (raw - prev) / dt
}

// accumulate folds a duration-weighted contribution into a DS's current
// PDP window.
func accumulate(ds *DataSource, rate, duration float64) error {
	if math.IsNaN(rate) {
		nan, err := ds.NanSeconds()
		if err != nil {
			return err
		}
		return ds.SetNanSeconds(nan + int32(duration))
	}
	acc, err := ds.Accumulated()
	if err != nil {
		return err
	}
	return ds.SetAccumulated(acc + rate*duration)
}

// finalizePDP closes out the current PDP window and resets it.
func finalizePDP(ds *DataSource, step int32) (float64, error) {
	acc, err := ds.Accumulated()
	if err != nil {
		return 0, err
	}
	nan, err := ds.NanSeconds()
	if err != nil {
		return 0, err
	}

	var pdp float64
	if nan >= step {
		pdp = math.NaN()
	} else {
		pdp = acc / float64(step-nan)
	}
	return pdp, nil
}

// foldPDPIntoArchives feeds one emitted PDP row (one value per data
// source, all belonging to absolute primitive-step index stepIdx) into
// every archive's in-progress CDP, finalizing and writing a single ring
// row wherever the archive's cycle completes.
func foldPDPIntoArchives(db *Database, stepIdx int64, pdps []float64) error {
	for _, arc := range db.archives {
		steps, err := arc.Steps()
		if err != nil {
			return err
		}
		cf, err := arc.ConsolidationFunction()
		if err != nil {
			return err
		}

		for i := range db.dss {
			if err := foldCDP(arc.State(i), cf, pdps[i]); err != nil {
				return err
			}
		}

		if stepIdx%int64(steps) == int64(steps)-1 {
			if err := finalizeCDP(arc, cf, steps, len(db.dss)); err != nil {
				return err
			}
		}
	}
	return nil
}

func foldCDP(state *ArcState, cf CFunc, pdp float64) error {
	if math.IsNaN(pdp) {
		n, err := state.NanSteps()
		if err != nil {
			return err
		}
		if err := state.SetNanSteps(n + 1); err != nil {
			return err
		}
		if cf == Last {
			return state.SetAccumulated(math.NaN())
		}
		return nil
	}

	acc, err := state.Accumulated()
	if err != nil {
		return err
	}
	switch cf {
	case Average, Total:
		return state.SetAccumulated(acc + pdp)
	case Min:
		if math.IsNaN(acc) || pdp < acc {
			return state.SetAccumulated(pdp)
		}
		return nil
	case Max:
		if math.IsNaN(acc) || pdp > acc {
			return state.SetAccumulated(pdp)
		}
		return nil
	case First:
		if math.IsNaN(acc) {
			return state.SetAccumulated(pdp)
		}
		return nil
	case Last:
		return state.SetAccumulated(pdp)
	}
	return nil
}

// finalizeCDP closes out the in-progress CDP for every data source of one
// archive, advances current_row exactly once, and writes the new row.
func finalizeCDP(arc *Archive, cf CFunc, steps int32, dsCount int) error {
	xff, err := arc.XFF()
	if err != nil {
		return err
	}
	row, err := arc.CurrentRow()
	if err != nil {
		return err
	}
	rows, err := arc.Rows()
	if err != nil {
		return err
	}
	newRow := (row + 1) % rows

	for i := 0; i < dsCount; i++ {
		state := arc.State(i)
		acc, err := state.Accumulated()
		if err != nil {
			return err
		}
		nan, err := state.NanSteps()
		if err != nil {
			return err
		}

		var final float64
		switch cf {
		case Average:
			if nan >= steps {
				final = math.NaN()
			} else {
				final = acc / float64(steps-nan)
			}
		case Total:
			if nan >= steps {
				final = math.NaN()
			} else {
				final = acc
			}
		default: // Min, Max, First, Last
			final = acc
		}
		if float64(nan)/float64(steps) > xff {
			final = math.NaN()
		}

		if err := arc.Robin().Set(int(newRow), i, final); err != nil {
			return err
		}

		resetVal := math.NaN()
		if cf == Average || cf == Total {
			resetVal = 0
		}
		if err := state.SetAccumulated(resetVal); err != nil {
			return err
		}
		if err := state.SetNanSteps(0); err != nil {
			return err
		}
	}

	return arc.SetCurrentRow(newRow)
}
