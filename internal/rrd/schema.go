package rrd

import (
	"math"

	"github.com/wellsgz/rrdb/internal/cell"
	"github.com/wellsgz/rrdb/internal/layout"
)

// DSType is a DataSource's reading kind, controlling how a raw reading is
// converted to a rate in the update engine.
type DSType string

const (
	Gauge    DSType = "GAUGE"
	Counter  DSType = "COUNTER"
	Derive   DSType = "DERIVE"
	Absolute DSType = "ABSOLUTE"
)

func parseDSType(s string) (DSType, bool) {
	switch DSType(s) {
	case Gauge, Counter, Derive, Absolute:
		return DSType(s), true
	}
	return "", false
}

// ParseDSType validates s against the known DSType values, for callers
// (xmldump, the definition-string parser) outside this package.
func ParseDSType(s string) (DSType, bool) { return parseDSType(s) }

// CFunc is an Archive's consolidation function.
type CFunc string

const (
	Average CFunc = "AVERAGE"
	Min     CFunc = "MIN"
	Max     CFunc = "MAX"
	Last    CFunc = "LAST"
	First   CFunc = "FIRST"
	Total   CFunc = "TOTAL"
)

func parseCFunc(s string) (CFunc, bool) {
	switch CFunc(s) {
	case Average, Min, Max, Last, First, Total:
		return CFunc(s), true
	}
	return "", false
}

// ParseCFunc validates s against the known CFunc values, for callers
// (xmldump, the definition-string parser) outside this package.
func ParseCFunc(s string) (CFunc, bool) { return parseCFunc(s) }

// Header wraps the fixed leading block of an RRD file: step, counts and
// the last-update clock.
type Header struct {
	store Store
	lay   *layout.File
	order cell.Order

	dsCount cell.Int32
	arcCnt  cell.Int32
	step    cell.Int32
	lut     cell.Int32
	lutUs   *cell.Int32
}

func newHeader(s Store, lay *layout.File, order cell.Order) *Header {
	h := &Header{
		store:   s,
		lay:     lay,
		order:   order,
		dsCount: cell.NewInt32(s, lay.DSCountOffset, lay.IntSlot(), order),
		arcCnt:  cell.NewInt32(s, lay.ArcCountOffset, lay.IntSlot(), order),
		step:    cell.NewInt32(s, lay.StepOffset, lay.IntSlot(), order),
		lut:     cell.NewInt32(s, lay.LastUpdateOffset, lay.IntSlot(), order),
	}
	if lay.Version3 {
		c := cell.NewInt32(s, lay.LastUpdateUs, lay.IntSlot(), order)
		h.lutUs = &c
	}
	return h
}

func (h *Header) Step() (int32, error) { return h.step.Get() }

func (h *Header) DSCount() (int32, error) { return h.dsCount.Get() }

func (h *Header) ArchiveCount() (int32, error) { return h.arcCnt.Get() }

func (h *Header) LastUpdateTime() (int64, error) {
	v, err := h.lut.Get()
	return int64(v), err
}

func (h *Header) SetLastUpdateTime(t int64) error { return h.lut.Set(int32(t)) }

func (h *Header) LastUpdateMicros() (int32, error) {
	if h.lutUs == nil {
		return 0, nil
	}
	return h.lutUs.Get()
}

func (h *Header) SetLastUpdateMicros(us int32) error {
	if h.lutUs == nil {
		return nil
	}
	return h.lutUs.Set(us)
}

// DataSource wraps one DS descriptor plus its PDP-prep state.
type DataSource struct {
	store Store
	idx   int

	name      cell.String
	dstype    cell.String
	heartbeat cell.Int32
	min       cell.Float64
	max       cell.Float64

	lastReading cell.String
	nanSeconds  cell.Int32
	accumulated cell.Float64
}

func newDataSource(s Store, lay *layout.File, i int, order cell.Order) *DataSource {
	return &DataSource{
		store:       s,
		idx:         i,
		name:        cell.NewString(s, lay.DSNameOffset(i), 20),
		dstype:      cell.NewString(s, lay.DSTypeOffset(i), 20),
		heartbeat:   cell.NewInt32(s, lay.DSHeartbeatOffset(i), lay.IntSlot(), order),
		min:         cell.NewFloat64(s, lay.DSMinOffset(i), order),
		max:         cell.NewFloat64(s, lay.DSMaxOffset(i), order),
		lastReading: cell.NewString(s, lay.PDPLastReadingOffset(i), 30),
		nanSeconds:  cell.NewInt32(s, lay.PDPUnknownSecOffset(i), lay.IntSlot(), order),
		accumulated: cell.NewFloat64(s, lay.PDPValueOffset(i), order),
	}
}

func (d *DataSource) Index() int { return d.idx }

func (d *DataSource) Name() (string, error) { return d.name.Get() }

func (d *DataSource) Type() (DSType, error) {
	s, err := d.dstype.Get()
	if err != nil {
		return "", err
	}
	t, ok := parseDSType(s)
	if !ok {
		return "", newErr(KindInvalidFormat, "unknown data source type %q", s)
	}
	return t, nil
}

func (d *DataSource) Heartbeat() (int32, error) { return d.heartbeat.Get() }

func (d *DataSource) Min() (float64, error) { return d.min.Get() }

func (d *DataSource) Max() (float64, error) { return d.max.Get() }

func (d *DataSource) LastReading() (string, error) { return d.lastReading.Get() }

func (d *DataSource) SetLastReading(v string) error { return d.lastReading.Set(v) }

func (d *DataSource) NanSeconds() (int32, error) { return d.nanSeconds.Get() }

func (d *DataSource) SetNanSeconds(v int32) error { return d.nanSeconds.Set(v) }

func (d *DataSource) Accumulated() (float64, error) { return d.accumulated.Get() }

func (d *DataSource) SetAccumulated(v float64) error { return d.accumulated.Set(v) }

// ArcState is one archive's per-DS in-progress CDP.
type ArcState struct {
	accumulated cell.Float64
	nanSteps    cell.Int32
}

func newArcState(s Store, lay *layout.File, arcIdx, dsIdx int, order cell.Order) *ArcState {
	return &ArcState{
		accumulated: cell.NewFloat64(s, lay.CDPValueOffset(arcIdx, dsIdx), order),
		nanSteps:    cell.NewInt32(s, lay.CDPUnknownDatapointsOffset(arcIdx, dsIdx), lay.IntSlot(), order),
	}
}

func (a *ArcState) Accumulated() (float64, error) { return a.accumulated.Get() }

func (a *ArcState) SetAccumulated(v float64) error { return a.accumulated.Set(v) }

func (a *ArcState) NanSteps() (int32, error) { return a.nanSteps.Get() }

func (a *ArcState) SetNanSteps(v int32) error { return a.nanSteps.Set(v) }

// Robin is the ring-buffer view over one archive's double array.
type Robin struct {
	store   Store
	lay     *layout.File
	arcIdx  int
	dsCount int
	rows    int
	order   cell.Order
}

func newRobin(s Store, lay *layout.File, arcIdx, dsCount, rows int, order cell.Order) *Robin {
	return &Robin{store: s, lay: lay, arcIdx: arcIdx, dsCount: dsCount, rows: rows, order: order}
}

// Get reads the value for data source ds at logical row i (0 <= i < rows).
func (r *Robin) Get(i, ds int) (float64, error) {
	c := cell.NewFloat64(r.store, r.lay.RingValueOffset(r.arcIdx, i, ds), r.order)
	return c.Get()
}

// Set writes the value for data source ds at logical row i.
func (r *Robin) Set(i, ds int, v float64) error {
	c := cell.NewFloat64(r.store, r.lay.RingValueOffset(r.arcIdx, i, ds), r.order)
	return c.Set(v)
}

// Archive wraps one RRA descriptor, its per-DS ArcStates and its Robin.
type Archive struct {
	store  Store
	idx    int
	lay    *layout.File
	order  cell.Order
	states []*ArcState
	robin  *Robin

	cf         cell.String
	rows       cell.Int32
	pdpPerRow  cell.Int32
	xff        cell.Float64
	currentRow cell.Int32
}

func newArchive(s Store, lay *layout.File, j, dsCount int, order cell.Order) *Archive {
	a := &Archive{
		store:      s,
		idx:        j,
		lay:        lay,
		order:      order,
		cf:         cell.NewString(s, lay.ArchiveCFOffset(j), 20),
		rows:       cell.NewInt32(s, lay.ArchiveRowsOffset(j), lay.IntSlot(), order),
		pdpPerRow:  cell.NewInt32(s, lay.ArchivePDPPerRowOffset(j), lay.IntSlot(), order),
		xff:        cell.NewFloat64(s, lay.ArchiveXFFOffset(j), order),
		currentRow: cell.NewInt32(s, lay.CurrentRowOffset(j), lay.IntSlot(), order),
	}
	a.states = make([]*ArcState, dsCount)
	for i := 0; i < dsCount; i++ {
		a.states[i] = newArcState(s, lay, j, i, order)
	}
	a.robin = newRobin(s, lay, j, dsCount, lay.Rows[j], order)
	return a
}

func (a *Archive) Index() int { return a.idx }

func (a *Archive) ConsolidationFunction() (CFunc, error) {
	s, err := a.cf.Get()
	if err != nil {
		return "", err
	}
	cf, ok := parseCFunc(s)
	if !ok {
		return "", newErr(KindInvalidFormat, "unknown consolidation function %q", s)
	}
	return cf, nil
}

func (a *Archive) Steps() (int32, error) { return a.pdpPerRow.Get() }

func (a *Archive) Rows() (int32, error) { return a.rows.Get() }

func (a *Archive) XFF() (float64, error) { return a.xff.Get() }

func (a *Archive) CurrentRow() (int32, error) { return a.currentRow.Get() }

func (a *Archive) SetCurrentRow(v int32) error { return a.currentRow.Set(v) }

func (a *Archive) State(ds int) *ArcState { return a.states[ds] }

func (a *Archive) Robin() *Robin { return a.robin }

// isUnknownDouble reports whether a ring value represents "no data".
func isUnknownDouble(v float64) bool { return math.IsNaN(v) }
