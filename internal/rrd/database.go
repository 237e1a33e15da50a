// Package rrd implements the round-robin database engine described in the
// specification: binary layout, sample/update engine, fetch/query path and
// the public API façade (Create, Open, Close, CreateSample,
// CreateFetchRequest).
package rrd

import (
	"math"
	"strconv"
	"strings"

	"github.com/wellsgz/rrdb/internal/bytestore"
	"github.com/wellsgz/rrdb/internal/cell"
	"github.com/wellsgz/rrdb/internal/layout"
)

// Store is the byte-addressable backend a Database is built on.
type Store = bytestore.Store

const (
	signature = "RRD\x00"

	// CurrentVersion is the version string written by Create. "0001"
	// files are still openable, just without the microsecond companion
	// cell.
	CurrentVersion = "0003"

	floatCookie = 8.642135e130

	createAlignment = 8 // every database this engine creates is 8-byte aligned, host order.
)

// DSDef describes one DataSource at creation time.
type DSDef struct {
	Name      string
	Type      DSType
	Heartbeat int32
	Min       float64 // math.NaN() for unbounded
	Max       float64 // math.NaN() for unbounded
}

// ArchiveDef describes one Archive at creation time.
type ArchiveDef struct {
	CF    CFunc
	XFF   float64
	Steps int32 // primary points per CDP
	Rows  int32 // ring size
}

// Definition is the input to Create.
type Definition struct {
	Path      string // filesystem path, or "memory:<name>" for a named in-memory store
	Step      int32
	StartTime int64
	DSs       []DSDef
	Archives  []ArchiveDef
}

// Database is an open RRD handle.
type Database struct {
	store Store
	lay   *layout.File
	order cell.Order

	header   *Header
	dss      []*DataSource
	archives []*Archive

	path      string
	writable  bool
	closed    bool
	poisoned  error
}

func validateDefinition(def *Definition) error {
	if def.Path == "" {
		return newErr(KindDefinitionError, "path must not be empty")
	}
	if def.Step <= 0 {
		return newErr(KindDefinitionError, "step must be positive, got %d", def.Step)
	}
	if len(def.DSs) == 0 {
		return newErr(KindDefinitionError, "at least one data source is required")
	}
	if len(def.Archives) == 0 {
		return newErr(KindDefinitionError, "at least one archive is required")
	}

	seen := make(map[string]bool, len(def.DSs))
	for _, ds := range def.DSs {
		if ds.Name == "" || len(ds.Name) > 19 {
			return newErr(KindDefinitionError, "data source name %q must be 1-19 ASCII bytes", ds.Name)
		}
		if seen[ds.Name] {
			return newErr(KindDefinitionError, "duplicate data source name %q", ds.Name)
		}
		seen[ds.Name] = true
		switch ds.Type {
		case Gauge, Counter, Derive, Absolute:
		default:
			return newErr(KindDefinitionError, "data source %q: unknown type %q", ds.Name, ds.Type)
		}
		if ds.Heartbeat <= 0 {
			return newErr(KindDefinitionError, "data source %q: heartbeat must be positive", ds.Name)
		}
		if !math.IsNaN(ds.Min) && !math.IsNaN(ds.Max) && ds.Min >= ds.Max {
			return newErr(KindDefinitionError, "data source %q: min must be less than max", ds.Name)
		}
	}

	for i, a := range def.Archives {
		switch a.CF {
		case Average, Min, Max, Last, First, Total:
		default:
			return newErr(KindDefinitionError, "archive %d: unknown consolidation function %q", i, a.CF)
		}
		if a.XFF < 0 || a.XFF >= 1 {
			return newErr(KindDefinitionError, "archive %d: xff must be in [0,1), got %v", i, a.XFF)
		}
		if a.Steps < 1 {
			return newErr(KindDefinitionError, "archive %d: steps must be >= 1", i)
		}
		if a.Rows < 1 {
			return newErr(KindDefinitionError, "archive %d: rows must be >= 1", i)
		}
	}
	return nil
}

// Create lays out and populates a brand new database from def.
func Create(def Definition) (*Database, error) {
	if err := validateDefinition(&def); err != nil {
		return nil, err
	}

	dsCount := len(def.DSs)
	arcCount := len(def.Archives)
	rows := make([]int, arcCount)
	for j, a := range def.Archives {
		rows[j] = int(a.Rows)
	}

	lay := layout.Compute(createAlignment, true, dsCount, arcCount, rows)
	order := cell.LittleEndian

	store, err := openStoreForCreate(def.Path)
	if err != nil {
		return nil, wrapErr(KindStorageError, err, "opening backing store for %q", def.Path)
	}
	if err := store.Truncate(lay.TotalSize); err != nil {
		store.Close()
		return nil, wrapErr(KindStorageError, err, "sizing backing store")
	}

	db := &Database{store: store, lay: lay, order: order, path: def.Path, writable: true}
	if err := db.writeFresh(def, lay, order); err != nil {
		store.Close()
		return nil, err
	}
	db.bindObjects(dsCount, arcCount)
	if err := store.Sync(); err != nil {
		return nil, wrapErr(KindStorageError, err, "initial sync")
	}
	return db, nil
}

func openStoreForCreate(path string) (Store, error) {
	if name, ok := strings.CutPrefix(path, "memory:"); ok {
		return bytestore.OpenNamedMemoryStore(name), nil
	}
	return bytestore.CreateFile(path)
}

func openStoreForOpen(path string, readOnly bool) (Store, error) {
	if name, ok := strings.CutPrefix(path, "memory:"); ok {
		return bytestore.OpenNamedMemoryStore(name), nil
	}
	if readOnly {
		return bytestore.OpenFileReadOnly(path)
	}
	return bytestore.OpenFile(path)
}

// ParseDSDef parses the classic "DS:name:type:heartbeat:min:max" form.
func ParseDSDef(s string) (DSDef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 || parts[0] != "DS" {
		return DSDef{}, newErr(KindUnparseable, "malformed DS definition %q", s)
	}
	dstype, ok := parseDSType(parts[2])
	if !ok {
		return DSDef{}, newErr(KindUnparseable, "DS definition %q: unknown type %q", s, parts[2])
	}
	hb, err := strconv.ParseInt(parts[3], 10, 32)
	if err != nil {
		return DSDef{}, wrapErr(KindUnparseable, err, "DS definition %q: bad heartbeat", s)
	}
	min, err := parseBoundToken(parts[4])
	if err != nil {
		return DSDef{}, wrapErr(KindUnparseable, err, "DS definition %q: bad min", s)
	}
	max, err := parseBoundToken(parts[5])
	if err != nil {
		return DSDef{}, wrapErr(KindUnparseable, err, "DS definition %q: bad max", s)
	}
	return DSDef{Name: parts[1], Type: dstype, Heartbeat: int32(hb), Min: min, Max: max}, nil
}

// ParseArchiveDef parses the classic "RRA:cf:xff:steps:rows" form.
func ParseArchiveDef(s string) (ArchiveDef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "RRA" {
		return ArchiveDef{}, newErr(KindUnparseable, "malformed RRA definition %q", s)
	}
	cf, ok := parseCFunc(parts[1])
	if !ok {
		return ArchiveDef{}, newErr(KindUnparseable, "RRA definition %q: unknown cf %q", s, parts[1])
	}
	xff, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return ArchiveDef{}, wrapErr(KindUnparseable, err, "RRA definition %q: bad xff", s)
	}
	steps, err := strconv.ParseInt(parts[3], 10, 32)
	if err != nil {
		return ArchiveDef{}, wrapErr(KindUnparseable, err, "RRA definition %q: bad steps", s)
	}
	rows, err := strconv.ParseInt(parts[4], 10, 32)
	if err != nil {
		return ArchiveDef{}, wrapErr(KindUnparseable, err, "RRA definition %q: bad rows", s)
	}
	return ArchiveDef{CF: cf, XFF: xff, Steps: int32(steps), Rows: int32(rows)}, nil
}

func parseBoundToken(s string) (float64, error) {
	if s == "U" || s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func normalize(t int64, step int32) int64 {
	s := int64(step)
	return (t / s) * s
}

func (db *Database) writeFresh(def Definition, lay *layout.File, order cell.Order) error {
	s := db.store

	if err := s.WriteAt(0, []byte(signature)); err != nil {
		return wrapErr(KindStorageError, err, "writing signature")
	}
	verBuf := make([]byte, 5)
	copy(verBuf, CurrentVersion)
	if err := s.WriteAt(4, verBuf); err != nil {
		return wrapErr(KindStorageError, err, "writing version")
	}
	cookieCell := cell.NewFloat64(s, lay.CookieOffset, order)
	if err := cookieCell.Set(floatCookie); err != nil {
		return wrapErr(KindStorageError, err, "writing float cookie")
	}

	h := newHeader(s, lay, order)
	if err := h.dsCount.Set(int32(len(def.DSs))); err != nil {
		return wrapErr(KindStorageError, err, "writing ds_count")
	}
	if err := h.arcCnt.Set(int32(len(def.Archives))); err != nil {
		return wrapErr(KindStorageError, err, "writing arc_count")
	}
	if err := h.step.Set(def.Step); err != nil {
		return wrapErr(KindStorageError, err, "writing step")
	}

	lut := normalize(def.StartTime, def.Step)
	if err := h.lut.Set(int32(lut)); err != nil {
		return wrapErr(KindStorageError, err, "writing last_update_time")
	}
	if h.lutUs != nil {
		if err := h.lutUs.Set(0); err != nil {
			return wrapErr(KindStorageError, err, "writing last_update_us")
		}
	}

	for i, d := range def.DSs {
		ds := newDataSource(s, lay, i, order)
		if err := ds.name.Set(d.Name); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] name", i)
		}
		if err := ds.dstype.Set(string(d.Type)); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] type", i)
		}
		if err := ds.heartbeat.Set(d.Heartbeat); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] heartbeat", i)
		}
		if err := ds.min.Set(d.Min); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] min", i)
		}
		if err := ds.max.Set(d.Max); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] max", i)
		}
		if err := ds.lastReading.Set(""); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] last_reading", i)
		}
		if err := ds.nanSeconds.Set(0); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] nan_seconds", i)
		}
		if err := ds.accumulated.Set(0); err != nil {
			return wrapErr(KindStorageError, err, "writing ds[%d] accumulated", i)
		}
	}

	for j, a := range def.Archives {
		arcStep := def.Step * a.Steps
		arc := newArchive(s, lay, j, len(def.DSs), order)
		if err := arc.cf.Set(string(a.CF)); err != nil {
			return wrapErr(KindStorageError, err, "writing archive[%d] cf", j)
		}
		if err := arc.rows.Set(a.Rows); err != nil {
			return wrapErr(KindStorageError, err, "writing archive[%d] rows", j)
		}
		if err := arc.pdpPerRow.Set(a.Steps); err != nil {
			return wrapErr(KindStorageError, err, "writing archive[%d] steps", j)
		}
		if err := arc.xff.Set(a.XFF); err != nil {
			return wrapErr(KindStorageError, err, "writing archive[%d] xff", j)
		}
		if err := arc.currentRow.Set(a.Rows - 1); err != nil {
			return wrapErr(KindStorageError, err, "writing archive[%d] current_row", j)
		}

		initNanSteps := int32((lut - normalize(lut, arcStep)) / int64(def.Step))
		for i := range def.DSs {
			st := newArcState(s, lay, j, i, order)
			if err := st.accumulated.Set(0); err != nil {
				return wrapErr(KindStorageError, err, "writing cdp_prep[%d][%d] value", j, i)
			}
			if err := st.nanSteps.Set(initNanSteps); err != nil {
				return wrapErr(KindStorageError, err, "writing cdp_prep[%d][%d] unknown", j, i)
			}
		}

		robin := newRobin(s, lay, j, len(def.DSs), int(a.Rows), order)
		for r := 0; r < int(a.Rows); r++ {
			for i := range def.DSs {
				if err := robin.Set(r, i, math.NaN()); err != nil {
					return wrapErr(KindStorageError, err, "initializing ring[%d] row %d ds %d", j, r, i)
				}
			}
		}
	}

	return nil
}

func (db *Database) bindObjects(dsCount, arcCount int) {
	db.header = newHeader(db.store, db.lay, db.order)
	db.dss = make([]*DataSource, dsCount)
	for i := 0; i < dsCount; i++ {
		db.dss[i] = newDataSource(db.store, db.lay, i, db.order)
	}
	db.archives = make([]*Archive, arcCount)
	for j := 0; j < arcCount; j++ {
		db.archives[j] = newArchive(db.store, db.lay, j, dsCount, db.order)
	}
}

// Open opens an existing database file for reading and writing.
func Open(path string) (*Database, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing database file for reading only.
func OpenReadOnly(path string) (*Database, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*Database, error) {
	store, err := openStoreForOpen(path, readOnly)
	if err != nil {
		return nil, wrapErr(KindStorageError, err, "opening %q", path)
	}

	prefix := make([]byte, 24)
	n := int64(len(prefix))
	if store.Len() < n {
		n = store.Len()
	}
	if err := store.ReadAt(0, prefix[:n]); err != nil {
		store.Close()
		return nil, wrapErr(KindInvalidFormat, err, "reading header prefix")
	}
	if string(prefix[:4]) != signature {
		store.Close()
		return nil, newErr(KindInvalidFormat, "bad signature %q", prefix[:4])
	}
	version := strings.TrimRight(string(prefix[4:9]), "\x00")
	if version != "0001" && version != "0003" {
		store.Close()
		return nil, newErr(KindUnsupportedVersion, "unsupported version %q", version)
	}

	alignment, bigEndian, err := detectAlignment(prefix)
	if err != nil {
		store.Close()
		return nil, err
	}
	order := cell.LittleEndian
	if bigEndian {
		order = cell.BigEndian
	}
	version3 := version == "0003"

	// Bootstrap layout to locate ds_count/arc_count/step and the archive
	// descriptors (none of those offsets depend on actual row counts).
	boot := layout.Compute(alignment, version3, 0, 0, nil)
	dsCountCell := cell.NewInt32(store, boot.DSCountOffset, boot.IntSlot(), order)
	arcCountCell := cell.NewInt32(store, boot.ArcCountOffset, boot.IntSlot(), order)
	dsCount32, err := dsCountCell.Get()
	if err != nil {
		store.Close()
		return nil, wrapErr(KindStorageError, err, "reading ds_count")
	}
	arcCount32, err := arcCountCell.Get()
	if err != nil {
		store.Close()
		return nil, wrapErr(KindStorageError, err, "reading arc_count")
	}
	dsCount, arcCount := int(dsCount32), int(arcCount32)

	descLay := layout.Compute(alignment, version3, dsCount, arcCount, make([]int, arcCount))
	rows := make([]int, arcCount)
	for j := 0; j < arcCount; j++ {
		rowsCell := cell.NewInt32(store, descLay.ArchiveRowsOffset(j), descLay.IntSlot(), order)
		r, err := rowsCell.Get()
		if err != nil {
			store.Close()
			return nil, wrapErr(KindStorageError, err, "reading archive[%d] rows", j)
		}
		rows[j] = int(r)
	}

	lay := layout.Compute(alignment, version3, dsCount, arcCount, rows)
	if store.Len() < lay.TotalSize {
		store.Close()
		return nil, newErr(KindInvalidFormat, "file too short: have %d bytes, want %d", store.Len(), lay.TotalSize)
	}

	db := &Database{store: store, lay: lay, order: order, path: path, writable: !readOnly}
	db.bindObjects(dsCount, arcCount)
	return db, nil
}

// detectAlignment classifies the 24-byte header prefix into an alignment
// (4 or 8) and a byte order, per the four legacy {32,64-bit}x{LE,BE}
// variants the spec requires the engine to recognize on read.
func detectAlignment(prefix []byte) (alignment int, bigEndian bool, err error) {
	if len(prefix) < 24 {
		return 0, false, newErr(KindInvalidFormat, "header prefix too short")
	}
	beCookie := []byte{0x5B, 0x1F, 0x2B, 0x43, 0xC7, 0xC0, 0x25, 0x2F}
	leCookie := reverseBytes(beCookie)

	at := func(off int) bool {
		return matchBytes(prefix[off:off+8], beCookie) || matchBytes(prefix[off:off+8], leCookie)
	}
	bigAt := func(off int) bool { return matchBytes(prefix[off:off+8], beCookie) }

	switch {
	case at(12):
		return 4, bigAt(12), nil
	case at(16):
		return 8, bigAt(16), nil
	default:
		return 0, false, newErr(KindInvalidFormat, "float cookie not found at offset 12 or 16")
	}
}

func matchBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func reverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for i, v := range b {
		r[len(b)-1-i] = v
	}
	return r
}

// Flush syncs pending writes to the backing store without closing it.
func (db *Database) Flush() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.store.Sync(); err != nil {
		return db.poison(err)
	}
	return nil
}

// Close flushes and releases the backing store. Close is idempotent.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.store.Sync(); err != nil {
		return wrapErr(KindStorageError, err, "closing: sync")
	}
	return db.store.Close()
}

func (db *Database) checkOpen() error {
	if db.closed {
		return newErr(KindDatabaseClosed, "database is closed")
	}
	if db.poisoned != nil {
		return wrapErr(KindStorageError, db.poisoned, "database handle is poisoned, re-open required")
	}
	return nil
}

func (db *Database) checkWritable() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.writable {
		return newErr(KindNotWritable, "database is read-only")
	}
	return nil
}

// Path returns the path or memory-store name the database was opened from.
func (db *Database) Path() string { return db.path }

// Writable reports whether mutating operations are permitted.
func (db *Database) Writable() bool { return db.writable }

// Header returns the database header.
func (db *Database) Header() *Header { return db.header }

// DataSources returns every data source, in declaration order.
func (db *Database) DataSources() []*DataSource { return db.dss }

// Archives returns every archive, in declaration order.
func (db *Database) Archives() []*Archive { return db.archives }

// DataSourceByName finds a data source by name, or returns nil.
func (db *Database) DataSourceByName(name string) *DataSource {
	for _, ds := range db.dss {
		if n, err := ds.Name(); err == nil && n == name {
			return ds
		}
	}
	return nil
}

func (db *Database) poison(err error) error {
	db.poisoned = err
	return wrapErr(KindStorageError, err, "write failed, database poisoned")
}
