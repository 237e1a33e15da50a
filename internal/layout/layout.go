// Package layout computes the fixed byte offsets of every block in an RRD
// file: the header, per-DS and per-archive descriptors, the PDP/CDP prep
// areas, and the double ring buffers. Compute is used both when creating a
// new database and when opening an existing one: the same arithmetic,
// driven by the definition's counts or by the counts read back from the
// header, locates every field.
package layout

// Align rounds offset up to the next multiple of alignment.
func Align(offset int64, alignment int) int64 {
	if alignment <= 1 {
		return offset
	}
	rem := offset % int64(alignment)
	if rem == 0 {
		return offset
	}
	return offset + int64(alignment) - rem
}

// Allocator is a monotonic offset allocator that hands out aligned offsets
// in sequence. Compute does not use it; creating and opening a database
// both go through Compute.
type Allocator struct {
	next      int64
	alignment int
}

// NewAllocator returns an allocator starting at offset 0.
func NewAllocator(alignment int) *Allocator {
	return &Allocator{alignment: alignment}
}

// Alloc reserves size bytes and returns the offset at which they start.
func (a *Allocator) Alloc(size int64) int64 {
	off := a.next
	a.next += size
	return off
}

// AlignTo pads the cursor up to the next multiple of n.
func (a *Allocator) AlignTo(n int) {
	a.next = Align(a.next, n)
}

// Offset returns the current cursor position.
func (a *Allocator) Offset() int64 { return a.next }

// IntSlot returns how many bytes an int32 field occupies on disk for the
// given alignment variant: 4 bytes on the 4-byte-aligned legacy variant,
// 8 bytes (value in the low or high 4 bytes depending on byte order) on
// the 8-byte-aligned variant used by every database this engine creates.
func IntSlot(alignment int) int {
	if alignment >= 8 {
		return 8
	}
	return 4
}

const (
	// StatHeadSize is the fixed size of the leading signature+version+
	// cookie+counts block, padded out as stat_head_t.par in the spec.
	StatHeadSize = 80

	dsNameWidth = 20
	dsTypeWidth = 20
	dsPadTail   = 56

	arcCFWidth = 20
	arcPadTail = 72

	pdpLastReadingWidth = 30
	pdpPadTail          = 64

	cdpPadTail = 64
)

// CookieOffset returns where the 8-byte float-detection cookie sits for
// the given alignment: 12 for 4-byte alignment, 16 for 8-byte alignment.
func CookieOffset(alignment int) int64 {
	return Align(4+5, alignment)
}

// DSDescSize returns the size in bytes of one DataSource descriptor.
func DSDescSize(alignment int) int64 {
	cur := int64(dsNameWidth + dsTypeWidth)
	cur = Align(cur, 4)
	cur += int64(IntSlot(alignment)) // heartbeat
	cur = Align(cur, 8)
	cur += 8 + 8 // min, max
	cur += dsPadTail
	return cur
}

// ArchiveDescSize returns the size in bytes of one Archive descriptor.
func ArchiveDescSize(alignment int) int64 {
	cur := int64(arcCFWidth)
	cur += int64(IntSlot(alignment)) // rows
	cur += int64(IntSlot(alignment)) // pdp_per_row
	cur = Align(cur, 8)
	cur += 8 // xff
	cur += arcPadTail
	return cur
}

// PDPPrepSize returns the size in bytes of one per-DS PDP-prep block.
func PDPPrepSize(alignment int) int64 {
	cur := int64(pdpLastReadingWidth)
	cur = Align(cur, 4)
	cur += int64(IntSlot(alignment)) // unknown_sec
	cur = Align(cur, 8)
	cur += 8 // value
	cur += pdpPadTail
	return cur
}

// CDPPrepSize returns the size in bytes of one per-archive-per-DS CDP-prep
// block.
func CDPPrepSize(alignment int) int64 {
	cur := int64(8)                  // value
	cur += int64(IntSlot(alignment)) // unknown_datapoints
	cur = Align(cur, 8)
	cur += cdpPadTail
	return cur
}

// File describes the absolute byte offsets of every block in an RRD file
// for a specific (alignment, version, dsCount, arcCount, rows) shape.
type File struct {
	Alignment int
	Version3  bool // true if the file carries a last_update_us companion cell
	DSCount   int
	ArcCount  int
	Rows      []int // ring row count per archive

	CookieOffset     int64
	DSCountOffset    int64
	ArcCountOffset   int64
	StepOffset       int64
	DSDescBase       int64
	ArchiveDescBase  int64
	LastUpdateOffset int64
	LastUpdateUs     int64 // 0 if Version3 is false
	PDPPrepBase      int64
	CDPPrepBase      int64
	CurrentRowBase   int64
	DoublesBase      int64
	TotalSize        int64

	dsDescSize  int64
	arcDescSize int64
	pdpSize     int64
	cdpSize     int64
	intSlot     int64
}

// Compute lays out a file shape. rows must have len(rows) == arcCount.
func Compute(alignment int, version3 bool, dsCount, arcCount int, rows []int) *File {
	f := &File{
		Alignment: alignment,
		Version3:  version3,
		DSCount:   dsCount,
		ArcCount:  arcCount,
		Rows:      append([]int(nil), rows...),
	}

	f.intSlot = int64(IntSlot(alignment))
	f.dsDescSize = DSDescSize(alignment)
	f.arcDescSize = ArchiveDescSize(alignment)
	f.pdpSize = PDPPrepSize(alignment)
	f.cdpSize = CDPPrepSize(alignment)

	f.CookieOffset = CookieOffset(alignment)
	f.DSCountOffset = f.CookieOffset + 8
	f.ArcCountOffset = f.DSCountOffset + f.intSlot
	f.StepOffset = f.ArcCountOffset + f.intSlot

	f.DSDescBase = StatHeadSize
	f.ArchiveDescBase = f.DSDescBase + int64(dsCount)*f.dsDescSize
	f.LastUpdateOffset = f.ArchiveDescBase + int64(arcCount)*f.arcDescSize

	cur := f.LastUpdateOffset + f.intSlot
	if version3 {
		f.LastUpdateUs = cur
		cur += f.intSlot
	}

	f.PDPPrepBase = cur
	cur += int64(dsCount) * f.pdpSize

	f.CDPPrepBase = cur
	cur += int64(arcCount) * int64(dsCount) * f.cdpSize

	f.CurrentRowBase = cur
	cur += int64(arcCount) * f.intSlot

	f.DoublesBase = cur
	var doubleBytes int64
	for _, r := range rows {
		doubleBytes += int64(r) * int64(dsCount) * 8
	}
	f.TotalSize = cur + doubleBytes
	return f
}

// DSDescOffset returns the base offset of the i-th DataSource descriptor.
func (f *File) DSDescOffset(i int) int64 { return f.DSDescBase + int64(i)*f.dsDescSize }

// ArchiveDescOffset returns the base offset of the j-th Archive descriptor.
func (f *File) ArchiveDescOffset(j int) int64 { return f.ArchiveDescBase + int64(j)*f.arcDescSize }

// PDPPrepOffset returns the base offset of the i-th PDP-prep block.
func (f *File) PDPPrepOffset(i int) int64 { return f.PDPPrepBase + int64(i)*f.pdpSize }

// CDPPrepOffset returns the base offset of the CDP-prep block for archive
// j, data source i.
func (f *File) CDPPrepOffset(j, i int) int64 {
	return f.CDPPrepBase + (int64(j)*int64(f.DSCount)+int64(i))*f.cdpSize
}

// CurrentRowOffset returns the offset of archive j's current_row cell.
func (f *File) CurrentRowOffset(j int) int64 {
	return f.CurrentRowBase + int64(j)*f.intSlot
}

// RingBase returns the absolute offset of row 0, DS 0 of archive j's ring.
func (f *File) RingBase(j int) int64 {
	var off int64
	for k := 0; k < j; k++ {
		off += int64(f.Rows[k]) * int64(f.DSCount) * 8
	}
	return f.DoublesBase + off
}

// RingValueOffset returns the absolute offset of the double for archive j,
// row index row (already wrapped into [0, rows)), data source i.
func (f *File) RingValueOffset(j, row, i int) int64 {
	return f.RingBase(j) + (int64(row)*int64(f.DSCount)+int64(i))*8
}

// IntSlot returns the byte width this file's alignment uses for int32
// fields.
func (f *File) IntSlot() int { return int(f.intSlot) }

// --- DataSource descriptor sub-offsets ---

func (f *File) DSNameOffset(i int) int64 { return f.DSDescOffset(i) }
func (f *File) DSTypeOffset(i int) int64 { return f.DSDescOffset(i) + dsNameWidth }
func (f *File) DSHeartbeatOffset(i int) int64 {
	return f.DSDescOffset(i) + dsNameWidth + dsTypeWidth
}
func (f *File) DSMinOffset(i int) int64 {
	return Align(f.DSHeartbeatOffset(i)+f.intSlot, 8)
}
func (f *File) DSMaxOffset(i int) int64 { return f.DSMinOffset(i) + 8 }

// --- Archive descriptor sub-offsets ---

func (f *File) ArchiveCFOffset(j int) int64  { return f.ArchiveDescOffset(j) }
func (f *File) ArchiveRowsOffset(j int) int64 { return f.ArchiveDescOffset(j) + arcCFWidth }
func (f *File) ArchivePDPPerRowOffset(j int) int64 {
	return f.ArchiveRowsOffset(j) + f.intSlot
}
func (f *File) ArchiveXFFOffset(j int) int64 {
	return Align(f.ArchivePDPPerRowOffset(j)+f.intSlot, 8)
}

// --- PDP-prep sub-offsets ---

func (f *File) PDPLastReadingOffset(i int) int64 { return f.PDPPrepOffset(i) }
func (f *File) PDPUnknownSecOffset(i int) int64 {
	return Align(f.PDPPrepOffset(i)+pdpLastReadingWidth, 4)
}
func (f *File) PDPValueOffset(i int) int64 {
	return Align(f.PDPUnknownSecOffset(i)+f.intSlot, 8)
}

// --- CDP-prep sub-offsets ---

func (f *File) CDPValueOffset(j, i int) int64 { return f.CDPPrepOffset(j, i) }
func (f *File) CDPUnknownDatapointsOffset(j, i int) int64 {
	return f.CDPPrepOffset(j, i) + 8
}
