package layout

import "testing"

func TestAlign(t *testing.T) {
	tests := []struct {
		offset    int64
		alignment int
		want      int64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{5, 4, 8},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, tt := range tests {
		if got := Align(tt.offset, tt.alignment); got != tt.want {
			t.Errorf("Align(%d, %d) = %d, want %d", tt.offset, tt.alignment, got, tt.want)
		}
	}
}

func TestAllocator(t *testing.T) {
	a := NewAllocator(8)
	if off := a.Alloc(5); off != 0 {
		t.Fatalf("first Alloc offset = %d, want 0", off)
	}
	a.AlignTo(8)
	if a.Offset() != 8 {
		t.Fatalf("Offset after AlignTo(8) = %d, want 8", a.Offset())
	}
	if off := a.Alloc(16); off != 8 {
		t.Fatalf("second Alloc offset = %d, want 8", off)
	}
	if a.Offset() != 24 {
		t.Fatalf("final Offset = %d, want 24", a.Offset())
	}
}

func TestIntSlot(t *testing.T) {
	if got := IntSlot(8); got != 8 {
		t.Errorf("IntSlot(8) = %d, want 8", got)
	}
	if got := IntSlot(4); got != 4 {
		t.Errorf("IntSlot(4) = %d, want 4", got)
	}
}

func TestComputeLayoutNonOverlapping(t *testing.T) {
	f := Compute(8, true, 3, 2, []int{100, 50})

	// Every base offset must be strictly increasing and the ring bases
	// must not overlap each other or the fixed-size blocks above them.
	offsets := []int64{
		f.CookieOffset,
		f.DSCountOffset,
		f.ArcCountOffset,
		f.StepOffset,
		f.DSDescBase,
		f.ArchiveDescBase,
		f.LastUpdateOffset,
		f.PDPPrepBase,
		f.CDPPrepBase,
		f.CurrentRowBase,
		f.DoublesBase,
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			t.Fatalf("offset %d (%d) did not increase from previous (%d)", i, offsets[i], offsets[i-1])
		}
	}

	ring0 := f.RingBase(0)
	ring1 := f.RingBase(1)
	ring0Size := int64(100 * 3 * 8)
	if ring1 != ring0+ring0Size {
		t.Errorf("RingBase(1) = %d, want %d", ring1, ring0+ring0Size)
	}

	wantTotal := f.DoublesBase + int64(100*3*8) + int64(50*3*8)
	if f.TotalSize != wantTotal {
		t.Errorf("TotalSize = %d, want %d", f.TotalSize, wantTotal)
	}
}

func TestRingValueOffsetDistinctCells(t *testing.T) {
	f := Compute(8, false, 2, 1, []int{10})
	seen := map[int64]bool{}
	for row := 0; row < 10; row++ {
		for ds := 0; ds < 2; ds++ {
			off := f.RingValueOffset(0, row, ds)
			if seen[off] {
				t.Fatalf("duplicate ring offset %d at row=%d ds=%d", off, row, ds)
			}
			seen[off] = true
		}
	}
}

func TestDSDescOffsetSpacing(t *testing.T) {
	f := Compute(8, false, 4, 1, []int{10})
	size := DSDescSize(8)
	for i := 1; i < 4; i++ {
		want := f.DSDescOffset(i-1) + size
		if got := f.DSDescOffset(i); got != want {
			t.Errorf("DSDescOffset(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestVersion3AddsLastUpdateUs(t *testing.T) {
	v2 := Compute(8, false, 1, 1, []int{10})
	v3 := Compute(8, true, 1, 1, []int{10})
	if v3.LastUpdateUs == 0 {
		t.Error("expected nonzero LastUpdateUs offset for version3 layout")
	}
	if v3.PDPPrepBase <= v2.PDPPrepBase {
		t.Error("version3 layout should reserve extra space before PDPPrepBase")
	}
}
