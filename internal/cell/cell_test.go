package cell

import (
	"math"
	"testing"

	"github.com/wellsgz/rrdb/internal/bytestore"
)

func TestInt32RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		slot  int
		order Order
		value int32
	}{
		{"4-byte slot little endian", 4, LittleEndian, 42},
		{"8-byte slot little endian", 8, LittleEndian, -7},
		{"8-byte slot big endian", 8, BigEndian, 1000},
		{"4-byte slot big endian", 4, BigEndian, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := bytestore.NewMemoryStore()
			c := NewInt32(s, 0, tt.slot, tt.order)
			if err := c.Set(tt.value); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := c.Get()
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tt.value {
				t.Errorf("got %d, want %d", got, tt.value)
			}
		})
	}
}

func TestInt64RoundTrip(t *testing.T) {
	s := bytestore.NewMemoryStore()
	c := NewInt64(s, 8, LittleEndian)
	if err := c.Set(1234567890123); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 1234567890123 {
		t.Errorf("got %d, want 1234567890123", got)
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	tests := []float64{0, 1.5, -1.5, math.NaN(), math.Inf(1), math.Inf(-1)}
	for _, v := range tests {
		s := bytestore.NewMemoryStore()
		c := NewFloat64(s, 0, LittleEndian)
		if err := c.Set(v); err != nil {
			t.Fatalf("Set(%v): %v", v, err)
		}
		got, err := c.Get()
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if math.IsNaN(v) {
			if !math.IsNaN(got) {
				t.Errorf("got %v, want NaN", got)
			}
			continue
		}
		if got != v {
			t.Errorf("got %v, want %v", got, v)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	s := bytestore.NewMemoryStore()
	c := NewString(s, 0, 20)
	if err := c.Set("hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestStringTooLongRejected(t *testing.T) {
	s := bytestore.NewMemoryStore()
	c := NewString(s, 0, 4)
	if err := c.Set("abcd"); err == nil {
		t.Error("expected error for string equal to field width (no room for NUL)")
	}
	if err := c.Set("abc"); err != nil {
		t.Errorf("Set of in-range string failed: %v", err)
	}
}

func TestInt32SlotPacking(t *testing.T) {
	// An 8-byte slot with a big-endian value must land in the high 4 bytes.
	s := bytestore.NewMemoryStore()
	c := NewInt32(s, 0, 8, BigEndian)
	if err := c.Set(0x01020304); err != nil {
		t.Fatalf("Set: %v", err)
	}
	buf := make([]byte, 8)
	if err := s.ReadAt(0, buf); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	want := []byte{0, 0, 0, 0, 0x01, 0x02, 0x03, 0x04}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}
}
