// Package cell implements primitive-sized slots bound to a fixed offset in
// a bytestore.Store. Cells memoize neither value nor offset beyond their
// own lifetime: Set writes through immediately and Get always re-reads.
package cell

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Store is the minimal read/write surface a cell needs. bytestore.Store
// satisfies it.
type Store interface {
	ReadAt(offset int64, p []byte) error
	WriteAt(offset int64, p []byte) error
}

// Order selects the byte order a cell encodes and decodes with. The
// engine always creates new databases with LittleEndian; BigEndian is only
// ever needed to read legacy files detected by the header's float-cookie
// probe.
type Order int

const (
	LittleEndian Order = iota
	BigEndian
)

func (o Order) binary() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Int32 is a 4-byte integer cell. On disk it may occupy a slot wider than
// 4 bytes (8 on the 8-byte-aligned file variant); the value then sits in
// the low 4 bytes for little-endian files and the high 4 bytes for
// big-endian ones, matching the packing a C compiler produces when an
// int32 shares an 8-byte-aligned union slot with int64/float64 siblings.
type Int32 struct {
	store  Store
	offset int64
	slot   int // 4 or 8
	order  Order
}

func NewInt32(s Store, offset int64, slot int, order Order) Int32 {
	return Int32{store: s, offset: offset, slot: slot, order: order}
}

func (c Int32) Get() (int32, error) {
	buf := make([]byte, c.slot)
	if err := c.store.ReadAt(c.offset, buf); err != nil {
		return 0, err
	}
	return int32(c.order.binary().Uint32(c.valueBytes(buf))), nil
}

func (c Int32) Set(v int32) error {
	buf := make([]byte, c.slot)
	c.order.binary().PutUint32(c.valueBytes(buf), uint32(v))
	return c.store.WriteAt(c.offset, buf)
}

// valueBytes returns the 4-byte sub-slice of buf holding the value,
// depending on slot width and byte order.
func (c Int32) valueBytes(buf []byte) []byte {
	if c.slot == 4 {
		return buf
	}
	if c.order == BigEndian {
		return buf[c.slot-4:]
	}
	return buf[:4]
}

// Int64 is an 8-byte integer cell, always exactly 8 bytes wide.
type Int64 struct {
	store  Store
	offset int64
	order  Order
}

func NewInt64(s Store, offset int64, order Order) Int64 {
	return Int64{store: s, offset: offset, order: order}
}

func (c Int64) Get() (int64, error) {
	buf := make([]byte, 8)
	if err := c.store.ReadAt(c.offset, buf); err != nil {
		return 0, err
	}
	return int64(c.order.binary().Uint64(buf)), nil
}

func (c Int64) Set(v int64) error {
	buf := make([]byte, 8)
	c.order.binary().PutUint64(buf, uint64(v))
	return c.store.WriteAt(c.offset, buf)
}

// Float64 is an 8-byte IEEE-754 double cell.
type Float64 struct {
	store  Store
	offset int64
	order  Order
}

func NewFloat64(s Store, offset int64, order Order) Float64 {
	return Float64{store: s, offset: offset, order: order}
}

func (c Float64) Get() (float64, error) {
	buf := make([]byte, 8)
	if err := c.store.ReadAt(c.offset, buf); err != nil {
		return 0, err
	}
	return math.Float64frombits(c.order.binary().Uint64(buf)), nil
}

func (c Float64) Set(v float64) error {
	buf := make([]byte, 8)
	c.order.binary().PutUint64(buf, math.Float64bits(v))
	return c.store.WriteAt(c.offset, buf)
}

// String is a fixed-width, NUL-terminated/padded string cell.
type String struct {
	store  Store
	offset int64
	width  int
}

func NewString(s Store, offset int64, width int) String {
	return String{store: s, offset: offset, width: width}
}

func (c String) Get() (string, error) {
	buf := make([]byte, c.width)
	if err := c.store.ReadAt(c.offset, buf); err != nil {
		return "", err
	}
	if i := indexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

func (c String) Set(v string) error {
	if len(v) >= c.width {
		return fmt.Errorf("cell: string %q exceeds field width %d", v, c.width)
	}
	buf := make([]byte, c.width)
	copy(buf, v)
	return c.store.WriteAt(c.offset, buf)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
