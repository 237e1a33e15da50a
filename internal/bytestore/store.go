// Package bytestore provides a random-access, length-addressable store of
// raw bytes that every on-disk structure in the RRD engine is built on top
// of. Two variants exist: a file-backed store and a memory-backed store.
package bytestore

import "errors"

// ErrOutOfRange is returned when a read or write falls outside the
// current extent of the store and the store does not auto-grow.
var ErrOutOfRange = errors.New("bytestore: offset out of range")

// Store is the capability set every backend implements: read, write,
// length, truncate and sync. Callers never see which variant they hold.
type Store interface {
	// ReadAt fills p with the bytes at offset. Reading past the current
	// length is an error for both variants: File-backed stores report the
	// short read and Memory-backed stores return ErrOutOfRange.
	ReadAt(offset int64, p []byte) error

	// WriteAt writes p at offset, growing the store if necessary.
	WriteAt(offset int64, p []byte) error

	// Len returns the current size of the store in bytes.
	Len() int64

	// Truncate grows or shrinks the store to exactly size bytes.
	Truncate(size int64) error

	// Sync flushes any buffered writes to durable storage. Memory-backed
	// stores treat this as a no-op.
	Sync() error

	// Close releases any underlying resources. A closed store must not
	// be used again.
	Close() error
}
