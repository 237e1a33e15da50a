package bytestore

import (
	"fmt"
	"os"
)

// FileStore is a Store backed by a single open OS file handle. The RRD
// engine holds one exclusive handle per open database; concurrent writers
// to the same path from separate processes are undefined behavior, same
// as the file backend's contract in the spec.
type FileStore struct {
	path string
	f    *os.File
	size int64
}

// OpenFile opens an existing file for read/write access.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bytestore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytestore: stat %s: %w", path, err)
	}
	return &FileStore{path: path, f: f, size: info.Size()}, nil
}

// OpenFileReadOnly opens an existing file for read-only access.
func OpenFileReadOnly(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o444)
	if err != nil {
		return nil, fmt.Errorf("bytestore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytestore: stat %s: %w", path, err)
	}
	return &FileStore{path: path, f: f, size: info.Size()}, nil
}

// CreateFile creates a new file, truncating it if it already exists.
func CreateFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bytestore: create %s: %w", path, err)
	}
	return &FileStore{path: path, f: f}, nil
}

func (s *FileStore) ReadAt(offset int64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := s.f.ReadAt(p, offset)
	if err != nil && n < len(p) {
		return fmt.Errorf("bytestore: read %s at %d: %w", s.path, offset, err)
	}
	return nil
}

func (s *FileStore) WriteAt(offset int64, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := s.f.WriteAt(p, offset); err != nil {
		return fmt.Errorf("bytestore: write %s at %d: %w", s.path, offset, err)
	}
	if end := offset + int64(len(p)); end > s.size {
		s.size = end
	}
	return nil
}

func (s *FileStore) Len() int64 { return s.size }

func (s *FileStore) Truncate(size int64) error {
	if err := s.f.Truncate(size); err != nil {
		return fmt.Errorf("bytestore: truncate %s to %d: %w", s.path, size, err)
	}
	s.size = size
	return nil
}

func (s *FileStore) Sync() error {
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("bytestore: sync %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return s.f.Close()
}

// Path returns the filesystem path backing this store.
func (s *FileStore) Path() string { return s.path }
