package mmap

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hupe1980/dnagram/internal/conv"
)

// Mapping is a read-only, shared memory mapping of a whole file.
type Mapping struct {
	path   string
	data   []byte
	unmap  func([]byte) error
	closed atomic.Bool
}

// Open maps the file at path. The descriptor is closed before Open
// returns; the mapping stays valid until Close. An empty file yields an
// empty mapping.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size, err := conv.Checked[int](fi.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTooLarge, path, err)
	}

	m := &Mapping{path: path}
	if size == 0 {
		return m, nil
	}
	if m.data, m.unmap, err = osMap(f, size); err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return m, nil
}

// Path returns the mapped file's path.
func (m *Mapping) Path() string { return m.path }

// Bytes returns the mapped bytes, or nil after Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapping's length in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Advise passes an access hint to the kernel. Hints the kernel rejects are
// ignored.
func (m *Mapping) Advise(a Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, a)
}

// Close unmaps the file. Further calls are no-ops.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap(m.data)
}
