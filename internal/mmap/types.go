package mmap

import "errors"

// Advice is an access hint passed to madvise(2).
type Advice int

const (
	// Normal removes any previous hint.
	Normal Advice = iota
	// Random suits binary search over the mapping.
	Random
	// Sequential suits a single front-to-back scan.
	Sequential
)

var (
	// ErrClosed is returned when a closed mapping is used.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrTooLarge is returned for a file that does not fit the address space.
	ErrTooLarge = errors.New("mmap: file too large to map")
)

// Locker is an open file that can carry an advisory lock. *os.File
// satisfies it.
type Locker interface {
	Fd() uintptr
}
