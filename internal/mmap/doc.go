// Package mmap provides read-only memory-mapped files and advisory file
// locks.
//
// The shared exclusion tier publishes immutable segment files and maps them
// into every attached process. Readers scan the mapping without locks;
// writers serialize structural changes with Lock.
//
//	m, err := mmap.Open("segment.bin")
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// # Platform Support
//
//   - Unix: mmap(2), madvise(2) and flock(2)
//   - Windows: CreateFileMapping/MapViewOfFile and LockFileEx; Advise is a no-op
package mmap
