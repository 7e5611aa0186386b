// Package fs abstracts the file operations of the shared exclusion tier so
// tests can inject I/O faults.
//
// [Default] is backed by the os package. [FaultyFS] wraps another
// FileSystem and fails writes, syncs, closes or renames of matching files.
// [WriteFileAtomic] publishes a file through a temp name, so a failure
// never leaves a half-written file visible under its final name.
package fs
