// Package hash holds the two hash functions dnagram persists or compares.
//
// Checksum is CRC32-Castagnoli and guards every byte that leaves the
// process: exclusion records, shared cache segments and S3 uploads. Go's
// crc32 package uses the SSE4.2 and ARM CRC instructions when present.
//
// Digest is a 64-bit xxHash fingerprint for in-memory identity: sequence and
// key set fingerprints, and cache keys for parsed queries and raw scores.
// Fingerprints are never written to disk.
package hash
