// Package metastore persists exclusion metadata: the parameters a
// high-frequency analysis ran under plus the set of NgramKeys it flagged.
//
// One Record exists per Subject (table, column). Replace swaps a subject's
// record atomically so a re-analysis is never observed half-written, and
// Delete drops it for "undo analysis". Two implementations ship:
//
//   - BlobStore, a single binary record per subject on any blobstore.Store
//     (memory, local directory, S3, S3 with a DynamoDB commit log, MinIO)
//   - badgerstore.Store, one BadgerDB key per excluded NgramKey so point
//     lookups never load the whole set
//
// # Record Format
//
//	Magic (4 bytes) "DNGX"
//	Version (4 bytes)
//	Compression (1 byte) + reserved (3 bytes)
//	Checksum (4 bytes) - CRC32C of the stored body
//	BodyLength (4 bytes)
//	Body: a compression block holding
//	  Metadata (fixed fields + length-prefixed strings)
//	  KeysLength (4 bytes) + roaring64 portable serialization
package metastore
