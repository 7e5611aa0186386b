// Package blobstore abstracts the object storage that backs persisted
// exclusion records.
//
// Implementations must be safe for concurrent use. Put is atomic: readers
// observe either the previous or the new content, never a partial blob.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests and ephemeral engines
//   - LocalStore: local filesystem, temp file plus rename
//   - CachingStore: read-through cache in front of another Store
//   - s3.Store, s3.DDBCommitStore: Amazon S3, optionally with DynamoDB
//     conditional commits
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
