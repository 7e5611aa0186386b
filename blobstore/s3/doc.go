// Package s3 provides Amazon S3 implementations of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("dnagram/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Store writes blobs with a CRC32C checksum, switching to multipart uploads
// above UploadConfig.PartSize. DDBCommitStore adds DynamoDB conditional
// writes so that concurrent re-analyses of the same subject cannot
// interleave: each Put commits a new version of the name, and a Put that
// races another writer fails with ErrConcurrentModification.
package s3
