package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hupe1980/dnagram/blobstore"
	minioblob "github.com/hupe1980/dnagram/blobstore/minio"
	s3blob "github.com/hupe1980/dnagram/blobstore/s3"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/metastore/badgerstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type storeOptions struct {
	compression metastore.Compression
	ddbTable    string
	blobCache   int
	logger      *slog.Logger
}

// blobRecords stores records in blobs, reading through a cache of
// opts.blobCache blobs when it is positive.
func blobRecords(blobs blobstore.Store, opts storeOptions) *metastore.BlobStore {
	if opts.blobCache > 0 {
		blobs = blobstore.NewCachingStore(blobs, opts.blobCache)
	}
	return metastore.NewBlobStore(blobs, metastore.WithCompression(opts.compression))
}

// openStore opens the metadata store named by uri:
//
//	mem://                       in-memory, lost on exit
//	file:///var/lib/dnagram      one record file per subject
//	badger:///var/lib/dnagram    BadgerDB, one key per excluded n-gram key
//	s3://bucket/prefix           S3, optionally committed through DynamoDB
//	minio://host:port/bucket/prefix?secure=false
//
// MinIO credentials come from MINIO_ACCESS_KEY and MINIO_SECRET_KEY. Blob
// backed stores read through a blob cache when opts.blobCache is positive;
// badger keeps its own block cache.
func openStore(ctx context.Context, uri string, opts storeOptions) (metastore.Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("--store %q: %w", uri, err)
	}

	switch u.Scheme {
	case "mem", "memory":
		return blobRecords(blobstore.NewMemoryStore(), opts), nil

	case "file", "":
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		blobs, err := blobstore.NewLocalStore(dir)
		if err != nil {
			return nil, err
		}
		return blobRecords(blobs, opts), nil

	case "badger":
		cfg := badgerstore.DefaultConfig(u.Path)
		cfg.Logger = opts.logger
		return badgerstore.Open(cfg)

	case "s3":
		prefix := strings.TrimPrefix(u.Path, "/")
		store, err := s3blob.New(ctx, u.Host, s3blob.WithPrefix(prefix))
		if err != nil {
			return nil, err
		}
		if opts.ddbTable == "" {
			return blobRecords(store, opts), nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		commits := s3blob.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), opts.ddbTable, "s3://"+u.Host+"/"+prefix)
		return blobRecords(commits, opts), nil

	case "minio":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("--store %q: bucket is required", uri)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: u.Query().Get("secure") != "false",
		})
		if err != nil {
			return nil, err
		}
		return blobRecords(minioblob.NewStore(client, bucket, prefix), opts), nil

	default:
		return nil, fmt.Errorf("--store %q: unsupported scheme %q", uri, u.Scheme)
	}
}
