package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/dnagram/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Keys(t *testing.T) {
	s := &Store{prefix: "root/"}

	assert.Equal(t, "root/exclusion/t.c", s.key("exclusion/t.c"))
	assert.Equal(t, "root/exclusion/", s.listPrefix("exclusion/"))
	assert.Equal(t, "root/exclusion", s.listPrefix("exclusion"))
	assert.Equal(t, "exclusion/t.c", s.relName("root/exclusion/t.c"))

	bare := &Store{}
	assert.Equal(t, "", bare.listPrefix(""))
	assert.Equal(t, "a/", bare.listPrefix("a/"))
	assert.Equal(t, "a", bare.relName("a"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("DNAGRAM_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	bucket := "test-dnagram"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	_, err = store.Get(ctx, "exclusion/missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "exclusion/a", []byte("one")))
	require.NoError(t, store.Put(ctx, "exclusion/a", []byte("two")))
	require.NoError(t, store.Put(ctx, "exclusionX", []byte("other")))

	data, err := store.Get(ctx, "exclusion/a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	names, err := store.List(ctx, "exclusion/")
	require.NoError(t, err)
	assert.Equal(t, []string{"exclusion/a"}, names)

	require.NoError(t, store.Delete(ctx, "exclusion/a"))
	require.NoError(t, store.Delete(ctx, "exclusion/a"))
	require.NoError(t, store.Delete(ctx, "exclusionX"))

	_, err = store.Get(ctx, "exclusion/a")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
