package metastore_test

import (
	"context"
	"testing"

	"github.com/hupe1980/dnagram/blobstore"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/metastore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore_Memory(t *testing.T) {
	storetest.Run(t, metastore.NewBlobStore(blobstore.NewMemoryStore()))
}

func TestBlobStore_Local(t *testing.T) {
	for _, c := range []metastore.Compression{metastore.CompressionNone, metastore.CompressionLZ4, metastore.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			local, err := blobstore.NewLocalStore(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			storetest.Run(t, metastore.NewBlobStore(local, metastore.WithCompression(c)))
		})
	}
}

func TestBlobStore_DeleteReclaimsBytes(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	store := metastore.NewBlobStore(mem, metastore.WithCompression(metastore.CompressionZSTD))
	subject := metastore.Subject{Table: "public.reads", Column: "seq"}

	require.NoError(t, store.Replace(ctx, storetest.Record(subject, 500)))
	_, size := mem.Usage()
	require.Positive(t, size)

	stats, err := store.Delete(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, int64(500), stats.Keys)
	assert.Equal(t, size, stats.BytesReclaimed)

	blobs, size := mem.Usage()
	assert.Zero(t, blobs)
	assert.Zero(t, size)
}
