package metastore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/hupe1980/dnagram/blobstore"
	"github.com/hupe1980/dnagram/ngram"
)

const recordPrefix = "exclusion/"

// BlobStore keeps one encoded record per subject on a blobstore.Store.
// Atomicity of Replace is inherited from the blob store's Put.
type BlobStore struct {
	blobs       blobstore.Store
	compression Compression
}

var _ Store = (*BlobStore)(nil)

// BlobOption configures a BlobStore.
type BlobOption func(*BlobStore)

// WithCompression sets the body compression of newly written records.
func WithCompression(c Compression) BlobOption {
	return func(s *BlobStore) {
		s.compression = c
	}
}

// NewBlobStore returns a Store backed by blobs. Records are written with
// ZSTD compression unless overridden.
func NewBlobStore(blobs blobstore.Store, opts ...BlobOption) *BlobStore {
	s := &BlobStore{blobs: blobs, compression: CompressionZSTD}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// recordName maps a subject to its blob name. Both parts are escaped so a
// table containing "/" cannot alias another subject.
func recordName(s Subject) string {
	return recordPrefix + url.PathEscape(s.Table) + "/" + url.PathEscape(s.Column)
}

func (s *BlobStore) read(ctx context.Context, subject Subject) ([]byte, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, recordName(subject))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", subject, ErrNotAnalyzed)
		}
		return nil, err
	}
	return data, nil
}

// Replace implements Store.
func (s *BlobStore) Replace(ctx context.Context, rec Record) error {
	if err := rec.Subject.Validate(); err != nil {
		return err
	}
	rec.ExcludedKeys = int64(rec.Keys.Len())
	data, err := EncodeRecord(rec, s.compression)
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, recordName(rec.Subject), data)
}

// Get implements Store.
func (s *BlobStore) Get(ctx context.Context, subject Subject) (Record, error) {
	data, err := s.read(ctx, subject)
	if err != nil {
		return Record{}, err
	}
	return DecodeRecord(data)
}

// Metadata implements Store.
func (s *BlobStore) Metadata(ctx context.Context, subject Subject) (Metadata, error) {
	data, err := s.read(ctx, subject)
	if err != nil {
		return Metadata{}, err
	}
	return DecodeMetadata(data)
}

// Contains implements Store. Each call reads and decodes the whole record;
// callers with many lookups should load the set once instead.
func (s *BlobStore) Contains(ctx context.Context, subject Subject, key ngram.Key) (bool, error) {
	rec, err := s.Get(ctx, subject)
	if err != nil {
		return false, err
	}
	return rec.Keys.Contains(key), nil
}

// Delete implements Store.
func (s *BlobStore) Delete(ctx context.Context, subject Subject) (DropStats, error) {
	data, err := s.read(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrNotAnalyzed) {
			return DropStats{}, nil
		}
		return DropStats{}, err
	}
	stats := DropStats{Records: 1, BytesReclaimed: int64(len(data))}
	if meta, err := DecodeMetadata(data); err == nil {
		stats.Keys = meta.ExcludedKeys
	}
	if err := s.blobs.Delete(ctx, recordName(subject)); err != nil {
		return DropStats{}, err
	}
	return stats, nil
}

// List implements Store.
func (s *BlobStore) List(ctx context.Context) ([]Metadata, error) {
	names, err := s.blobs.List(ctx, recordPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]Metadata, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, recordPrefix) {
			continue
		}
		data, err := s.blobs.Get(ctx, name)
		if err != nil {
			if errors.Is(err, blobstore.ErrNotFound) {
				continue // deleted since List
			}
			return nil, err
		}
		meta, err := DecodeMetadata(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, meta)
	}
	slices.SortFunc(out, func(a, b Metadata) int {
		return cmp.Compare(a.Subject.String(), b.Subject.String())
	})
	return out, nil
}

// Close implements Store. The underlying blob store is owned by the caller.
func (s *BlobStore) Close() error { return nil }
