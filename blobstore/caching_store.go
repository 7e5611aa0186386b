package blobstore

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/hupe1980/dnagram/cache"
)

// CachingStore wraps a Store with a read-through cache of whole blobs.
// Writes and deletes through the CachingStore evict the cached copy once
// the inner store has accepted them; writes that bypass it are not
// observed until the entry is evicted.
type CachingStore struct {
	inner Store
	cache *cache.LRU[string, []byte]

	// gen advances on every write. A read that raced a write does not
	// populate the cache.
	gen atomic.Uint64
}

// NewCachingStore caches up to capacity blobs read from inner.
func NewCachingStore(inner Store, capacity int) *CachingStore {
	return &CachingStore{
		inner: inner,
		cache: cache.NewLRU[string, []byte](capacity),
	}
}

// Get returns a copy of the cached blob, reading through on a miss.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if b, ok := s.cache.Get(name); ok {
		return bytes.Clone(b), nil
	}
	gen := s.gen.Load()
	b, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if s.gen.Load() == gen {
		s.cache.Set(name, bytes.Clone(b))
	}
	return b, nil
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	err := s.inner.Put(ctx, name, data)
	s.evict(name)
	return err
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	err := s.inner.Delete(ctx, name)
	s.evict(name)
	return err
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns the cache counters.
func (s *CachingStore) Stats() cache.Stats {
	return s.cache.Stats()
}

// evict drops name even when the inner write failed, since a failed write
// may still have landed.
func (s *CachingStore) evict(name string) {
	s.gen.Add(1)
	s.cache.Remove(name)
}
