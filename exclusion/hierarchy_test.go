package exclusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/dnagram/blobstore"
	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/metastore/storetest"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tierLog struct {
	mu    sync.Mutex
	tiers []Tier
}

func (l *tierLog) observe(t Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tiers = append(l.tiers, t)
}

func (l *tierLog) last() Tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tiers) == 0 {
		return TierNone
	}
	return l.tiers[len(l.tiers)-1]
}

func seededStore(t *testing.T, recs ...metastore.Record) metastore.Store {
	t.Helper()
	store := metastore.NewBlobStore(blobstore.NewMemoryStore())
	for _, rec := range recs {
		require.NoError(t, store.Replace(context.Background(), rec))
	}
	return store
}

func newHierarchy(t *testing.T, cfg config.Config, store metastore.Store, opts ...Option) (*Hierarchy, *tierLog) {
	t.Helper()
	log := &tierLog{}
	h, err := New(cfg, store, append(opts, WithObserver(log.observe))...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h, log
}

// loadedBytes reports what loading subject from store charges against an
// unlimited controller.
func loadedBytes(t *testing.T, store metastore.Store, subject metastore.Subject) int64 {
	t.Helper()
	rc := resource.NewController(resource.Config{})
	h, _ := newHierarchy(t, config.Default(), store, WithController(rc))
	_, err := h.LoadLocal(context.Background(), subject)
	require.NoError(t, err)
	return rc.MemoryUsage()
}

func requireIncompatible(t *testing.T, err error, param string) {
	t.Helper()
	var inc *config.ErrIncompatible
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, param, inc.Param)
}

func TestHierarchy_NotAnalyzed(t *testing.T) {
	ctx := context.Background()
	h, log := newHierarchy(t, config.Default(), seededStore(t))

	n, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	assert.Zero(t, n)

	excluded, err := h.IsExcluded(ctx, seqs, 1)
	require.NoError(t, err)
	assert.False(t, excluded)
	assert.Equal(t, TierNone, log.last())

	ks, err := h.Excluded(ctx, seqs)
	require.NoError(t, err)
	assert.True(t, ks.IsEmpty())
}

func TestHierarchy_LocalTier(t *testing.T) {
	ctx := context.Background()
	h, log := newHierarchy(t, config.Default(), seededStore(t, storetest.Record(seqs, 5)))

	n, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	excluded, err := h.IsExcluded(ctx, seqs, 3)
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.Equal(t, TierLocal, log.last())

	excluded, err = h.IsExcluded(ctx, seqs, 99)
	require.NoError(t, err)
	assert.False(t, excluded)

	ks, err := h.Excluded(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, ks.Len())

	st, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, LocalStats{Subjects: 1, Entries: 5, Bytes: st.Local.Bytes}, st.Local)
	assert.Positive(t, st.Local.Bytes)

	assert.Equal(t, 5, h.FreeLocal(seqs))
	assert.Zero(t, h.FreeLocal(seqs))

	_, err = h.IsExcluded(ctx, seqs, 3)
	require.NoError(t, err)
	assert.Equal(t, TierStore, log.last())
}

func TestHierarchy_FreeAllLocal(t *testing.T) {
	ctx := context.Background()
	reads := metastore.Subject{Table: "reads", Column: "seq"}
	h, _ := newHierarchy(t, config.Default(), seededStore(t, storetest.Record(seqs, 5), storetest.Record(reads, 2)))

	_, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	_, err = h.LoadLocal(ctx, reads)
	require.NoError(t, err)
	assert.Equal(t, []metastore.Subject{seqs, reads}, h.local.Subjects())

	assert.Equal(t, 7, h.FreeAllLocal())
	assert.Zero(t, h.FreeAllLocal())
}

func TestHierarchy_StoreFallback(t *testing.T) {
	ctx := context.Background()
	h, log := newHierarchy(t, config.Default(), seededStore(t, storetest.Record(seqs, 5)))

	var wg sync.WaitGroup
	errs := make([]error, 32)
	got := make([]bool, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = h.IsExcluded(ctx, seqs, ngram.Key(i%8))
		}()
	}
	wg.Wait()
	for i := range 32 {
		require.NoError(t, errs[i])
		k := i % 8
		assert.Equal(t, k >= 1 && k <= 5, got[i], "key %d", k)
	}
	assert.Equal(t, TierStore, log.last())

	ks, err := h.Excluded(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, ks.Len())
}

// gatedStore holds reads until release is closed and records whether the
// context they ran under was cancelled by then.
type gatedStore struct {
	metastore.Store
	entered chan struct{}
	release chan struct{}

	mu      sync.Mutex
	ctxErrs []error
}

func newGatedStore(inner metastore.Store) *gatedStore {
	return &gatedStore{Store: inner, entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (s *gatedStore) wait(ctx context.Context) {
	s.entered <- struct{}{}
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
}

func (s *gatedStore) Get(ctx context.Context, subject metastore.Subject) (metastore.Record, error) {
	s.wait(ctx)
	if err := ctx.Err(); err != nil {
		return metastore.Record{}, err
	}
	return s.Store.Get(ctx, subject)
}

func (s *gatedStore) Metadata(ctx context.Context, subject metastore.Subject) (metastore.Metadata, error) {
	s.wait(ctx)
	if err := ctx.Err(); err != nil {
		return metastore.Metadata{}, err
	}
	return s.Store.Metadata(ctx, subject)
}

func TestHierarchy_CancelledCallerDoesNotFailOthers(t *testing.T) {
	tests := []struct {
		name string
		call func(h *Hierarchy, ctx context.Context) error
	}{
		{"excluded", func(h *Hierarchy, ctx context.Context) error {
			ks, err := h.Excluded(ctx, seqs)
			if err == nil && ks.Len() != 5 {
				return fmt.Errorf("got %d keys", ks.Len())
			}
			return err
		}},
		{"is excluded", func(h *Hierarchy, ctx context.Context) error {
			ok, err := h.IsExcluded(ctx, seqs, 3)
			if err == nil && !ok {
				return errors.New("key 3 not excluded")
			}
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newGatedStore(seededStore(t, storetest.Record(seqs, 5)))
			h, _ := newHierarchy(t, config.Default(), store)

			first, cancel := context.WithCancel(context.Background())
			firstErr := make(chan error, 1)
			go func() { firstErr <- tt.call(h, first) }()
			<-store.entered

			// The cancelled caller returns while the read is still in flight.
			cancel()
			select {
			case err := <-firstErr:
				assert.ErrorIs(t, err, context.Canceled)
			case <-time.After(2 * time.Second):
				t.Fatal("cancelled caller kept waiting for the store")
			}

			secondErr := make(chan error, 1)
			go func() { secondErr <- tt.call(h, context.Background()) }()
			close(store.release)
			require.NoError(t, <-secondErr)

			store.mu.Lock()
			defer store.mu.Unlock()
			for _, err := range store.ctxErrs {
				assert.NoError(t, err, "store reads must not inherit a caller's cancellation")
			}
		})
	}
}

func TestHierarchy_ParameterDrift(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SharedCacheDir = t.TempDir()

	tests := []struct {
		param  string
		mutate func(*config.Config)
	}{
		{"kmer_size", func(c *config.Config) { c.KmerSize = 9 }},
		{"occurrence_bits", func(c *config.Config) { c.OccurrenceBits = 4 }},
		{"max_appearance_rate", func(c *config.Config) { c.MaxAppearanceRate = 0.25 }},
		{"max_appearance_nrow", func(c *config.Config) { c.MaxAppearanceNrow = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			drifted := cfg
			tt.mutate(&drifted)
			h, _ := newHierarchy(t, drifted, seededStore(t, storetest.Record(seqs, 5)))

			_, err := h.LoadLocal(ctx, seqs)
			requireIncompatible(t, err, tt.param)

			_, err = h.LoadShared(ctx, seqs)
			requireIncompatible(t, err, tt.param)

			_, err = h.IsExcluded(ctx, seqs, 1)
			requireIncompatible(t, err, tt.param)

			_, err = h.Excluded(ctx, seqs)
			requireIncompatible(t, err, tt.param)

			assert.Zero(t, h.local.Stats().Subjects)
		})
	}
}

func TestHierarchy_SharedTier(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SharedCacheDir = t.TempDir()

	publisher, _ := newHierarchy(t, cfg, seededStore(t, storetest.Record(seqs, 5)))
	n, err := publisher.LoadShared(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A second participant attaches without touching its (empty) store.
	other, log := newHierarchy(t, cfg, seededStore(t))
	n, err = other.LoadShared(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	excluded, err := other.IsExcluded(ctx, seqs, 2)
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.Equal(t, TierShared, log.last())

	ks, err := other.Excluded(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, ks.Len())

	st, err := other.Stats()
	require.NoError(t, err)
	require.Len(t, st.Shared.Segments, 1)
	assert.Equal(t, uint32(2), st.Shared.Segments[0].Refs)

	// A participant with drifted parameters refuses the segment.
	drifted := cfg
	drifted.MaxAppearanceRate = 0.1
	bad, _ := newHierarchy(t, drifted, seededStore(t))
	_, err = bad.LoadShared(ctx, seqs)
	requireIncompatible(t, err, "max_appearance_rate")

	n, err = other.DetachShared(seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = publisher.FreeShared(seqs)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = publisher.FreeAllShared()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHierarchy_ForceShared(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SharedCacheDir = t.TempDir()
	cfg.ForceSharedCache = true

	h, log := newHierarchy(t, cfg, seededStore(t, storetest.Record(seqs, 5)))
	_, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)

	_, err = h.IsExcluded(ctx, seqs, 1)
	require.NoError(t, err)
	assert.Equal(t, TierStore, log.last(), "local tier is skipped")

	_, err = h.LoadShared(ctx, seqs)
	require.NoError(t, err)
	_, err = h.IsExcluded(ctx, seqs, 1)
	require.NoError(t, err)
	assert.Equal(t, TierShared, log.last())
}

func TestHierarchy_SharedDisabled(t *testing.T) {
	h, _ := newHierarchy(t, config.Default(), seededStore(t))
	ctx := context.Background()

	_, err := h.LoadShared(ctx, seqs)
	assert.ErrorIs(t, err, ErrSharedDisabled)
	_, err = h.FreeShared(seqs)
	assert.ErrorIs(t, err, ErrSharedDisabled)
	_, err = h.FreeAllShared()
	assert.ErrorIs(t, err, ErrSharedDisabled)
	_, err = h.DetachShared(seqs)
	assert.ErrorIs(t, err, ErrSharedDisabled)
	assert.Nil(t, h.Shared())
}

func TestHierarchy_MemoryBudget(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 8})
	h, _ := newHierarchy(t, config.Default(), seededStore(t, storetest.Record(seqs, 1000)), WithController(rc))

	_, err := h.LoadLocal(context.Background(), seqs)
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.Zero(t, rc.MemoryUsage())
}

func TestHierarchy_MemoryBudgetSecondSubject(t *testing.T) {
	ctx := context.Background()
	reads := metastore.Subject{Table: "reads", Column: "seq"}
	store := seededStore(t, storetest.Record(seqs, 1000), storetest.Record(reads, 1000))
	size := loadedBytes(t, store, seqs)

	rc := resource.NewController(resource.Config{MemoryLimitBytes: size + size/2})
	h, _ := newHierarchy(t, config.Default(), store, WithController(rc))

	_, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, size, rc.MemoryUsage())

	done := make(chan error, 1)
	go func() {
		_, err := h.LoadLocal(ctx, reads)
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("load over the memory limit blocked instead of failing")
	}
	assert.Equal(t, size, rc.MemoryUsage())
	assert.Equal(t, []metastore.Subject{seqs}, h.local.Subjects())
}

func TestHierarchy_MemoryBudgetReload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store := seededStore(t, storetest.Record(seqs, 1000))
	size := loadedBytes(t, store, seqs)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: size + size/2})
	h, _ := newHierarchy(t, config.Default(), store, WithController(rc))

	n, err := h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	// Reloading the same subject only charges the difference.
	n, err = h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, size, rc.MemoryUsage())

	// A smaller set releases the surplus.
	require.NoError(t, store.Replace(ctx, storetest.Record(seqs, 10)))
	_, err = h.LoadLocal(ctx, seqs)
	require.NoError(t, err)
	st, err := h.Stats()
	require.NoError(t, err)
	assert.Less(t, st.Local.Bytes, size)
	assert.Equal(t, st.Local.Bytes, rc.MemoryUsage())

	assert.Equal(t, 10, h.FreeLocal(seqs))
	assert.Zero(t, rc.MemoryUsage())
}

func TestHierarchy_FreeInvalidatesActualMinScores(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	aux, err := cache.NewAux(cfg)
	require.NoError(t, err)

	h, _ := newHierarchy(t, cfg, seededStore(t, storetest.Record(seqs, 5)), WithAux(aux))
	_, err = h.LoadLocal(ctx, seqs)
	require.NoError(t, err)

	ks, err := h.Excluded(ctx, seqs)
	require.NoError(t, err)
	aux.ActualMinScore.Set(cache.ActualMinKey{Query: 1, Exclusion: ks.Fingerprint()}, 3)
	aux.ActualMinScore.Set(cache.ActualMinKey{Query: 1, Exclusion: 0}, 4)

	h.FreeLocal(seqs)
	assert.Equal(t, 1, aux.ActualMinScore.Len())
}

func TestTier_String(t *testing.T) {
	assert.Equal(t, "local", TierLocal.String())
	assert.Equal(t, "shared", TierShared.String())
	assert.Equal(t, "store", TierStore.String())
	assert.Equal(t, "none", TierNone.String())
}
