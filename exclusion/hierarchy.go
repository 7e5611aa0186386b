package exclusion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"

	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/config"
	dfs "github.com/hupe1980/dnagram/internal/fs"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
	"golang.org/x/sync/singleflight"
)

// ErrSharedDisabled is returned by shared-tier operations when no shared
// cache directory is configured.
var ErrSharedDisabled = errors.New("shared exclusion cache is not configured")

// Tier identifies which tier answered a lookup.
type Tier int

const (
	TierNone Tier = iota
	TierLocal
	TierShared
	TierStore
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierShared:
		return "shared"
	case TierStore:
		return "store"
	default:
		return "none"
	}
}

// Stats describes every tier.
type Stats struct {
	Local  LocalStats
	Shared SharedStats
}

// Option configures a Hierarchy.
type Option func(*Hierarchy)

// WithController charges locally loaded sets to rc's memory budget.
func WithController(rc *resource.Controller) Option {
	return func(h *Hierarchy) { h.rc = rc }
}

// WithAux drops actual-min-score entries computed against a set when that
// set is freed or replaced.
func WithAux(aux *cache.Aux) Option {
	return func(h *Hierarchy) { h.aux = aux }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hierarchy) { h.logger = l }
}

// WithFileSystem overrides the file system of the shared tier.
func WithFileSystem(fsys dfs.FileSystem) Option {
	return func(h *Hierarchy) { h.fs = fsys }
}

// WithObserver is called after every lookup with the tier that answered.
func WithObserver(fn func(Tier)) Option {
	return func(h *Hierarchy) { h.observe = fn }
}

// Hierarchy is the exclusion lookup path of one engine instance.
type Hierarchy struct {
	cfg     config.Config
	params  config.ThresholdParams
	store   metastore.Store
	rc      *resource.Controller
	aux     *cache.Aux
	fs      dfs.FileSystem
	logger  *slog.Logger
	observe func(Tier)

	local  *LocalTier
	shared *SharedTier
	group  singleflight.Group
}

// New returns a Hierarchy over store. The shared tier is enabled when
// cfg.SharedCacheDir is set.
func New(cfg config.Config, store metastore.Store, opts ...Option) (*Hierarchy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Hierarchy{
		cfg:    cfg,
		params: cfg.Thresholds(),
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.local = NewLocalTier(h.rc)

	if cfg.SharedCacheDir != "" {
		shared, err := NewSharedTier(cfg.SharedCacheDir, h.fs)
		if err != nil {
			return nil, err
		}
		h.shared = shared
	}
	return h, nil
}

func (h *Hierarchy) seen(t Tier) {
	if h.observe != nil {
		h.observe(t)
	}
}

func (h *Hierarchy) forget(sets ...*ngram.KeySet) {
	if h.aux == nil {
		return
	}
	for _, ks := range sets {
		if ks != nil {
			h.aux.InvalidateExclusion(ks.Fingerprint())
		}
	}
}

// share runs fn once for concurrent callers with the same key. fn does not
// inherit any single caller's cancellation; each caller stops waiting when
// its own ctx is done.
func (h *Hierarchy) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := h.group.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch reads the subject's record from the store and validates it. A
// subject without a record returns ok == false and no error.
func (h *Hierarchy) fetch(ctx context.Context, subject metastore.Subject) (rec metastore.Record, ok bool, err error) {
	v, err := h.share(ctx, "get\x00"+subject.String(), func(ctx context.Context) (any, error) {
		return h.store.Get(ctx, subject)
	})
	if errors.Is(err, metastore.ErrNotAnalyzed) {
		return metastore.Record{}, false, nil
	}
	if err != nil {
		return metastore.Record{}, false, err
	}
	rec = v.(metastore.Record)
	if err := rec.Check(h.params); err != nil {
		return metastore.Record{}, false, err
	}
	return rec, true, nil
}

// LoadLocal loads the subject's persisted set into process memory and
// returns its size. A subject that was never analyzed loads 0 entries.
func (h *Hierarchy) LoadLocal(ctx context.Context, subject metastore.Subject) (int, error) {
	if err := subject.Validate(); err != nil {
		return 0, err
	}
	rec, ok, err := h.fetch(ctx, subject)
	if err != nil || !ok {
		return 0, err
	}
	prev, err := h.local.Load(ctx, rec)
	if err != nil {
		return 0, err
	}
	h.forget(prev)
	h.logger.Info("exclusion set loaded", "tier", TierLocal.String(), "subject", subject.String(), "entries", rec.Keys.Len())
	return rec.Keys.Len(), nil
}

// FreeLocal drops the subject's local set and returns the entries removed.
func (h *Hierarchy) FreeLocal(subject metastore.Subject) int {
	n, ks := h.local.Free(subject)
	h.forget(ks)
	return n
}

// FreeAllLocal drops every local set and returns the entries removed.
func (h *Hierarchy) FreeAllLocal() int {
	n, dropped := h.local.FreeAll()
	h.forget(dropped...)
	return n
}

// LoadShared attaches the subject's shared segment, publishing it from the
// store first when no participant has. It returns the segment's size.
func (h *Hierarchy) LoadShared(ctx context.Context, subject metastore.Subject) (int, error) {
	if h.shared == nil {
		return 0, ErrSharedDisabled
	}
	if err := subject.Validate(); err != nil {
		return 0, err
	}

	meta, err := h.shared.Attach(subject)
	switch {
	case err == nil:
		if err := meta.Check(h.params); err != nil {
			_, _ = h.shared.Detach(subject)
			return 0, err
		}
		h.logger.Info("exclusion set attached", "tier", TierShared.String(), "subject", subject.String(), "entries", meta.ExcludedKeys)
		return int(meta.ExcludedKeys), nil
	case !errors.Is(err, fs.ErrNotExist):
		return 0, err
	}

	rec, ok, err := h.fetch(ctx, subject)
	if err != nil || !ok {
		return 0, err
	}
	if err := h.shared.PublishAndAttach(rec); err != nil {
		return 0, fmt.Errorf("publish shared exclusion set for %s: %w", subject, err)
	}
	h.logger.Info("exclusion set published", "tier", TierShared.String(), "subject", subject.String(), "entries", rec.Keys.Len())
	return rec.Keys.Len(), nil
}

// DetachShared unmaps the subject's segment in this process only.
func (h *Hierarchy) DetachShared(subject metastore.Subject) (int, error) {
	if h.shared == nil {
		return 0, ErrSharedDisabled
	}
	return h.shared.Detach(subject)
}

// FreeShared removes the subject's segment for every participant.
func (h *Hierarchy) FreeShared(subject metastore.Subject) (int, error) {
	if h.shared == nil {
		return 0, ErrSharedDisabled
	}
	ks, _, _ := h.shared.KeySet(subject)
	n, err := h.shared.Free(subject)
	h.forget(ks)
	return n, err
}

// FreeAllShared removes every shared segment.
func (h *Hierarchy) FreeAllShared() (int, error) {
	if h.shared == nil {
		return 0, ErrSharedDisabled
	}
	if h.aux != nil {
		h.aux.ActualMinScore.Clear()
	}
	return h.shared.FreeAll()
}

// IsExcluded reports whether key is excluded for subject.
func (h *Hierarchy) IsExcluded(ctx context.Context, subject metastore.Subject, key ngram.Key) (bool, error) {
	if !h.cfg.ForceSharedCache {
		if e, ok := h.local.get(subject); ok {
			if err := e.meta.Check(h.params); err != nil {
				return false, err
			}
			h.seen(TierLocal)
			return e.keys.Contains(key), nil
		}
	}

	if h.shared != nil {
		if found, meta, ok := h.shared.Contains(subject, key); ok {
			if err := meta.Check(h.params); err != nil {
				return false, err
			}
			h.seen(TierShared)
			return found, nil
		}
	}

	v, err := h.share(ctx, "contains\x00"+subject.String()+"\x00"+strconv.FormatUint(uint64(key), 10), func(ctx context.Context) (any, error) {
		meta, err := h.store.Metadata(ctx, subject)
		if err != nil {
			return false, err
		}
		if err := meta.Check(h.params); err != nil {
			return false, err
		}
		return h.store.Contains(ctx, subject, key)
	})
	if errors.Is(err, metastore.ErrNotAnalyzed) {
		h.seen(TierNone)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	h.seen(TierStore)
	return v.(bool), nil
}

// Excluded returns the subject's whole exclusion set. A subject that was
// never analyzed returns an empty set.
func (h *Hierarchy) Excluded(ctx context.Context, subject metastore.Subject) (*ngram.KeySet, error) {
	if !h.cfg.ForceSharedCache {
		if e, ok := h.local.get(subject); ok {
			if err := e.meta.Check(h.params); err != nil {
				return nil, err
			}
			h.seen(TierLocal)
			return e.keys, nil
		}
	}

	if h.shared != nil {
		if ks, meta, ok := h.shared.KeySet(subject); ok {
			if err := meta.Check(h.params); err != nil {
				return nil, err
			}
			h.seen(TierShared)
			return ks, nil
		}
	}

	rec, ok, err := h.fetch(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !ok {
		h.seen(TierNone)
		return ngram.NewKeySet(), nil
	}
	h.seen(TierStore)
	return rec.Keys, nil
}

// Stats returns a snapshot of both cache tiers.
func (h *Hierarchy) Stats() (Stats, error) {
	st := Stats{Local: h.local.Stats()}
	if h.shared != nil {
		shared, err := h.shared.Stats()
		if err != nil {
			return st, err
		}
		st.Shared = shared
	}
	return st, nil
}

// Shared returns the shared tier, or nil when it is disabled.
func (h *Hierarchy) Shared() *SharedTier { return h.shared }

// Close detaches every shared segment. Published segments stay in place.
func (h *Hierarchy) Close() error {
	h.FreeAllLocal()
	if h.shared == nil {
		return nil
	}
	return h.shared.Close()
}
