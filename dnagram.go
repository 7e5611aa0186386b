package dnagram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/exclusion"
	"github.com/hupe1980/dnagram/highfreq"
	"github.com/hupe1980/dnagram/index"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/internal/simd"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/hupe1980/dnagram/rowsource"
	"github.com/hupe1980/dnagram/score"
)

// Subject identifies an analyzed column.
type Subject = metastore.Subject

// ParseSubject parses "table.column". The table part may itself contain dots.
func ParseSubject(s string) (Subject, error) { return metastore.ParseSubject(s) }

// CacheTier selects where an exclusion set is cached.
type CacheTier = exclusion.Tier

const (
	// LocalCache keeps the set in this process's memory.
	LocalCache = exclusion.TierLocal
	// SharedCache maps the set from a segment file shared by every process
	// configured with the same shared_cache_dir.
	SharedCache = exclusion.TierShared
)

// CacheStats is a snapshot of every cache the engine owns.
type CacheStats struct {
	Exclusion   exclusion.Stats
	Aux         cache.AuxStats
	MemoryUsage int64
	MemoryLimit int64
}

// Engine evaluates k-mer similarity between DNA sequences and manages the
// high-frequency exclusion sets that discount uninformative keys.
//
// Engine is safe for concurrent use.
type Engine struct {
	cfg        config.Config
	store      metastore.Store
	ownsStore  bool
	rc         *resource.Controller
	aux        *cache.Aux
	ops        *index.KeyOps
	scorer     *score.Engine
	analyzer   *highfreq.Analyzer
	exclusions *exclusion.Hierarchy
	metrics    MetricsCollector
	logger     *Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates an Engine. Without options it uses config.Default and an
// in-memory store.
func New(ctx context.Context, optFns ...Option) (_ *Engine, err error) {
	o := applyOptions(optFns)
	cfg := o.cfg
	if o.ownsStore {
		defer func() {
			if err != nil {
				err = errors.Join(err, o.store.Close())
			}
		}()
	}

	if err := cfg.Validate(); err != nil {
		return nil, translateError(err)
	}
	if err := applyISA(cfg); err != nil {
		return nil, translateError(err)
	}

	aux, err := cache.NewAux(cfg)
	if err != nil {
		return nil, translateError(err)
	}
	ops, err := index.NewOps(cfg, aux)
	if err != nil {
		return nil, translateError(err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     o.store,
		ownsStore: o.ownsStore,
		rc:        resource.NewController(o.limits),
		aux:       aux,
		ops:       ops,
		scorer:    score.NewEngine(ops, aux),
		metrics:   o.metricsCollector,
		logger:    o.logger,
	}

	e.analyzer, err = highfreq.New(cfg, e.store,
		highfreq.WithController(e.rc),
		highfreq.WithLogger(e.logger.Logger),
	)
	if err != nil {
		return nil, translateError(err)
	}

	e.exclusions, err = exclusion.New(cfg, e.store,
		exclusion.WithController(e.rc),
		exclusion.WithAux(aux),
		exclusion.WithLogger(e.logger.Logger),
		exclusion.WithObserver(func(t exclusion.Tier) { e.metrics.RecordCacheLookup(t.String()) }),
	)
	if err != nil {
		return nil, translateError(err)
	}

	e.logger.DebugContext(ctx, "engine created",
		"kmer_size", cfg.KmerSize,
		"occurrence_bits", cfg.OccurrenceBits,
		"score_mode", string(cfg.ScoreMode),
		"simd", simd.ActiveISA().String(),
	)
	return e, nil
}

// applyISA forces the configured kernels. The selection is process-wide.
func applyISA(cfg config.Config) error {
	isa, ok := cfg.ISA()
	if !ok || simd.ActiveISA() == isa {
		return nil
	}
	if _, err := simd.SetISA(isa); err != nil {
		return &config.ErrIncompatible{
			Param:    "simd",
			Expected: "an ISA available on this CPU",
			Actual:   cfg.SIMD,
			Hint:     "use simd = auto",
			Err:      err,
		}
	}
	return nil
}

// Config returns the engine parameters.
func (e *Engine) Config() config.Config { return e.cfg }

// Ops returns the key operations bound to the engine's parameters.
func (e *Engine) Ops() *index.KeyOps { return e.ops }

func (e *Engine) check() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

// excluded returns the subject's exclusion set. The zero Subject has none.
func (e *Engine) excluded(ctx context.Context, subject Subject) (*ngram.KeySet, error) {
	if subject == (Subject{}) {
		return ngram.NewKeySet(), nil
	}
	return e.exclusions.Excluded(ctx, subject)
}

// Matches reports whether row shares enough keys with query once the
// subject's high-frequency keys are discounted. Pass the zero Subject to
// match without exclusions.
func (e *Engine) Matches(ctx context.Context, subject Subject, row codec.EncodedSequence, query string) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	start := time.Now()

	matched, err := e.matches(ctx, subject, row, query)
	err = translateError(err)

	d := time.Since(start)
	e.metrics.RecordMatch(matched, d, err)
	e.logger.LogMatch(ctx, subject, matched, d, err)
	return matched, err
}

func (e *Engine) matches(ctx context.Context, subject Subject, row codec.EncodedSequence, query string) (bool, error) {
	q, err := e.ops.QueryKeySet(query)
	if err != nil {
		return false, err
	}
	excluded, err := e.excluded(ctx, subject)
	if err != nil {
		return false, err
	}
	return e.ops.Matches(q, e.ops.KeySet(row), excluded), nil
}

// RawScore returns the number of keys row and query share.
func (e *Engine) RawScore(ctx context.Context, row codec.EncodedSequence, query string) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	start := time.Now()
	n, err := e.scorer.RawScore(row, query)
	err = translateError(err)
	e.metrics.RecordScore("raw", time.Since(start), err)
	return n, err
}

// CorrectedScore returns RawScore minus the query keys excluded for subject,
// floored at 0.
func (e *Engine) CorrectedScore(ctx context.Context, subject Subject, row codec.EncodedSequence, query string) (int, error) {
	s, err := e.Score(ctx, subject, row, query)
	return s.Corrected, err
}

// Score returns both scores with a single parse of the query.
func (e *Engine) Score(ctx context.Context, subject Subject, row codec.EncodedSequence, query string) (score.Scores, error) {
	if err := e.check(); err != nil {
		return score.Scores{}, err
	}
	start := time.Now()

	var s score.Scores
	excluded, err := e.excluded(ctx, subject)
	if err == nil {
		s, err = e.scorer.Score(row, query, excluded)
	}
	err = translateError(err)

	e.metrics.RecordScore("corrected", time.Since(start), err)
	return s, err
}

// NewIndex returns an inverted index whose lookups discount the subject's
// exclusion set as it is cached right now. With exclude_high_freq_at_build
// the excluded keys are not indexed at all.
func (e *Engine) NewIndex(ctx context.Context, subject Subject) (*index.Postings, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	excluded, err := e.excluded(ctx, subject)
	if err != nil {
		return nil, translateError(err)
	}
	return index.NewPostings(e.ops, index.WithExclusions(excluded)), nil
}

// Search parses query and returns up to limit candidates from idx ranked by
// shared keys. limit <= 0 returns every candidate.
func (e *Engine) Search(ctx context.Context, idx *index.Postings, query string, limit int) ([]index.Candidate, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	q, err := e.ops.QueryKeySet(query)
	if err != nil {
		return nil, translateError(err)
	}
	return idx.Search(q, limit), nil
}

// FASTASource returns a row source over a FASTA file (optionally gzip
// compressed) whose reads are throttled by the engine's IO limit.
func (e *Engine) FASTASource(path string, opts ...rowsource.FASTAOption) *rowsource.FASTA {
	return rowsource.NewFASTA(path, append([]rowsource.FASTAOption{rowsource.WithController(e.rc)}, opts...)...)
}

// Analyze scans every row of src, flags the keys that appear too often and
// persists them as the subject's exclusion set, replacing any previous one.
// Cached copies of the previous set are dropped.
func (e *Engine) Analyze(ctx context.Context, subject Subject, src rowsource.Source) (highfreq.Result, error) {
	if err := e.check(); err != nil {
		return highfreq.Result{}, err
	}
	start := time.Now()

	res, err := e.analyzer.Analyze(ctx, subject, src)
	if err == nil {
		err = e.dropCached(subject)
	}
	err = translateError(err)

	if err != nil {
		res = highfreq.Result{Subject: subject}
	}
	e.metrics.RecordAnalysis(res.TotalRows, res.ExcludedKeys, time.Since(start), err)
	e.logger.LogAnalysis(ctx, res, err)
	return res, err
}

// UndoAnalysis deletes the subject's exclusion set from the store and from
// every cache. Undoing a subject that was never analyzed is not an error.
func (e *Engine) UndoAnalysis(ctx context.Context, subject Subject) (metastore.DropStats, error) {
	if err := e.check(); err != nil {
		return metastore.DropStats{}, err
	}
	stats, err := e.analyzer.Undo(ctx, subject)
	if err == nil {
		err = e.dropCached(subject)
	}
	err = translateError(err)
	e.logger.LogUndo(ctx, subject, stats, err)
	return stats, err
}

func (e *Engine) dropCached(subject Subject) error {
	e.exclusions.FreeLocal(subject)
	if _, err := e.exclusions.FreeShared(subject); err != nil && !errors.Is(err, exclusion.ErrSharedDisabled) {
		return err
	}
	return nil
}

// Metadata returns the subject's analysis metadata, or ErrSubjectNotAnalyzed.
func (e *Engine) Metadata(ctx context.Context, subject Subject) (metastore.Metadata, error) {
	if err := e.check(); err != nil {
		return metastore.Metadata{}, err
	}
	meta, err := e.store.Metadata(ctx, subject)
	return meta, translateError(err)
}

// Status lists every analyzed subject.
func (e *Engine) Status(ctx context.Context) ([]metastore.Metadata, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	list, err := e.store.List(ctx)
	return list, translateError(err)
}

// IsExcluded reports whether key is in the subject's exclusion set.
func (e *Engine) IsExcluded(ctx context.Context, subject Subject, key ngram.Key) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	ok, err := e.exclusions.IsExcluded(ctx, subject, key)
	return ok, translateError(err)
}

// LoadCache loads the subject's exclusion set into tier and returns its
// size. A subject that was never analyzed loads 0 entries.
func (e *Engine) LoadCache(ctx context.Context, tier CacheTier, subject Subject) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}

	var (
		n   int
		err error
	)
	switch tier {
	case LocalCache:
		n, err = e.exclusions.LoadLocal(ctx, subject)
	case SharedCache:
		n, err = e.exclusions.LoadShared(ctx, subject)
	default:
		err = fmt.Errorf("unsupported cache tier %s", tier)
	}
	err = translateError(err)
	e.logger.LogCacheLoad(ctx, tier, subject, n, err)
	return n, err
}

// FreeCache drops the subject's set from tier and returns the entries
// removed. Freeing the shared tier removes the segment for every process.
func (e *Engine) FreeCache(tier CacheTier, subject Subject) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	switch tier {
	case LocalCache:
		return e.exclusions.FreeLocal(subject), nil
	case SharedCache:
		n, err := e.exclusions.FreeShared(subject)
		return n, translateError(err)
	default:
		return 0, fmt.Errorf("unsupported cache tier %s", tier)
	}
}

// DetachCache unmaps the subject's shared segment in this process only.
func (e *Engine) DetachCache(subject Subject) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	n, err := e.exclusions.DetachShared(subject)
	return n, translateError(err)
}

// FreeAllCaches drops every set from tier and returns the entries removed.
func (e *Engine) FreeAllCaches(tier CacheTier) (int, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	switch tier {
	case LocalCache:
		return e.exclusions.FreeAllLocal(), nil
	case SharedCache:
		n, err := e.exclusions.FreeAllShared()
		return n, translateError(err)
	default:
		return 0, fmt.Errorf("unsupported cache tier %s", tier)
	}
}

// CacheStats returns a snapshot of the exclusion tiers and the auxiliary
// caches.
func (e *Engine) CacheStats() (CacheStats, error) {
	if err := e.check(); err != nil {
		return CacheStats{}, err
	}
	ex, err := e.exclusions.Stats()
	if err != nil {
		return CacheStats{}, err
	}
	return CacheStats{
		Exclusion:   ex,
		Aux:         e.aux.Stats(),
		MemoryUsage: e.rc.MemoryUsage(),
		MemoryLimit: e.rc.MemoryLimit(),
	}, nil
}

// ClearCaches empties the three auxiliary caches and returns the number of
// entries removed. Exclusion sets stay loaded.
func (e *Engine) ClearCaches() int {
	return e.aux.Clear()
}

// Close releases the caches and, if the engine created it, the store.
// Shared segments stay published for other processes.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		err := e.exclusions.Close()
		if e.ownsStore {
			err = errors.Join(err, e.store.Close())
		}
		e.closeErr = err
	})
	return e.closeErr
}
