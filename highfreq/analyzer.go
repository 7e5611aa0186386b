package highfreq

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/hupe1980/dnagram/rowsource"
	"golang.org/x/sync/errgroup"
)

// Result summarizes one completed analysis.
type Result struct {
	Subject           metastore.Subject
	RunID             string
	TotalRows         int64
	DistinctKeys      int
	ExcludedKeys      int
	WorkersUsed       int
	RateUsed          float64
	NrowThresholdUsed int64
	Duration          time.Duration
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithController draws worker slots and the row throttle from rc.
func WithController(rc *resource.Controller) Option {
	return func(a *Analyzer) { a.rc = rc }
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides the analysis timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithObserver registers fn to be called on every phase transition.
func WithObserver(fn func(metastore.Subject, Phase)) Option {
	return func(a *Analyzer) { a.observe = fn }
}

// Analyzer runs high-frequency analyses against one store.
//
// Analyze may be called concurrently for different subjects. Runs for the
// same subject race on Replace and the last writer wins.
type Analyzer struct {
	cfg     config.Config
	layout  ngram.Layout
	store   metastore.Store
	rc      *resource.Controller
	logger  *slog.Logger
	now     func() time.Time
	observe func(metastore.Subject, Phase)
}

// New validates cfg and returns an Analyzer persisting to store.
func New(cfg config.Config, store metastore.Store, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg:    cfg,
		layout: cfg.Layout(),
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Analyzer) enter(subject metastore.Subject, p Phase) {
	if a.observe != nil {
		a.observe(subject, p)
	}
}

func (a *Analyzer) abort(subject metastore.Subject, err *AbortError) error {
	a.enter(subject, PhaseAborted)
	a.logger.Warn("analysis aborted",
		"subject", subject.String(),
		"phase", err.Phase.String(),
		"partition", err.Partition,
		"error", err.Err,
	)
	return err
}

// Analyze scans src, flags high-frequency keys and replaces the subject's
// exclusion record. On failure the returned error matches ErrAborted and the
// previous record, if any, is untouched.
func (a *Analyzer) Analyze(ctx context.Context, subject metastore.Subject, src rowsource.Source) (Result, error) {
	if err := subject.Validate(); err != nil {
		return Result{}, err
	}
	start := time.Now()
	runID := uuid.NewString()
	log := a.logger.With("subject", subject.String(), "run_id", runID)

	want := a.cfg.AnalysisWorkers
	if want <= 0 {
		want = a.rc.MaxWorkers()
	}
	workers, err := a.rc.AcquireWorkers(ctx, want)
	if err != nil {
		return Result{}, a.abort(subject, &AbortError{Phase: PhaseIdle, Partition: -1, Err: err})
	}
	defer a.rc.ReleaseWorkers(workers)

	a.enter(subject, PhaseScanning)
	log.Info("analysis started", "workers", workers, "kmer_size", a.cfg.KmerSize, "occurrence_bits", a.cfg.OccurrenceBits)

	done := make(chan *Histogram, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		p := rowsource.Partition{Index: i, Count: workers}
		g.Go(func() error {
			h, err := a.scan(gctx, src, p)
			if err != nil {
				return &AbortError{Phase: PhaseScanning, Partition: i, Err: err}
			}
			log.Debug("partition scanned", "partition", p.String(), "rows", h.Rows(), "keys", h.Len())
			done <- h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		ae, ok := err.(*AbortError)
		if !ok {
			ae = &AbortError{Phase: PhaseScanning, Partition: -1, Err: err}
		}
		return Result{}, a.abort(subject, ae)
	}
	close(done)

	a.enter(subject, PhaseAggregating)
	total := NewHistogram()
	for h := range done {
		total.Merge(h)
	}

	a.enter(subject, PhaseFlagging)
	excluded := total.Flag(a.cfg.MaxAppearanceRate, a.cfg.MaxAppearanceNrow)
	if err := ctx.Err(); err != nil {
		return Result{}, a.abort(subject, &AbortError{Phase: PhaseFlagging, Partition: -1, Err: err})
	}

	rec := metastore.Record{
		Metadata: metastore.Metadata{
			Subject:           subject,
			KmerSize:          a.cfg.KmerSize,
			OccurrenceBits:    a.cfg.OccurrenceBits,
			MaxAppearanceRate: a.cfg.MaxAppearanceRate,
			MaxAppearanceNrow: a.cfg.MaxAppearanceNrow,
			AnalyzedAt:        a.now().UTC(),
			TotalRows:         total.Rows(),
			ExcludedKeys:      int64(excluded.Len()),
			RunID:             runID,
		},
		Keys: excluded,
	}
	if err := a.store.Replace(ctx, rec); err != nil {
		return Result{}, a.abort(subject, &AbortError{Phase: PhaseFlagging, Partition: -1, Err: err})
	}
	a.enter(subject, PhasePersisted)

	res := Result{
		Subject:           subject,
		RunID:             runID,
		TotalRows:         total.Rows(),
		DistinctKeys:      total.Len(),
		ExcludedKeys:      excluded.Len(),
		WorkersUsed:       workers,
		RateUsed:          a.cfg.MaxAppearanceRate,
		NrowThresholdUsed: a.cfg.MaxAppearanceNrow,
		Duration:          time.Since(start),
	}
	log.Info("analysis persisted",
		"total_rows", res.TotalRows,
		"distinct_keys", res.DistinctKeys,
		"excluded_keys", res.ExcludedKeys,
		"duration", res.Duration,
	)
	return res, nil
}

func (a *Analyzer) scan(ctx context.Context, src rowsource.Source, p rowsource.Partition) (*Histogram, error) {
	h := ForPartition(p)
	b := ngram.NewBuilder(a.layout)
	err := src.Scan(ctx, p, func(row rowsource.Row) error {
		if err := a.rc.WaitRows(ctx, 1); err != nil {
			return err
		}
		h.Observe(b.Build(row.Seq))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Undo drops the subject's exclusion record. Undoing a subject that was
// never analyzed returns zero stats.
func (a *Analyzer) Undo(ctx context.Context, subject metastore.Subject) (metastore.DropStats, error) {
	if err := subject.Validate(); err != nil {
		return metastore.DropStats{}, err
	}
	st, err := a.store.Delete(ctx, subject)
	if err != nil {
		return metastore.DropStats{}, err
	}
	a.logger.Info("analysis undone",
		"subject", subject.String(),
		"records", st.Records,
		"keys", st.Keys,
		"bytes_reclaimed", st.BytesReclaimed,
	)
	return st, nil
}
