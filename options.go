package dnagram

import (
	"log/slog"

	"github.com/hupe1980/dnagram/blobstore"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/metastore"
)

type options struct {
	cfg              config.Config
	store            metastore.Store
	ownsStore        bool
	limits           resource.Config
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Engine constructor behavior.
type Option func(*options)

// WithConfig replaces the default engine parameters. cfg is validated by New.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithStore sets the durable store exclusion records are persisted in. The
// caller keeps ownership: Close does not close it.
//
// If no store is configured, records live in memory and are lost on Close.
func WithStore(store metastore.Store) Option {
	return func(o *options) {
		o.store = store
		o.ownsStore = false
	}
}

// WithBlobStore persists exclusion records as objects in blobs (local disk,
// S3, MinIO). opts select the record compression.
//
// Example:
//
//	blobs, _ := blobstore.NewLocalStore("/var/lib/dnagram")
//	eng, err := dnagram.New(ctx, dnagram.WithBlobStore(blobs,
//	    metastore.WithCompression(metastore.CompressionZSTD)))
func WithBlobStore(blobs blobstore.Store, opts ...metastore.BlobOption) Option {
	return func(o *options) {
		o.store = metastore.NewBlobStore(blobs, opts...)
		o.ownsStore = true
	}
}

// WithMemoryLimit caps the bytes pinned by locally cached exclusion sets.
// A load that would exceed the limit fails. 0 tracks usage without a limit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.limits.MemoryLimitBytes = bytes
	}
}

// WithMaxWorkers bounds the analysis workers of all concurrent analyses.
// 0 means GOMAXPROCS.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.limits.MaxWorkers = int64(n)
	}
}

// WithRowsPerSecond throttles the rows scanned per second during analysis.
func WithRowsPerSecond(n int64) Option {
	return func(o *options) {
		o.limits.RowsPerSec = n
	}
}

// WithIOLimit throttles the bytes per second read by file row sources
// opened through the engine.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.limits.IOLimitBytesPerSec = bytesPerSec
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &dnagram.BasicMetricsCollector{}
//	eng, _ := dnagram.New(ctx, dnagram.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
//	fmt.Printf("Matches: %d, hits: %d\n", stats.MatchCount, stats.MatchHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := dnagram.NewJSONLogger(slog.LevelInfo)
//	eng, _ := dnagram.New(ctx, dnagram.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cfg:              config.Default(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.store == nil {
		o.store = metastore.NewBlobStore(blobstore.NewMemoryStore())
		o.ownsStore = true
	}
	return o
}
