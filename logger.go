package dnagram

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/dnagram/highfreq"
	"github.com/hupe1980/dnagram/metastore"
)

// Logger wraps slog.Logger with dnagram-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSubject adds the table and column fields to the logger.
func (l *Logger) WithSubject(s metastore.Subject) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", s.Table, "column", s.Column),
	}
}

// WithTier adds a cache tier field to the logger.
func (l *Logger) WithTier(t CacheTier) *Logger {
	return &Logger{
		Logger: l.Logger.With("tier", t.String()),
	}
}

// LogAnalysis logs a high-frequency analysis.
func (l *Logger) LogAnalysis(ctx context.Context, res highfreq.Result, err error) {
	if err != nil {
		l.ErrorContext(ctx, "analysis failed",
			"subject", res.Subject.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "analysis completed",
		"subject", res.Subject.String(),
		"run_id", res.RunID,
		"rows", res.TotalRows,
		"excluded", res.ExcludedKeys,
		"workers", res.WorkersUsed,
		"duration", res.Duration,
	)
}

// LogUndo logs the removal of an analysis.
func (l *Logger) LogUndo(ctx context.Context, s metastore.Subject, stats metastore.DropStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "undo analysis failed",
			"subject", s.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "analysis removed",
		"subject", s.String(),
		"records", stats.Records,
		"keys", stats.Keys,
		"bytes_reclaimed", stats.BytesReclaimed,
	)
}

// LogCacheLoad logs a cache load into the given tier.
func (l *Logger) LogCacheLoad(ctx context.Context, t CacheTier, s metastore.Subject, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache load failed",
			"tier", t.String(),
			"subject", s.String(),
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "cache loaded",
		"tier", t.String(),
		"subject", s.String(),
		"entries", entries,
	)
}

// LogMatch logs a match evaluation.
func (l *Logger) LogMatch(ctx context.Context, s metastore.Subject, matched bool, d time.Duration, err error) {
	if err != nil {
		l.DebugContext(ctx, "match failed",
			"subject", s.String(),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "match evaluated",
		"subject", s.String(),
		"matched", matched,
		"duration", d,
	)
}
