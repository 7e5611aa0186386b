package dnagram

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the metric
// package ships a Prometheus implementation.
type MetricsCollector interface {
	// RecordMatch is called after each match evaluation.
	RecordMatch(matched bool, duration time.Duration, err error)

	// RecordScore is called after each score computation. kind is "raw" or
	// "corrected".
	RecordScore(kind string, duration time.Duration, err error)

	// RecordAnalysis is called after each analysis. excluded is the size of
	// the persisted exclusion set; it is 0 when err is non-nil.
	RecordAnalysis(rows int64, excluded int, duration time.Duration, err error)

	// RecordCacheLookup is called for every exclusion lookup with the tier
	// that answered it ("local", "shared", "store" or "none").
	RecordCacheLookup(tier string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMatch(bool, time.Duration, error)          {}
func (NoopMetricsCollector) RecordScore(string, time.Duration, error)        {}
func (NoopMetricsCollector) RecordAnalysis(int64, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCacheLookup(string)                        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MatchCount        atomic.Int64
	MatchHits         atomic.Int64
	MatchErrors       atomic.Int64
	MatchTotalNanos   atomic.Int64
	ScoreCount        atomic.Int64
	ScoreErrors       atomic.Int64
	ScoreTotalNanos   atomic.Int64
	AnalysisCount     atomic.Int64
	AnalysisErrors    atomic.Int64
	AnalyzedRows      atomic.Int64
	LocalLookups      atomic.Int64
	SharedLookups     atomic.Int64
	StoreLookups      atomic.Int64
	UnanalyzedLookups atomic.Int64
}

// RecordMatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatch(matched bool, duration time.Duration, err error) {
	b.MatchCount.Add(1)
	b.MatchTotalNanos.Add(duration.Nanoseconds())
	switch {
	case err != nil:
		b.MatchErrors.Add(1)
	case matched:
		b.MatchHits.Add(1)
	}
}

// RecordScore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScore(kind string, duration time.Duration, err error) {
	b.ScoreCount.Add(1)
	b.ScoreTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ScoreErrors.Add(1)
	}
}

// RecordAnalysis implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAnalysis(rows int64, excluded int, duration time.Duration, err error) {
	b.AnalysisCount.Add(1)
	if err != nil {
		b.AnalysisErrors.Add(1)
		return
	}
	b.AnalyzedRows.Add(rows)
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(tier string) {
	switch tier {
	case "local":
		b.LocalLookups.Add(1)
	case "shared":
		b.SharedLookups.Add(1)
	case "store":
		b.StoreLookups.Add(1)
	default:
		b.UnanalyzedLookups.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		MatchCount:        b.MatchCount.Load(),
		MatchHits:         b.MatchHits.Load(),
		MatchErrors:       b.MatchErrors.Load(),
		MatchAvgNanos:     avg(b.MatchTotalNanos.Load(), b.MatchCount.Load()),
		ScoreCount:        b.ScoreCount.Load(),
		ScoreErrors:       b.ScoreErrors.Load(),
		ScoreAvgNanos:     avg(b.ScoreTotalNanos.Load(), b.ScoreCount.Load()),
		AnalysisCount:     b.AnalysisCount.Load(),
		AnalysisErrors:    b.AnalysisErrors.Load(),
		AnalyzedRows:      b.AnalyzedRows.Load(),
		LocalLookups:      b.LocalLookups.Load(),
		SharedLookups:     b.SharedLookups.Load(),
		StoreLookups:      b.StoreLookups.Load(),
		UnanalyzedLookups: b.UnanalyzedLookups.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	MatchCount        int64
	MatchHits         int64
	MatchErrors       int64
	MatchAvgNanos     int64
	ScoreCount        int64
	ScoreErrors       int64
	ScoreAvgNanos     int64
	AnalysisCount     int64
	AnalysisErrors    int64
	AnalyzedRows      int64
	LocalLookups      int64
	SharedLookups     int64
	StoreLookups      int64
	UnanalyzedLookups int64
}
