package cache

import (
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/ngram"
)

// ActualMinKey identifies one actual-min-score computation.
type ActualMinKey struct {
	Query     uint64 // query key-set fingerprint
	Exclusion uint64 // exclusion set fingerprint, 0 when none applies
	MinScore  int
	Rate      float64
}

// RawScoreKey identifies one raw-score computation.
type RawScoreKey struct {
	Sequence uint64 // sequence fingerprint
	Query    uint64 // query text fingerprint
	K        int
	OccBits  int
	Mode     config.ScoreMode
}

// PatternKey identifies one parsed query.
type PatternKey struct {
	Text    string
	K       int
	OccBits int
}

// Aux holds the three auxiliary caches.
type Aux struct {
	ActualMinScore *LRU[ActualMinKey, int]
	RawScore       *LRU[RawScoreKey, int]
	QueryPattern   *LRU[PatternKey, *ngram.KeySet]
}

// AuxStats reports every auxiliary cache.
type AuxStats struct {
	ActualMinScore Stats
	RawScore       Stats
	QueryPattern   Stats
}

// NewAux creates the auxiliary caches with capacities taken from cfg.
// Each capacity must lie in [config.MinCacheSize, config.MaxCacheSize].
func NewAux(cfg config.Config) (*Aux, error) {
	for _, c := range []struct {
		name string
		size int
	}{
		{"actual_min_score_cache_size", cfg.ActualMinScoreCache},
		{"raw_score_cache_size", cfg.RawScoreCache},
		{"query_pattern_cache_size", cfg.QueryPatternCache},
	} {
		if c.size < config.MinCacheSize || c.size > config.MaxCacheSize {
			return nil, &config.ErrOutOfRange{Param: c.name, Value: c.size, Range: "[1000, 10000000]"}
		}
	}

	return &Aux{
		ActualMinScore: NewLRU[ActualMinKey, int](cfg.ActualMinScoreCache),
		RawScore:       NewLRU[RawScoreKey, int](cfg.RawScoreCache),
		QueryPattern:   NewLRU[PatternKey, *ngram.KeySet](cfg.QueryPatternCache),
	}, nil
}

// Stats returns a snapshot of every auxiliary cache.
func (a *Aux) Stats() AuxStats {
	return AuxStats{
		ActualMinScore: a.ActualMinScore.Stats(),
		RawScore:       a.RawScore.Stats(),
		QueryPattern:   a.QueryPattern.Stats(),
	}
}

// Clear empties every auxiliary cache and returns the total number of
// entries removed.
func (a *Aux) Clear() int {
	return a.ActualMinScore.Clear() + a.RawScore.Clear() + a.QueryPattern.Clear()
}

// InvalidateExclusion drops actual-min-score entries computed against the
// given exclusion fingerprint.
func (a *Aux) InvalidateExclusion(fingerprint uint64) int {
	return a.ActualMinScore.Invalidate(func(k ActualMinKey) bool { return k.Exclusion == fingerprint })
}
