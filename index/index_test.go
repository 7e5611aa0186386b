package index

import (
	"testing"

	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/hupe1980/dnagram/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(k int, mode config.ScoreMode) config.Config {
	cfg := config.Default()
	cfg.KmerSize = k
	cfg.ScoreMode = mode
	cfg.ActualMinScoreCache = config.MinCacheSize
	cfg.RawScoreCache = config.MinCacheSize
	cfg.QueryPatternCache = config.MinCacheSize
	return cfg
}

func newOps(t *testing.T, cfg config.Config) *KeyOps {
	t.Helper()
	aux, err := cache.NewAux(cfg)
	require.NoError(t, err)
	ops, err := NewOps(cfg, aux)
	require.NoError(t, err)
	return ops
}

func keys(ids ...uint64) *ngram.KeySet {
	ks := ngram.NewKeySet()
	for _, id := range ids {
		ks.Add(ngram.Key(id))
	}
	return ks
}

func span(from, to uint64) *ngram.KeySet {
	ks := ngram.NewKeySet()
	for i := from; i <= to; i++ {
		ks.Add(ngram.Key(i))
	}
	return ks
}

func TestNewOps_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.KmerSize = 32
	cfg.OccurrenceBits = 11
	_, err := NewOps(cfg, nil)
	var inc *config.ErrIncompatible
	assert.ErrorAs(t, err, &inc)
}

func TestQueryKeySet_TooShort(t *testing.T) {
	ops := newOps(t, testConfig(4, config.ScoreModeExact))

	_, err := ops.QueryKeySet("ACGTACG")
	var short *ErrQueryTooShort
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 7, short.Length)
	assert.Equal(t, MinQueryLength, short.Min)

	ops = newOps(t, testConfig(12, config.ScoreModeExact))
	_, err = ops.QueryKeySet("ACGTACGTAC")
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 12, short.Min)

	ks, err := ops.QueryKeySet("ACGTACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, 1, ks.Len())
}

func TestQueryKeySet_InvalidCharacter(t *testing.T) {
	ops := newOps(t, testConfig(4, config.ScoreModeExact))
	_, err := ops.QueryKeySet("ACGTXACGT")
	var bad *codec.ErrInvalidCharacter
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, 4, bad.Position)
}

func TestQueryKeySet_DegenerateUnion(t *testing.T) {
	ops := newOps(t, testConfig(4, config.ScoreModeExact))

	// R expands to A or G, so every window covering it contributes both.
	ks, err := ops.QueryKeySet("ACGRACGT")
	require.NoError(t, err)

	a, err := ops.QueryKeySet("ACGAACGT")
	require.NoError(t, err)
	g, err := ops.QueryKeySet("ACGGACGT")
	require.NoError(t, err)

	union := a.Clone()
	union.Or(g)
	assert.Equal(t, union.Keys(), ks.Keys())
}

func TestQueryKeySet_Memoized(t *testing.T) {
	cfg := testConfig(4, config.ScoreModeExact)
	aux, err := cache.NewAux(cfg)
	require.NoError(t, err)
	ops, err := NewOps(cfg, aux)
	require.NoError(t, err)

	first, err := ops.QueryKeySet("acgtacgtac")
	require.NoError(t, err)
	second, err := ops.QueryKeySet("acgtacgtac")
	require.NoError(t, err)
	assert.Same(t, first, second)

	st := aux.QueryPattern.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)

	// Errors are not cached.
	_, err = ops.QueryKeySet("ACG")
	require.Error(t, err)
	assert.Equal(t, 1, aux.QueryPattern.Len())
}

func TestActualMinScore(t *testing.T) {
	tests := []struct {
		name     string
		minScore int
		rate     float64
		query    *ngram.KeySet
		excluded *ngram.KeySet
		want     int
	}{
		{"rate dominates", 1, 0.5, span(1, 10), nil, 5},
		{"min score dominates", 7, 0.5, span(1, 10), nil, 7},
		{"rate is exact", 0, 0.9, span(1, 10), nil, 9},
		{"rate rounds up", 0, 0.25, span(1, 10), nil, 3},
		{"exclusions lower the bar", 1, 0.5, span(1, 10), keys(1, 2, 3, 100), 2},
		{"floored at zero", 1, 0.0, span(1, 10), span(1, 5), 0},
		{"empty query", 0, 1.0, nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(4, config.ScoreModeExact)
			cfg.MinScore = tt.minScore
			cfg.MinSharedNgramKeyRate = tt.rate

			assert.Equal(t, tt.want, ActualMinScore(tt.query, tt.excluded, cfg))
			ops := newOps(t, cfg)
			assert.Equal(t, tt.want, ops.ActualMinScore(tt.query, tt.excluded))
			assert.Equal(t, tt.want, ops.ActualMinScore(tt.query, tt.excluded), "memoized")
		})
	}
}

func TestActualMinScore_CacheKeyedByExclusion(t *testing.T) {
	cfg := testConfig(4, config.ScoreModeExact)
	cfg.MinSharedNgramKeyRate = 0.5
	aux, err := cache.NewAux(cfg)
	require.NoError(t, err)
	ops, err := NewOps(cfg, aux)
	require.NoError(t, err)

	q := span(1, 10)
	e := keys(1, 2)
	assert.Equal(t, 3, ops.ActualMinScore(q, e))
	assert.Equal(t, 5, ops.ActualMinScore(q, nil))
	assert.Equal(t, 2, aux.ActualMinScore.Len())

	assert.Equal(t, 1, aux.InvalidateExclusion(e.Fingerprint()))
	assert.Equal(t, 3, ops.ActualMinScore(q, e))
}

func TestMatches(t *testing.T) {
	cfg := testConfig(4, config.ScoreModeExact)
	cfg.MinScore = 1
	cfg.MinSharedNgramKeyRate = 0.5
	ops := newOps(t, cfg)

	q := span(1, 10)
	e := keys(1, 2, 3)

	assert.True(t, ops.Matches(q, keys(4, 5), e))
	assert.False(t, ops.Matches(q, keys(4), e))
	assert.False(t, ops.Matches(q, keys(1, 2, 3, 4), e), "excluded keys never count")
	assert.True(t, ops.Matches(q, span(1, 5), nil))
	assert.False(t, ops.Matches(q, span(1, 4), nil))
}

func TestMatches_ScoreModes(t *testing.T) {
	row := codec.MustEncode("AAAAAAAA", codec.DNA2)
	query := codec.MustEncode("AAAAAA", codec.DNA2)

	for _, tt := range []struct {
		mode   config.ScoreMode
		shared int
	}{
		{config.ScoreModeExact, 3},
		{config.ScoreModeKmer, 1},
	} {
		t.Run(string(tt.mode), func(t *testing.T) {
			cfg := testConfig(4, tt.mode)
			cfg.MinScore = 3
			cfg.MinSharedNgramKeyRate = 0
			ops := newOps(t, cfg)

			r, q := ops.KeySet(row), ops.KeySet(query)
			assert.Equal(t, tt.shared, ops.Normalize(q).AndLen(ops.Normalize(r)))
			assert.Equal(t, tt.shared >= 3, ops.Matches(q, r, nil))
		})
	}
}

func TestPostings_SearchRanking(t *testing.T) {
	cfg := testConfig(4, config.ScoreModeExact)
	cfg.MinScore = 1
	cfg.MinSharedNgramKeyRate = 0
	ops := newOps(t, cfg)
	p := NewPostings(ops)

	p.Add(1, codec.MustEncode("ACGTACGT", codec.DNA2))
	p.Add(2, codec.MustEncode("TTTTACGTCC", codec.DNA2))
	p.Add(3, codec.MustEncode("GGGGGGGG", codec.DNA2))
	p.Add(4, codec.MustEncode("ACGTACGTTT", codec.DNA2))

	q, err := ops.QueryKeySet("ACGTACGT")
	require.NoError(t, err)

	got := p.Search(q, 0)
	require.Len(t, got, 3)
	assert.Equal(t, Candidate{RowID: 1, Shared: 5}, got[0])
	assert.Equal(t, Candidate{RowID: 4, Shared: 5}, got[1])
	assert.Equal(t, uint64(2), got[2].RowID)

	assert.Len(t, p.Search(q, 1), 1)

	assert.True(t, p.Remove(1))
	assert.False(t, p.Remove(1))
	got = p.Search(q, 0)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].RowID)

	st := p.Stats()
	assert.Equal(t, 3, st.Rows)
	assert.Positive(t, st.Keys)
	assert.Positive(t, st.SizeInBytes)
}

func TestPostings_ReplaceRow(t *testing.T) {
	ops := newOps(t, testConfig(4, config.ScoreModeExact))
	p := NewPostings(ops)

	p.Add(7, codec.MustEncode("ACGTACGT", codec.DNA2))
	p.Add(7, codec.MustEncode("GGGGCCCC", codec.DNA2))

	q, err := ops.QueryKeySet("ACGTACGT")
	require.NoError(t, err)
	assert.Empty(t, p.Search(q, 0))

	ks, ok := p.RowKeys(7)
	require.True(t, ok)
	assert.True(t, ks.Equal(ops.KeySet(codec.MustEncode("GGGGCCCC", codec.DNA2))))
	assert.Equal(t, 1, p.Stats().Rows)
}

func TestPostings_ExcludedAtBuild(t *testing.T) {
	cfg := testConfig(4, config.ScoreModeExact)
	cfg.MinScore = 1
	cfg.MinSharedNgramKeyRate = 0
	ops := newOps(t, cfg)

	seq := codec.MustEncode("ACGTACGT", codec.DNA2)
	all := ops.KeySet(seq)
	excluded := ngram.NewKeySet(all.Keys()[0])

	p := NewPostings(ops, WithExclusions(excluded))
	p.Add(1, seq)
	assert.Equal(t, uint64(1), p.Stats().SkippedKeys)
	assert.Same(t, excluded, p.Excluded())

	cfg.ExcludeHighFreqAtBuild = false
	ops = newOps(t, cfg)
	p = NewPostings(ops, WithExclusions(excluded))
	p.Add(1, seq)
	assert.Zero(t, p.Stats().SkippedKeys)
	assert.Equal(t, all.Len(), p.Stats().Keys)
}

// Search must agree with evaluating Matches row by row.
func TestPostings_AgreesWithMatches(t *testing.T) {
	for _, mode := range []config.ScoreMode{config.ScoreModeExact, config.ScoreModeKmer} {
		t.Run(string(mode), func(t *testing.T) {
			cfg := testConfig(5, mode)
			cfg.OccurrenceBits = 2
			cfg.MinScore = 2
			cfg.MinSharedNgramKeyRate = 0.2
			ops := newOps(t, cfg)

			rng := testutil.NewRNG(42)
			rows := rng.RowsWithMotif(200, 20, 60, "ACGTTGCAAC", 0.3)

			full := make(map[uint64]*ngram.KeySet)
			var excluded *ngram.KeySet
			for i, text := range rows {
				full[uint64(i)] = ops.KeySet(codec.MustEncode(text, codec.DNA4))
			}
			excluded = ngram.NewKeySet(full[0].Keys()[:2]...)

			p := NewPostings(ops, WithExclusions(excluded))
			for i, text := range rows {
				p.Add(uint64(i), codec.MustEncode(text, codec.DNA4))
			}

			q, err := ops.QueryKeySet("ACGTTGCAACGT")
			require.NoError(t, err)

			want := make(map[uint64]int)
			qn := ops.Normalize(q).AndNot(ops.Normalize(excluded))
			for id, r := range full {
				shared := qn.AndLen(ops.Normalize(r))
				if shared > 0 && ops.Matches(q, r, excluded) {
					want[id] = shared
				}
			}
			require.NotEmpty(t, want)

			got := p.Search(q, 0)
			require.Len(t, got, len(want))
			for i, c := range got {
				assert.Equal(t, want[c.RowID], c.Shared, "row %d", c.RowID)
				if i > 0 {
					prev := got[i-1]
					assert.True(t, prev.Shared > c.Shared || (prev.Shared == c.Shared && prev.RowID < c.RowID))
				}
			}
		})
	}
}
