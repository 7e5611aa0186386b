package score

import (
	"testing"

	"github.com/hupe1980/dnagram/cache"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/index"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/hupe1980/dnagram/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, k int, mode config.ScoreMode) (*Engine, *index.KeyOps, *cache.Aux) {
	t.Helper()
	cfg := config.Default()
	cfg.KmerSize = k
	cfg.ScoreMode = mode
	aux, err := cache.NewAux(cfg)
	require.NoError(t, err)
	ops, err := index.NewOps(cfg, aux)
	require.NoError(t, err)
	return NewEngine(ops, aux), ops, aux
}

func setScore(ops *index.KeyOps, row, query string) int {
	r := ops.KeySet(codec.MustEncode(row, codec.DNA4))
	q := ops.KeySet(codec.MustEncode(query, codec.DNA4))
	return Raw(ops.Normalize(r), ops.Normalize(q))
}

func TestRaw_Examples(t *testing.T) {
	tests := []struct {
		name       string
		row, query string
		exact      int
		kmer       int
	}{
		// ATCG occurs twice in the row; the query's single ATCG is occurrence 0.
		{"repeated window", "ATCGATCG", "ATCG", 1, 1},
		{"homopolymer", "AAAAAAAA", "AAAAAA", 3, 1},
		{"disjoint", "AAAAAAAA", "CCCCCC", 0, 0},
		{"shorter than k", "ACG", "ACGT", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, exact, _ := newEngine(t, 4, config.ScoreModeExact)
			_, kmer, _ := newEngine(t, 4, config.ScoreModeKmer)
			assert.Equal(t, tt.exact, setScore(exact, tt.row, tt.query))
			assert.Equal(t, tt.kmer, setScore(kmer, tt.row, tt.query))
		})
	}
}

func TestRaw_MatchesNaiveOracle(t *testing.T) {
	_, ops, _ := newEngine(t, 6, config.ScoreModeExact)
	rng := testutil.NewRNG(7)
	rows := rng.RowsWithMotif(100, 10, 80, "GATTACAGATTACA", 0.5)
	query := "GATTACAGATTACAGG"

	want := testutil.NaiveKeys(query, 6, 8)
	for _, row := range rows {
		got := setScore(ops, row, query)
		assert.Equal(t, testutil.Intersect(testutil.NaiveKeys(row, 6, 8), want), got, row)
		assert.Equal(t, got, setScore(ops, query, row), "symmetric")
	}
}

func TestRaw_OrderInvariant(t *testing.T) {
	_, ops, _ := newEngine(t, 4, config.ScoreModeExact)
	// Same windows, different order of first appearance.
	a := setScore(ops, "ACGTTTTT", "TTTTACGT")
	b := setScore(ops, "TTTTACGT", "ACGTTTTT")
	assert.Equal(t, a, b)
}

func TestRaw_DegenerateExpansionBound(t *testing.T) {
	_, ops, _ := newEngine(t, 4, config.ScoreModeExact)

	// Every window of N has 256 expansions and is dropped.
	assert.Zero(t, setScore(ops, "NNNNNNNN", "NNNNNNNN"))
	assert.Zero(t, ops.KeySet(codec.MustEncode("NNNNNNNN", codec.DNA4)).Len())

	// A single R expands to two windows and still contributes.
	assert.Equal(t, 1, setScore(ops, "ACGA", "ACGR"))
}

func TestEngine_RawScore(t *testing.T) {
	e, _, aux := newEngine(t, 4, config.ScoreModeExact)
	seq := codec.MustEncode("ACGTACGTAC", codec.DNA2)

	raw, err := e.RawScore(seq, "ACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, 5, raw)

	again, err := e.RawScore(seq, "ACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, raw, again)
	assert.Equal(t, int64(1), aux.RawScore.Stats().Hits)

	// Same text as DNA4 is a different sequence and gets its own entry.
	_, err = e.RawScore(codec.MustEncode("ACGTACGTAC", codec.DNA4), "ACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, 2, aux.RawScore.Len())
}

func TestEngine_QueryErrors(t *testing.T) {
	e, _, _ := newEngine(t, 4, config.ScoreModeExact)
	seq := codec.MustEncode("ATCGATCG", codec.DNA2)

	_, err := e.RawScore(seq, "ATCG")
	var short *index.ErrQueryTooShort
	assert.ErrorAs(t, err, &short)

	_, err = e.CorrectedScore(seq, "ATCGXTCG", nil)
	var bad *codec.ErrInvalidCharacter
	assert.ErrorAs(t, err, &bad)
}

func TestEngine_CorrectedScore(t *testing.T) {
	for _, mode := range []config.ScoreMode{config.ScoreModeExact, config.ScoreModeKmer} {
		t.Run(string(mode), func(t *testing.T) {
			e, ops, _ := newEngine(t, 4, mode)
			seq := codec.MustEncode("ACGTACGTAC", codec.DNA2)

			s, err := e.Score(seq, "ACGTACGT", nil)
			require.NoError(t, err)
			assert.Equal(t, s.Raw, s.Corrected, "no exclusions")

			q, err := ops.QueryKeySet("ACGTACGT")
			require.NoError(t, err)
			keys := q.Keys() // ACGT#0, ACGT#1, CGTA#0, ...
			excluded := ngram.NewKeySet(keys[0], keys[2])

			s, err = e.Score(seq, "ACGTACGT", excluded)
			require.NoError(t, err)
			assert.LessOrEqual(t, s.Corrected, s.Raw)
			assert.Equal(t, s.Raw-2, s.Corrected)

			c, err := e.CorrectedScore(seq, "ACGTACGT", excluded)
			require.NoError(t, err)
			assert.Equal(t, s.Corrected, c)
		})
	}
}

func TestCorrected_Floor(t *testing.T) {
	q := ngram.NewKeySet(1, 2, 3)
	assert.Equal(t, 0, Corrected(1, q, ngram.NewKeySet(1, 2, 3)))
	assert.Equal(t, 4, Corrected(4, q, nil))
}

func TestEngine_WithoutCache(t *testing.T) {
	cfg := config.Default()
	cfg.KmerSize = 4
	ops, err := index.NewOps(cfg, nil)
	require.NoError(t, err)
	e := NewEngine(ops, nil)

	raw, err := e.RawScore(codec.MustEncode("ACGTACGT", codec.DNA2), "ACGTACGT")
	require.NoError(t, err)
	assert.Equal(t, 5, raw)
}
