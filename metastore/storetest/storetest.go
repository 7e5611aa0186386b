// Package storetest holds the behavioural suite every metastore.Store
// implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Record returns a record for subject with keys 1..n under the default
// configuration.
func Record(subject metastore.Subject, n int) metastore.Record {
	cfg := config.Default()
	keys := ngram.NewKeySet()
	for i := 1; i <= n; i++ {
		keys.Add(ngram.Key(i))
	}
	return metastore.Record{
		Metadata: metastore.Metadata{
			Subject:           subject,
			KmerSize:          cfg.KmerSize,
			OccurrenceBits:    cfg.OccurrenceBits,
			MaxAppearanceRate: cfg.MaxAppearanceRate,
			MaxAppearanceNrow: cfg.MaxAppearanceNrow,
			AnalyzedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			TotalRows:         int64(10 * n),
			RunID:             "run-" + subject.Column,
		},
		Keys: keys,
	}
}

// Run exercises s. The store must start empty.
func Run(t *testing.T, s metastore.Store) {
	t.Helper()
	ctx := context.Background()
	seqs := metastore.Subject{Table: "public.seqs", Column: "dna"}
	reads := metastore.Subject{Table: "reads", Column: "seq"}

	t.Run("NotAnalyzed", func(t *testing.T) {
		_, err := s.Get(ctx, seqs)
		assert.ErrorIs(t, err, metastore.ErrNotAnalyzed)
		_, err = s.Metadata(ctx, seqs)
		assert.ErrorIs(t, err, metastore.ErrNotAnalyzed)
		_, err = s.Contains(ctx, seqs, 1)
		assert.ErrorIs(t, err, metastore.ErrNotAnalyzed)

		stats, err := s.Delete(ctx, seqs)
		require.NoError(t, err)
		assert.Zero(t, stats)
	})

	t.Run("InvalidSubject", func(t *testing.T) {
		_, err := s.Get(ctx, metastore.Subject{Table: "t"})
		assert.Error(t, err)
		assert.Error(t, s.Replace(ctx, metastore.Record{}))
	})

	t.Run("ReplaceGet", func(t *testing.T) {
		rec := Record(seqs, 100)
		require.NoError(t, s.Replace(ctx, rec))

		got, err := s.Get(ctx, seqs)
		require.NoError(t, err)
		assert.True(t, rec.Keys.Equal(got.Keys))
		assert.Equal(t, seqs, got.Subject)
		assert.Equal(t, rec.KmerSize, got.KmerSize)
		assert.Equal(t, rec.MaxAppearanceRate, got.MaxAppearanceRate)
		assert.Equal(t, rec.TotalRows, got.TotalRows)
		assert.Equal(t, int64(100), got.ExcludedKeys)
		assert.Equal(t, rec.RunID, got.RunID)
		assert.True(t, rec.AnalyzedAt.Equal(got.AnalyzedAt))

		meta, err := s.Metadata(ctx, seqs)
		require.NoError(t, err)
		assert.Equal(t, got.Metadata, meta)

		ok, err := s.Contains(ctx, seqs, 50)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Contains(ctx, seqs, 101)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ReplaceSwapsWholeSet", func(t *testing.T) {
		rec := Record(seqs, 3)
		rec.Keys = ngram.NewKeySet(1000, 2000)
		rec.RunID = "second"
		require.NoError(t, s.Replace(ctx, rec))

		got, err := s.Get(ctx, seqs)
		require.NoError(t, err)
		assert.Equal(t, []ngram.Key{1000, 2000}, got.Keys.Keys())
		assert.Equal(t, "second", got.RunID)

		ok, err := s.Contains(ctx, seqs, 50)
		require.NoError(t, err)
		assert.False(t, ok, "keys of the previous analysis are gone")
	})

	t.Run("EmptySet", func(t *testing.T) {
		rec := Record(reads, 0)
		require.NoError(t, s.Replace(ctx, rec))

		got, err := s.Get(ctx, reads)
		require.NoError(t, err)
		assert.True(t, got.Keys.IsEmpty())
	})

	t.Run("List", func(t *testing.T) {
		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, seqs, list[0].Subject)
		assert.Equal(t, reads, list[1].Subject)
	})

	t.Run("Delete", func(t *testing.T) {
		stats, err := s.Delete(ctx, seqs)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Records)
		assert.Equal(t, int64(2), stats.Keys)
		assert.Positive(t, stats.BytesReclaimed)

		_, err = s.Get(ctx, seqs)
		assert.ErrorIs(t, err, metastore.ErrNotAnalyzed)

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, reads, list[0].Subject)
	})
}
