package metastore

import (
	"encoding/binary"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/hupe1980/dnagram/config"
	"github.com/hupe1980/dnagram/internal/hash"
	"github.com/hupe1980/dnagram/ngram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(n int) Record {
	keys := ngram.NewKeySet()
	for i := range n {
		// Repetitive keys compress well.
		keys.Add(ngram.Key(i * 3))
	}
	return Record{
		Metadata: Metadata{
			Subject:           Subject{Table: "seqs", Column: "dna"},
			KmerSize:          8,
			OccurrenceBits:    8,
			MaxAppearanceRate: 0.25,
			MaxAppearanceNrow: 40,
			AnalyzedAt:        time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC),
			TotalRows:         1234,
			ExcludedKeys:      int64(n),
			RunID:             "0b5c2f5e-8c7a-4a55-9b1e-6c8c1d2e3f40",
		},
		Keys: keys,
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			rec := testRecord(5000)
			data, err := EncodeRecord(rec, c)
			require.NoError(t, err)

			got, err := DecodeRecord(data)
			require.NoError(t, err)
			assert.Equal(t, rec.Metadata, got.Metadata)
			assert.True(t, rec.Keys.Equal(got.Keys))

			meta, err := DecodeMetadata(data)
			require.NoError(t, err)
			assert.Equal(t, rec.Metadata, meta)
		})
	}
}

func TestRecord_Compresses(t *testing.T) {
	rec := testRecord(50000)
	plain, err := EncodeRecord(rec, CompressionNone)
	require.NoError(t, err)
	packed, err := EncodeRecord(rec, CompressionZSTD)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(packed), len(plain))
}

func TestRecord_NilKeys(t *testing.T) {
	data, err := EncodeRecord(Record{Metadata: testRecord(0).Metadata}, CompressionLZ4)
	require.NoError(t, err)
	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.True(t, got.Keys.IsEmpty())
}

func TestRecord_Corrupt(t *testing.T) {
	data, err := EncodeRecord(testRecord(10), CompressionNone)
	require.NoError(t, err)

	t.Run("Short", func(t *testing.T) {
		_, err := DecodeRecord(data[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xFF
		_, err := DecodeRecord(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Version", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.LittleEndian.PutUint32(bad[4:], 99)
		_, err := DecodeRecord(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Checksum", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[len(bad)-1] ^= 0x01
		_, err := DecodeRecord(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.Contains(t, err.Error(), "checksum")
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := DecodeRecord(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

// forgeBlockSize rewrites the uncompressed size in a record's block header
// and reseals the body checksum.
func forgeBlockSize(t *testing.T, data []byte, size uint32) []byte {
	t.Helper()
	bad := append([]byte(nil), data...)
	body := bad[headerSize:]
	require.NotZero(t, binary.LittleEndian.Uint32(body[4:]), "block must be compressed")
	binary.LittleEndian.PutUint32(body[0:], size)
	binary.LittleEndian.PutUint32(bad[12:], hash.Checksum(body))
	return bad
}

// denseRecord holds a contiguous key range, which both codecs compress.
func denseRecord(n int) Record {
	rec := testRecord(0)
	rec.Keys = ngram.NewKeySet()
	for i := range n {
		rec.Keys.Add(ngram.Key(i))
	}
	rec.ExcludedKeys = int64(n)
	return rec
}

func TestRecord_ForgedBlockSize(t *testing.T) {
	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := EncodeRecord(denseRecord(10000), c)
			require.NoError(t, err)
			bad := forgeBlockSize(t, data, math.MaxUint32)

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err = DecodeRecord(bad)
			runtime.ReadMemStats(&after)

			assert.ErrorIs(t, err, ErrCorrupt)
			assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(64<<20), "allocation follows the data, not the header")
		})
	}

	t.Run("understated", func(t *testing.T) {
		data, err := EncodeRecord(denseRecord(10000), CompressionZSTD)
		require.NoError(t, err)
		_, err = DecodeRecord(forgeBlockSize(t, data, 16))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	s, err := ParseSubject("public.seqs.dna")
	require.NoError(t, err)
	assert.Equal(t, Subject{Table: "public.seqs", Column: "dna"}, s)
	assert.Equal(t, "public.seqs.dna", s.String())

	for _, bad := range []string{"", "seqs", ".dna", "seqs."} {
		_, err := ParseSubject(bad)
		assert.Error(t, err, bad)
	}

	assert.NoError(t, s.Validate())
	assert.Error(t, Subject{Table: "seqs"}.Validate())
}

func TestMetadata_Check(t *testing.T) {
	meta := testRecord(0).Metadata
	cfg := config.Default()
	cfg.KmerSize = meta.KmerSize
	cfg.OccurrenceBits = meta.OccurrenceBits
	cfg.MaxAppearanceRate = meta.MaxAppearanceRate
	cfg.MaxAppearanceNrow = meta.MaxAppearanceNrow
	require.NoError(t, meta.Check(cfg.Thresholds()))

	cfg.MaxAppearanceNrow = 41
	err := meta.Check(cfg.Thresholds())
	var inc *config.ErrIncompatible
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, "max_appearance_nrow", inc.Param)
	assert.Equal(t, int64(40), inc.Expected)
	assert.Equal(t, int64(41), inc.Actual)
	assert.Contains(t, inc.Hint, "seqs.dna")

	l, err := meta.Layout()
	require.NoError(t, err)
	assert.Equal(t, 32, l.Width())
}

func TestDropStats_Add(t *testing.T) {
	var s DropStats
	s.Add(DropStats{Records: 1, Keys: 10, BytesReclaimed: 100})
	s.Add(DropStats{Records: 2, Keys: 5, BytesReclaimed: 50})
	assert.Equal(t, DropStats{Records: 3, Keys: 15, BytesReclaimed: 150}, s)
}
