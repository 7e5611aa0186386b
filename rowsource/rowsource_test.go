package rowsource

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Source, p Partition) []Row {
	t.Helper()
	var rows []Row
	require.NoError(t, s.Scan(context.Background(), p, func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	return rows
}

func TestPartition(t *testing.T) {
	assert.NoError(t, Full.Validate())
	assert.Error(t, Partition{Index: 0, Count: 0}.Validate())
	assert.Error(t, Partition{Index: 3, Count: 3}.Validate())
	assert.Error(t, Partition{Index: -1, Count: 3}.Validate())
	assert.Equal(t, "1/4", Partition{Index: 1, Count: 4}.String())

	p := Partition{Index: 1, Count: 3}
	assert.True(t, p.Owns(1))
	assert.True(t, p.Owns(4))
	assert.False(t, p.Owns(3))
}

func TestMemory_PartitionsCoverOnce(t *testing.T) {
	texts := make([]string, 17)
	for i := range texts {
		texts[i] = strings.Repeat("ACGT", i+2)
	}
	src, err := FromStrings(codec.DNA2, texts...)
	require.NoError(t, err)
	assert.Equal(t, 17, src.Len())

	for _, n := range []int{1, 2, 3, 5, 17, 20} {
		seen := make(map[uint64]int)
		for i := range n {
			for _, r := range collect(t, src, Partition{Index: i, Count: n}) {
				seen[r.ID]++
				assert.Equal(t, texts[r.ID], codec.Decode(r.Seq))
			}
		}
		assert.Len(t, seen, 17, "n=%d", n)
		for id, c := range seen {
			assert.Equal(t, 1, c, "row %d in n=%d", id, n)
		}
	}
}

func TestMemory_AppendRow(t *testing.T) {
	src := NewMemory()
	id := src.Append(codec.MustEncode("ACGTACGT", codec.DNA2))
	assert.Equal(t, uint64(0), id)

	row, ok := src.Row(0)
	require.True(t, ok)
	assert.Equal(t, "ACGTACGT", row.Seq.String())
	_, ok = src.Row(1)
	assert.False(t, ok)
}

func TestMemory_Errors(t *testing.T) {
	_, err := FromStrings(codec.DNA2, "ACGT", "ACNT")
	var ic *codec.ErrInvalidCharacter
	require.ErrorAs(t, err, &ic)
	assert.Contains(t, err.Error(), "row 1")

	src, err := FromStrings(codec.DNA2, "ACGT", "ACGT")
	require.NoError(t, err)

	stop := errors.New("stop")
	calls := 0
	err = src.Scan(context.Background(), Full, func(Row) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, src.Scan(ctx, Full, func(Row) error { return nil }), context.Canceled)
	assert.Error(t, src.Scan(context.Background(), Partition{}, func(Row) error { return nil }))
}

const sample = `; comment before the first record
>chr1 first contig
acgtACGT
NNRY
>chr2
GGGG

>empty
>chr3 third
TTTT
`

func TestReadFASTA(t *testing.T) {
	type rec struct {
		ord  uint64
		name string
		seq  string
	}
	var got []rec
	err := ReadFASTA(context.Background(), strings.NewReader(sample), func(o uint64, n string, s []byte) error {
		got = append(got, rec{o, n, string(s)})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []rec{
		{0, "chr1", "ACGTACGTNNRY"},
		{1, "chr2", "GGGG"},
		{2, "empty", ""},
		{3, "chr3", "TTTT"},
	}, got)
}

func TestReadFASTA_CRLFAndNoTrailingNewline(t *testing.T) {
	var seqs []string
	err := ReadFASTA(context.Background(), strings.NewReader(">a\r\nAC\r\nGT\r\n>b\r\nTT"), func(_ uint64, _ string, s []byte) error {
		seqs = append(seqs, string(s))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACGT", "TT"}, seqs)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if strings.HasSuffix(name, ".gz") {
		f, err := os.Create(path)
		require.NoError(t, err)
		zw := gzip.NewWriter(f)
		_, err = zw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		require.NoError(t, f.Close())
		return path
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFASTA_Scan(t *testing.T) {
	for _, name := range []string{"reads.fa", "reads.fa.gz"} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, sample)
			src := NewFASTA(path, WithController(resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})))

			rows := collect(t, src, Full)
			require.Len(t, rows, 4)
			assert.Equal(t, "chr1", rows[0].Name)
			assert.Equal(t, codec.DNA4, rows[0].Seq.Type())
			assert.Equal(t, "ACGTACGTNNRY", rows[0].Seq.String())
			assert.Equal(t, 0, rows[2].Seq.Len())

			odd := collect(t, src, Partition{Index: 1, Count: 2})
			require.Len(t, odd, 2)
			assert.Equal(t, []uint64{1, 3}, []uint64{odd[0].ID, odd[1].ID})
		})
	}
}

func TestFASTA_GzipCloseReleasesFile(t *testing.T) {
	src := NewFASTA(writeFile(t, "reads.fa.gz", sample))
	rc, err := src.open(context.Background())
	require.NoError(t, err)

	gz, ok := rc.(*gzipFile)
	require.True(t, ok)
	_, err = io.ReadAll(rc)
	require.NoError(t, err)

	require.NoError(t, rc.Close())
	_, err = gz.file.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestFASTA_GzipBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fa.gz")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	err := NewFASTA(path).Scan(context.Background(), Full, func(Row) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestFASTA_DNA2RejectsDegenerate(t *testing.T) {
	src := NewFASTA(writeFile(t, "reads.fa", sample), WithType(codec.DNA2))
	err := src.Scan(context.Background(), Full, func(Row) error { return nil })

	var ic *codec.ErrInvalidCharacter
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, byte('N'), ic.Char)
	assert.Contains(t, err.Error(), "chr1")
}

func TestFASTA_Missing(t *testing.T) {
	src := NewFASTA(filepath.Join(t.TempDir(), "nope.fa"))
	err := src.Scan(context.Background(), Full, func(Row) error { return nil })
	assert.ErrorIs(t, err, os.ErrNotExist)
}
