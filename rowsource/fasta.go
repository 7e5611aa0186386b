package rowsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/klauspost/compress/gzip"
)

const fastaBufSize = 1 << 20

// FASTA is a Source over the records of a FASTA file. Each record is one
// row; its ordinal is its position in the file. Files ending in .gz are
// decompressed transparently. Every Scan re-reads the file, so partitions
// can be scanned concurrently.
type FASTA struct {
	path string
	typ  codec.Type
	rc   *resource.Controller
}

var _ Source = (*FASTA)(nil)

// FASTAOption configures a FASTA source.
type FASTAOption func(*FASTA)

// WithType sets the encoding of records. Default is DNA4 so IUPAC codes
// in assemblies are accepted.
func WithType(typ codec.Type) FASTAOption {
	return func(f *FASTA) {
		f.typ = typ
	}
}

// WithController throttles reads through rc's IO limit.
func WithController(rc *resource.Controller) FASTAOption {
	return func(f *FASTA) {
		f.rc = rc
	}
}

// NewFASTA returns a Source reading path.
func NewFASTA(path string, opts ...FASTAOption) *FASTA {
	f := &FASTA{path: path, typ: codec.DNA4}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FASTA) open(ctx context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	var r io.Reader = fh
	if f.rc != nil {
		r = resource.NewRateLimitedReader(ctx, fh, f.rc)
	}
	if strings.HasSuffix(f.path, ".gz") {
		gr, err := gzip.NewReader(r)
		if err != nil {
			_ = fh.Close()
			return nil, fmt.Errorf("%s: %w", f.path, err)
		}
		return &gzipFile{Reader: gr, file: fh}, nil
	}
	return struct {
		io.Reader
		io.Closer
	}{Reader: r, Closer: fh}, nil
}

// gzipFile closes the decompressor together with the file beneath it.
type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}

// Scan implements Source.
func (f *FASTA) Scan(ctx context.Context, p Partition, fn func(Row) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rc, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	return ReadFASTA(ctx, rc, func(ordinal uint64, name string, seq []byte) error {
		if !p.Owns(ordinal) {
			return nil
		}
		enc, err := codec.Encode(string(seq), f.typ)
		if err != nil {
			return fmt.Errorf("%s: record %d (%s): %w", f.path, ordinal, name, err)
		}
		return fn(Row{ID: ordinal, Name: name, Seq: enc})
	})
}

// ReadFASTA streams the records of r. seq is upper-cased with line breaks
// removed and is reused between calls. Lines before the first header and
// blank lines are ignored.
func ReadFASTA(ctx context.Context, r io.Reader, fn func(ordinal uint64, name string, seq []byte) error) error {
	br := bufio.NewReaderSize(r, fastaBufSize)

	var (
		ordinal uint64
		name    string
		inRec   bool
		seq     []byte
	)
	flush := func() error {
		if !inRec {
			return nil
		}
		err := fn(ordinal, name, seq)
		ordinal++
		seq = seq[:0]
		return err
	}

	for {
		line, err := br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}
		line = bytes.TrimRight(line, "\r\n")

		if len(line) > 0 && line[0] == '>' {
			if ferr := flush(); ferr != nil {
				return ferr
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			inRec = true
			name = ""
			if fields := bytes.Fields(line[1:]); len(fields) > 0 {
				name = string(fields[0])
			}
		} else if inRec {
			seq = append(seq, bytes.ToUpper(bytes.TrimSpace(line))...)
		}

		if err == io.EOF {
			return flush()
		}
	}
}
