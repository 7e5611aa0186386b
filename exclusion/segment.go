package exclusion

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/dnagram/internal/conv"
	"github.com/hupe1980/dnagram/internal/hash"
	"github.com/hupe1980/dnagram/internal/mmap"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
)

// Segment layout (little endian):
//
//	0  magic "DNGS"
//	4  version u16, reserved u16
//	8  kmer_size u32
//	12 occurrence_bits u32
//	16 max_appearance_rate f64 bits
//	24 max_appearance_nrow i64
//	32 analyzed_at unix nanos i64
//	40 total_rows i64
//	48 key count u64
//	56 CRC32C of bytes 0..56 and the key area u32
//	60 attach count u32
//	64 keys, u64 each, ascending
//
// Everything but the attach count is immutable once the segment is renamed
// into place, so the checksum covers all of it.
const (
	segmentMagic   = "DNGS"
	segmentVersion = 2
	headerSize     = 64
	crcOffset      = 56
	refsOffset     = 60
)

// ErrCorruptSegment is returned for a segment that fails validation.
var ErrCorruptSegment = errors.New("corrupt shared exclusion segment")

func encodeSegment(rec metastore.Record) []byte {
	n := rec.Keys.Len()
	buf := make([]byte, headerSize+8*n)

	copy(buf, segmentMagic)
	binary.LittleEndian.PutUint16(buf[4:], segmentVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(rec.KmerSize))
	binary.LittleEndian.PutUint32(buf[12:], uint32(rec.OccurrenceBits))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(rec.MaxAppearanceRate))
	binary.LittleEndian.PutUint64(buf[24:], uint64(rec.MaxAppearanceNrow))
	binary.LittleEndian.PutUint64(buf[32:], uint64(rec.AnalyzedAt.UnixNano()))
	binary.LittleEndian.PutUint64(buf[40:], uint64(rec.TotalRows))
	binary.LittleEndian.PutUint64(buf[48:], uint64(n))

	off := headerSize
	for k := range rec.Keys.All() {
		binary.LittleEndian.PutUint64(buf[off:], uint64(k))
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[crcOffset:], segmentChecksum(buf))
	return buf
}

func segmentChecksum(data []byte) uint32 {
	return hash.UpdateChecksum(hash.Checksum(data[:crcOffset]), data[headerSize:])
}

// segment is an attached, memory-mapped exclusion set.
type segment struct {
	meta metastore.Metadata
	m    *mmap.Mapping
	keys []byte

	decodeOnce sync.Once
	decoded    *ngram.KeySet
}

func (s *segment) len() int { return len(s.keys) / 8 }

func (s *segment) key(i int) ngram.Key {
	return ngram.Key(binary.LittleEndian.Uint64(s.keys[8*i:]))
}

// contains binary-searches the mapped keys without locking.
func (s *segment) contains(k ngram.Key) bool {
	n := s.len()
	i := sort.Search(n, func(i int) bool { return s.key(i) >= k })
	return i < n && s.key(i) == k
}

// keySet decodes the mapped keys on first use. The set lives as long as
// the segment stays attached; a re-attach decodes again.
func (s *segment) keySet() *ngram.KeySet {
	s.decodeOnce.Do(func() {
		ks := ngram.NewKeySet()
		for i := range s.len() {
			ks.Add(s.key(i))
		}
		s.decoded = ks
	})
	return s.decoded
}

func (s *segment) close() error { return s.m.Close() }

// openSegment maps and validates the segment at path.
func openSegment(path string, subject metastore.Subject) (*segment, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	seg, err := parseSegment(m.Bytes(), subject)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	_ = m.Advise(mmap.Random)
	seg.m = m
	return seg, nil
}

func parseSegment(data []byte, subject metastore.Subject) (*segment, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], []byte(segmentMagic)) {
		return nil, ErrCorruptSegment
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != segmentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSegment, v)
	}
	n, err := conv.Checked[int](binary.LittleEndian.Uint64(data[48:]))
	if err != nil {
		return nil, fmt.Errorf("%w: key count: %v", ErrCorruptSegment, err)
	}
	if body := len(data) - headerSize; body%8 != 0 || body/8 != n {
		return nil, fmt.Errorf("%w: %d bytes for %d keys", ErrCorruptSegment, len(data), n)
	}
	keys := data[headerSize:]
	if segmentChecksum(data) != binary.LittleEndian.Uint32(data[crcOffset:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSegment)
	}

	return &segment{
		meta: metastore.Metadata{
			Subject:           subject,
			KmerSize:          int(binary.LittleEndian.Uint32(data[8:])),
			OccurrenceBits:    int(binary.LittleEndian.Uint32(data[12:])),
			MaxAppearanceRate: math.Float64frombits(binary.LittleEndian.Uint64(data[16:])),
			MaxAppearanceNrow: int64(binary.LittleEndian.Uint64(data[24:])),
			AnalyzedAt:        time.Unix(0, int64(binary.LittleEndian.Uint64(data[32:]))).UTC(),
			TotalRows:         int64(binary.LittleEndian.Uint64(data[40:])),
			ExcludedKeys:      int64(n),
		},
		keys: keys,
	}, nil
}
