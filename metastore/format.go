package metastore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hupe1980/dnagram/internal/conv"
	"github.com/hupe1980/dnagram/internal/hash"
	"github.com/hupe1980/dnagram/ngram"
)

const (
	recordMagic   = 0x58474E44 // "DNGX"
	recordVersion = 1
	headerSize    = 20
)

// ErrCorrupt is returned when a stored record fails validation.
var ErrCorrupt = errors.New("corrupt exclusion record")

// EncodeRecord serializes rec with the given body compression.
func EncodeRecord(rec Record, c Compression) ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 128))
	writeMetadata(pb, rec.Metadata)

	keys, err := rec.Keys.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal excluded keys: %w", err)
	}
	n, err := conv.Checked[uint32](len(keys))
	if err != nil {
		return nil, fmt.Errorf("excluded keys: %w", err)
	}
	pb.writeUint32(n)
	if pb.err != nil {
		return nil, pb.err
	}
	body, err := compressBlock(append(pb.buf, keys...), c)
	if err != nil {
		return nil, err
	}

	bodyLen, err := conv.Checked[uint32](len(body))
	if err != nil {
		return nil, fmt.Errorf("record body: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], recordMagic)
	binary.LittleEndian.PutUint32(out[4:8], recordVersion)
	out[8] = byte(c)
	binary.LittleEndian.PutUint32(out[12:16], hash.Checksum(body))
	binary.LittleEndian.PutUint32(out[16:20], bodyLen)
	return append(out, body...), nil
}

// DecodeRecord parses a record produced by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	payload, err := openBody(data)
	if err != nil {
		return Record{}, err
	}
	pb := newPayloadBuffer(payload)
	meta := readMetadata(pb)
	n, err := conv.Checked[int](pb.readUint32())
	if pb.err != nil || err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, errors.Join(pb.err, err))
	}
	if n != len(payload)-pb.pos {
		return Record{}, fmt.Errorf("%w: key payload is %d bytes, header says %d", ErrCorrupt, len(payload)-pb.pos, n)
	}

	keys := ngram.NewKeySet()
	if err := keys.UnmarshalBinary(payload[pb.pos:]); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Record{Metadata: meta, Keys: keys}, nil
}

// DecodeMetadata parses only the metadata of a record.
func DecodeMetadata(data []byte) (Metadata, error) {
	payload, err := openBody(data)
	if err != nil {
		return Metadata{}, err
	}
	pb := newPayloadBuffer(payload)
	meta := readMetadata(pb)
	if pb.err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	return meta, nil
}

func openBody(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != recordMagic {
		return nil, fmt.Errorf("%w: invalid magic: %x", ErrCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version: %d", ErrCorrupt, version)
	}
	c := Compression(data[8])
	checksum := binary.LittleEndian.Uint32(data[12:16])
	length := binary.LittleEndian.Uint32(data[16:20])

	body := data[headerSize:]
	if l, err := conv.Checked[uint32](len(body)); err != nil || l != length {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrCorrupt, len(body), length)
	}
	if hash.Checksum(body) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	payload, err := decompressBlock(body, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return payload, nil
}

func writeMetadata(pb *payloadBuffer, m Metadata) {
	pb.writeString(m.Subject.Table)
	pb.writeString(m.Subject.Column)
	pb.writeUint32(uint32(m.KmerSize))
	pb.writeUint32(uint32(m.OccurrenceBits))
	pb.writeUint64(math.Float64bits(m.MaxAppearanceRate))
	pb.writeUint64(uint64(m.MaxAppearanceNrow))
	pb.writeUint64(uint64(m.AnalyzedAt.UnixNano()))
	pb.writeUint64(uint64(m.TotalRows))
	pb.writeUint64(uint64(m.ExcludedKeys))
	pb.writeString(m.RunID)
}

func readMetadata(pb *payloadBuffer) Metadata {
	var m Metadata
	m.Subject.Table = pb.readString()
	m.Subject.Column = pb.readString()
	m.KmerSize = int(pb.readUint32())
	m.OccurrenceBits = int(pb.readUint32())
	m.MaxAppearanceRate = math.Float64frombits(pb.readUint64())
	m.MaxAppearanceNrow = int64(pb.readUint64())
	m.AnalyzedAt = time.Unix(0, int64(pb.readUint64())).UTC()
	m.TotalRows = int64(pb.readUint64())
	m.ExcludedKeys = int64(pb.readUint64())
	m.RunID = pb.readString()
	return m
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > math.MaxUint16 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	l := int(binary.LittleEndian.Uint16(p.buf[p.pos:]))
	p.pos += 2
	if p.pos+l > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+l])
	p.pos += l
	return s
}
