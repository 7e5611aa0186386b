package codec

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/dnagram/internal/hash"
	"github.com/hupe1980/dnagram/internal/simd"
)

// EncodedSequence is a bit-packed nucleotide sequence with an exact bit length.
//
// The zero value is an empty sequence of unknown type. Values are immutable
// once constructed; Bytes returns a read-only view.
type EncodedSequence struct {
	typ  Type
	bits uint64
	data []byte
}

// lengthPrefixSize is the size of the big-endian bit-length prefix.
const lengthPrefixSize = 4

// FromBytes wraps packed bytes as an EncodedSequence after validating that
// they are consistent with bitLength: exact byte count, zero padding, and
// (for DNA4) no empty base masks. data is copied.
func FromBytes(typ Type, data []byte, bitLength uint64) (EncodedSequence, error) {
	bpb := uint64(typ.BitsPerBase())
	if bpb == 0 {
		return EncodedSequence{}, &ErrUnknownType{Type: typ}
	}
	if bitLength > MaxBitLength || bitLength%bpb != 0 {
		return EncodedSequence{}, fmt.Errorf("%w: bit length %d is not a multiple of %d", ErrMalformed, bitLength, bpb)
	}
	if uint64(len(data)) != (bitLength+7)/8 {
		return EncodedSequence{}, fmt.Errorf("%w: %d bytes for bit length %d", ErrMalformed, len(data), bitLength)
	}
	if rem := bitLength % 8; rem != 0 {
		if data[len(data)-1]&(0xFF>>rem) != 0 {
			return EncodedSequence{}, fmt.Errorf("%w: non-zero padding bits", ErrMalformed)
		}
	}

	seq := EncodedSequence{typ: typ, bits: bitLength, data: bytes.Clone(data)}
	if typ == DNA4 {
		for i, m := range seq.Codes() {
			if m == 0 {
				return EncodedSequence{}, fmt.Errorf("%w: empty base mask at position %d", ErrMalformed, i)
			}
		}
	}
	return seq, nil
}

// Type returns the layout tag.
func (s EncodedSequence) Type() Type { return s.typ }

// BitLength returns the exact number of meaningful bits.
func (s EncodedSequence) BitLength() uint64 { return s.bits }

// NucLength returns the number of bases.
func (s EncodedSequence) NucLength() int {
	bpb := s.typ.BitsPerBase()
	if bpb == 0 {
		return 0
	}
	return int(s.bits / uint64(bpb))
}

// CharLength returns the length of the decoded text; always NucLength.
func (s EncodedSequence) CharLength() int { return s.NucLength() }

// Len is an alias for NucLength.
func (s EncodedSequence) Len() int { return s.NucLength() }

// Bytes returns the packed bytes. Callers must not modify the slice.
func (s EncodedSequence) Bytes() []byte { return s.data }

// String returns the decoded text.
func (s EncodedSequence) String() string { return Decode(s) }

// Base returns the code of base i: a 2-bit code for DNA2, a 4-bit mask for DNA4.
func (s EncodedSequence) Base(i int) byte {
	if s.typ == DNA2 {
		return (s.data[i>>2] >> (6 - 2*uint(i&3))) & 3
	}
	return (s.data[i>>1] >> (4 - 4*uint(i&1))) & 0x0F
}

// Codes unpacks every base into one byte: 2-bit codes for DNA2, 4-bit masks
// for DNA4.
func (s EncodedSequence) Codes() []byte {
	out := make([]byte, s.NucLength())
	if len(out) == 0 {
		return out
	}
	if s.typ == DNA2 {
		simd.Codes2(out, s.data)
	} else {
		simd.Codes4(out, s.data)
	}
	return out
}

// Masks unpacks every base into a 4-bit mask regardless of the layout.
func (s EncodedSequence) Masks() []byte {
	out := s.Codes()
	if s.typ == DNA2 {
		for i, c := range out {
			out[i] = 1 << c
		}
	}
	return out
}

// LengthPrefixed returns the 4-byte big-endian bit length followed by the
// packed bytes. Sequences that differ only in trailing padding hash
// differently in this form.
func (s EncodedSequence) LengthPrefixed() []byte {
	out := make([]byte, lengthPrefixSize+len(s.data))
	binary.BigEndian.PutUint32(out, uint32(s.bits))
	copy(out[lengthPrefixSize:], s.data)
	return out
}

// Fingerprint returns a 64-bit hash over the type tag and the length-prefixed form.
func (s EncodedSequence) Fingerprint() uint64 {
	return hash.NewDigest().Byte(byte(s.typ)).Bytes(s.LengthPrefixed()).Sum64()
}

// Equal reports whether both sequences have the same type, bit length and bits.
func (s EncodedSequence) Equal(o EncodedSequence) bool {
	return s.Compare(o) == 0
}

// Compare orders sequences by type, then bit length, then packed bytes.
func (s EncodedSequence) Compare(o EncodedSequence) int {
	if c := cmp.Compare(s.typ, o.typ); c != 0 {
		return c
	}
	if c := cmp.Compare(s.bits, o.bits); c != 0 {
		return c
	}
	return bytes.Compare(s.data, o.data)
}

// MarshalBinary encodes the sequence as [type][length-prefixed form].
func (s EncodedSequence) MarshalBinary() ([]byte, error) {
	if s.typ.BitsPerBase() == 0 {
		return nil, &ErrUnknownType{Type: s.typ}
	}
	out := make([]byte, 1, 1+lengthPrefixSize+len(s.data))
	out[0] = byte(s.typ)
	return append(out, s.LengthPrefixed()...), nil
}

// UnmarshalBinary decodes the form produced by MarshalBinary.
func (s *EncodedSequence) UnmarshalBinary(b []byte) error {
	if len(b) < 1+lengthPrefixSize {
		return fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(b))
	}
	bits := uint64(binary.BigEndian.Uint32(b[1:]))
	seq, err := FromBytes(Type(b[0]), b[1+lengthPrefixSize:], bits)
	if err != nil {
		return err
	}
	*s = seq
	return nil
}
