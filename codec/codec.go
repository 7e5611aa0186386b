// Package codec converts between nucleotide text and bit-packed sequences.
//
// Two layouts are supported:
//
//   - DNA2: 2 bits per base (A=00 C=01 G=10 T=11), concrete bases only.
//   - DNA4: 4 bits per base, a mask over {A,C,G,T}; IUPAC degenerate codes
//     (M R W S Y K V H D B N) are the OR of their constituent bases.
//
// Both layouts are packed MSB-first. The trailing partial byte keeps only the
// bits implied by the exact bit length; unused low bits are zero. Input is
// case-insensitive and U is read as T; output is always canonical uppercase.
//
// Packing dispatches through internal/simd, whose kernels are bit-identical
// across ISAs.
package codec

import (
	"fmt"
	"math"
	"strings"

	"github.com/hupe1980/dnagram/internal/simd"
)

// Type tags the packed layout of an EncodedSequence.
type Type uint8

const (
	// DNA2 packs concrete bases at 2 bits each.
	DNA2 Type = iota + 1
	// DNA4 packs base masks (IUPAC codes) at 4 bits each.
	DNA4
)

// MaxBitLength is the largest bit length representable in the length-prefixed form.
const MaxBitLength = math.MaxUint32

// BitsPerBase returns 2 for DNA2 and 4 for DNA4.
func (t Type) BitsPerBase() int {
	switch t {
	case DNA2:
		return 2
	case DNA4:
		return 4
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case DNA2:
		return "DNA2"
	case DNA4:
		return "DNA4"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Alphabet returns the accepted input characters (uppercase) for the type.
func (t Type) Alphabet() string {
	switch t {
	case DNA2:
		return "ACGTU"
	case DNA4:
		return "ACGTUMRWSYKVHDBN"
	default:
		return ""
	}
}

// ParseType parses "dna2" or "dna4" (case-insensitive).
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DNA2":
		return DNA2, nil
	case "DNA4":
		return DNA4, nil
	default:
		return 0, fmt.Errorf("unknown sequence type %q", s)
	}
}

// Encode packs text into an EncodedSequence of the given type.
func Encode(text string, typ Type) (EncodedSequence, error) {
	bpb := typ.BitsPerBase()
	if bpb == 0 {
		return EncodedSequence{}, fmt.Errorf("encode: %w", &ErrUnknownType{Type: typ})
	}

	bits := uint64(len(text)) * uint64(bpb)
	if bits > MaxBitLength {
		return EncodedSequence{}, &ErrSequenceTooLong{Bases: len(text), Type: typ}
	}

	data := make([]byte, (bits+7)/8)
	src := []byte(text)

	var bad int
	if typ == DNA2 {
		bad = simd.Pack2(data, src)
	} else {
		bad = simd.Pack4(data, src)
	}
	if bad >= 0 {
		return EncodedSequence{}, &ErrInvalidCharacter{Char: text[bad], Position: bad, Type: typ}
	}

	return EncodedSequence{typ: typ, bits: bits, data: data}, nil
}

// MustEncode is like Encode but panics on error. Intended for tests and constants.
func MustEncode(text string, typ Type) EncodedSequence {
	seq, err := Encode(text, typ)
	if err != nil {
		panic(err)
	}
	return seq
}

// Decode unpacks seq into canonical uppercase text.
func Decode(seq EncodedSequence) string {
	n := seq.NucLength()
	if n == 0 {
		return ""
	}
	out := make([]byte, n)
	if seq.typ == DNA2 {
		simd.Unpack2(out, seq.data)
	} else {
		simd.Unpack4(out, seq.data)
	}
	return string(out)
}

// Normalize validates text for typ and returns its canonical form
// (uppercase, U rewritten to T).
func Normalize(text string, typ Type) (string, error) {
	seq, err := Encode(text, typ)
	if err != nil {
		return "", err
	}
	return Decode(seq), nil
}
