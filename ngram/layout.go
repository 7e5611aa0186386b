// Package ngram packs concrete k-mers and their in-row occurrence counts
// into fixed-width index keys.
//
// A key is laid out as
//
//	kmer_bits (2k) << occurrence_bits | occurrence
//
// in the smallest of 16, 32 or 64 bits that holds 2k+occurrence_bits. The
// occurrence field holds the occurrence ordinal minus one: the first
// occurrence of a k-mer in a row is 0, the second 1, and so on, saturating
// at 2^occurrence_bits - 1.
package ngram

import (
	"fmt"

	"github.com/hupe1980/dnagram/kmer"
)

// MaxOccurrenceBits is the widest supported occurrence field.
const MaxOccurrenceBits = 16

// Key is a packed n-gram key. Its meaningful width is Layout.Width.
type Key uint64

// Layout describes how keys are packed for one (k, occurrence bits) pair.
type Layout struct {
	k       int
	occBits int
	width   int
}

// NewLayout validates k and occBits and selects the container width.
func NewLayout(k, occBits int) (Layout, error) {
	if err := kmer.ValidateK(k); err != nil {
		return Layout{}, err
	}
	if occBits < 0 || occBits > MaxOccurrenceBits {
		return Layout{}, &ErrOccurrenceBits{Bits: occBits}
	}
	need := 2*k + occBits
	if need > 64 {
		return Layout{}, &ErrIncompatible{K: k, OccurrenceBits: occBits}
	}

	width := 64
	switch {
	case need <= 16:
		width = 16
	case need <= 32:
		width = 32
	}
	return Layout{k: k, occBits: occBits, width: width}, nil
}

// MustLayout is like NewLayout but panics on error.
func MustLayout(k, occBits int) Layout {
	l, err := NewLayout(k, occBits)
	if err != nil {
		panic(err)
	}
	return l
}

// K returns the window size.
func (l Layout) K() int { return l.k }

// OccurrenceBits returns the width of the occurrence field.
func (l Layout) OccurrenceBits() int { return l.occBits }

// Width returns the container width in bits: 16, 32 or 64.
func (l Layout) Width() int { return l.width }

// MaxOccurrence returns the saturation value of the occurrence field.
func (l Layout) MaxOccurrence() uint32 { return uint32(1)<<l.occBits - 1 }

// Pack combines a packed k-mer and a zero-based occurrence into a key.
// occ saturates at MaxOccurrence.
func (l Layout) Pack(kmerBits uint64, occ uint32) Key {
	occ = min(occ, l.MaxOccurrence())
	return Key(kmerBits<<l.occBits | uint64(occ))
}

// Unpack splits a key into its k-mer and occurrence fields.
func (l Layout) Unpack(key Key) (kmerBits uint64, occ uint32) {
	return uint64(key) >> l.occBits, uint32(uint64(key) & uint64(l.MaxOccurrence()))
}

// StripOccurrence clears the occurrence field.
func (l Layout) StripOccurrence(key Key) Key {
	return key &^ Key(l.MaxOccurrence())
}

// Format renders a key as "KMER#occ".
func (l Layout) Format(key Key) string {
	v, occ := l.Unpack(key)
	return fmt.Sprintf("%s#%d", kmer.Unpack(v, l.k), occ)
}

func (l Layout) String() string {
	return fmt.Sprintf("k=%d occ=%d width=%d", l.k, l.occBits, l.width)
}
