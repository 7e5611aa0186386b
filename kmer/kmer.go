// Package kmer extracts sliding-window k-mers from encoded sequences.
//
// Windows yields every window as a slice of base masks. Concrete yields the
// 2-bit packed form of every concrete k-mer a window stands for: DNA2 windows
// are concrete by construction, DNA4 windows containing degenerate bases are
// expanded to the Cartesian product of their choices. A window whose product
// exceeds MaxExpansion is skipped. That is recall loss, not an error.
package kmer

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/hupe1980/dnagram/internal/simd"
)

const (
	// MinK is the smallest supported window size.
	MinK = 4
	// MaxK is the largest supported window size.
	MaxK = 64
	// MaxPackedK is the largest window whose packed form fits in a uint64.
	MaxPackedK = 32
	// MaxExpansion is the largest number of concrete k-mers a single
	// degenerate window may expand to.
	MaxExpansion = 10
)

// Base is a nucleotide mask over {A,C,G,T}.
type Base uint8

const (
	A Base = 1 << iota
	C
	G
	T
	N = A | C | G | T
)

// Concrete reports whether exactly one base is set.
func (b Base) Concrete() bool { return bits.OnesCount8(uint8(b)&0x0F) == 1 }

// Choices returns the number of concrete bases b stands for.
func (b Base) Choices() int { return bits.OnesCount8(uint8(b) & 0x0F) }

// Code returns the 2-bit code of the lowest set base (A=0 C=1 G=2 T=3).
func (b Base) Code() uint64 { return uint64(bits.TrailingZeros8(uint8(b) | 0x10)) }

func (b Base) String() string { return string(simd.Letter4(byte(b))) }

// Kmer is an ordered window of bases.
type Kmer []Base

// Concrete reports whether every base in the window is concrete.
func (k Kmer) Concrete() bool {
	for _, b := range k {
		if !b.Concrete() {
			return false
		}
	}
	return true
}

// Expansion returns the size of the Cartesian product of the window, capped
// at limit+1 so that it never overflows.
func (k Kmer) Expansion(limit int) int {
	n := 1
	for _, b := range k {
		n *= b.Choices()
		if n > limit {
			return limit + 1
		}
	}
	return n
}

// Pack returns the 2-bit packed window, leftmost base most significant.
// ok is false when the window is degenerate or longer than MaxPackedK.
func (k Kmer) Pack() (v uint64, ok bool) {
	if len(k) > MaxPackedK {
		return 0, false
	}
	for _, b := range k {
		if !b.Concrete() {
			return 0, false
		}
		v = v<<2 | b.Code()
	}
	return v, true
}

// Expand returns the packed concrete k-mers the window stands for, in
// ascending order. ok is false when the product exceeds limit or the window
// is longer than MaxPackedK; nothing is returned in that case.
func (k Kmer) Expand(limit int) ([]uint64, bool) {
	if len(k) > MaxPackedK || k.Expansion(limit) > limit {
		return nil, false
	}
	return expand(nil, k, 0), true
}

func expand(dst []uint64, k Kmer, prefix uint64) []uint64 {
	if len(k) == 0 {
		return append(dst, prefix)
	}
	m := uint8(k[0]) & 0x0F
	for code := uint64(0); code < 4; code++ {
		if m&(1<<code) != 0 {
			dst = expand(dst, k[1:], prefix<<2|code)
		}
	}
	return dst
}

// Clone returns a copy that does not alias the sequence buffer.
func (k Kmer) Clone() Kmer { return append(Kmer(nil), k...) }

func (k Kmer) String() string {
	var sb strings.Builder
	sb.Grow(len(k))
	for _, b := range k {
		sb.WriteByte(simd.Letter4(byte(b)))
	}
	return sb.String()
}

// Unpack renders a packed concrete k-mer of length k as text.
func Unpack(v uint64, k int) string {
	out := make([]byte, k)
	for i := k - 1; i >= 0; i-- {
		out[i] = simd.Letter2(byte(v & 3))
		v >>= 2
	}
	return string(out)
}

// ErrInvalidK reports a window size outside [MinK, MaxK].
type ErrInvalidK struct {
	K   int
	Max int
}

func (e *ErrInvalidK) Error() string {
	return fmt.Sprintf("kmer size %d out of range [%d, %d]", e.K, MinK, e.Max)
}

// ValidateK checks that k is a supported window size.
func ValidateK(k int) error {
	if k < MinK || k > MaxK {
		return &ErrInvalidK{K: k, Max: MaxK}
	}
	return nil
}
