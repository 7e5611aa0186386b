package kmer

import (
	"iter"

	"github.com/hupe1980/dnagram/codec"
)

// Windows yields (position, window) for every window of size k in seq. The
// sequence is empty when seq is shorter than k or k is out of range. Yielded
// windows alias an internal buffer; use Clone to retain one past the
// iteration step.
//
// The returned sequence is restartable: each range over it decodes seq anew.
func Windows(seq codec.EncodedSequence, k int) iter.Seq2[int, Kmer] {
	return func(yield func(int, Kmer) bool) {
		if ValidateK(k) != nil || seq.NucLength() < k {
			return
		}
		masks := seq.Masks()
		bases := make(Kmer, len(masks))
		for i, m := range masks {
			bases[i] = Base(m)
		}
		for i := 0; i+k <= len(bases); i++ {
			if !yield(i, bases[i:i+k:i+k]) {
				return
			}
		}
	}
}

// Concrete yields (position, packed k-mer) for every concrete k-mer in seq.
// Degenerate windows yield one value per expansion at the same position, or
// nothing when the expansion exceeds MaxExpansion. k must be at most
// MaxPackedK; larger windows yield nothing.
func Concrete(seq codec.EncodedSequence, k int) iter.Seq2[int, uint64] {
	return ConcreteLimit(seq, k, MaxExpansion)
}

// ConcreteLimit is Concrete with an explicit expansion limit.
func ConcreteLimit(seq codec.EncodedSequence, k, limit int) iter.Seq2[int, uint64] {
	return func(yield func(int, uint64) bool) {
		if ValidateK(k) != nil || k > MaxPackedK || seq.NucLength() < k {
			return
		}

		mask := uint64(1)<<(2*k) - 1
		if k == MaxPackedK {
			mask = ^uint64(0)
		}

		if seq.Type() == codec.DNA2 {
			var v uint64
			for i, c := range seq.Codes() {
				v = (v<<2 | uint64(c)) & mask
				if i+1 >= k && !yield(i+1-k, v) {
					return
				}
			}
			return
		}

		masks := seq.Masks()
		var (
			v          uint64
			degenerate = -1 // last degenerate position seen
			buf        []uint64
			w          = make(Kmer, k)
		)
		for i, m := range masks {
			b := Base(m)
			v = (v<<2 | b.Code()) & mask
			if !b.Concrete() {
				degenerate = i
			}
			if i+1 < k {
				continue
			}
			pos := i + 1 - k
			if degenerate < pos {
				if !yield(pos, v) {
					return
				}
				continue
			}

			for j := range w {
				w[j] = Base(masks[pos+j])
			}
			if w.Expansion(limit) > limit {
				continue
			}
			buf = expand(buf[:0], w, 0)
			for _, x := range buf {
				if !yield(pos, x) {
					return
				}
			}
		}
	}
}
