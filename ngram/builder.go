package ngram

import (
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/kmer"
)

// Builder assigns occurrence counts to the concrete k-mers of one row.
//
// A Builder is not safe for concurrent use. Reset it between rows, or use
// Build which resets on entry.
type Builder struct {
	layout Layout
	limit  int
	seen   map[uint64]uint32
}

// NewBuilder returns a Builder for the layout using kmer.MaxExpansion.
func NewBuilder(layout Layout) *Builder {
	return &Builder{layout: layout, limit: kmer.MaxExpansion, seen: make(map[uint64]uint32)}
}

// Layout returns the builder's layout.
func (b *Builder) Layout() Layout { return b.layout }

// Add records one more occurrence of kmerBits and returns its key.
func (b *Builder) Add(kmerBits uint64) Key {
	n := b.seen[kmerBits]
	if n <= b.layout.MaxOccurrence() {
		b.seen[kmerBits] = n + 1
	}
	return b.layout.Pack(kmerBits, n)
}

// Reset forgets all counts.
func (b *Builder) Reset() { clear(b.seen) }

// Build returns the key set of seq.
func (b *Builder) Build(seq codec.EncodedSequence) *KeySet {
	ks := NewKeySet()
	b.AddTo(ks, seq)
	return ks
}

// AddTo resets the builder and adds the keys of seq to ks. It returns the
// number of concrete k-mers seen.
func (b *Builder) AddTo(ks *KeySet, seq codec.EncodedSequence) int {
	b.Reset()
	n := 0
	for _, v := range kmer.ConcreteLimit(seq, b.layout.k, b.limit) {
		ks.Add(b.Add(v))
		n++
	}
	return n
}

// Keys is a convenience for NewBuilder(layout).Build(seq).
func Keys(layout Layout, seq codec.EncodedSequence) *KeySet {
	return NewBuilder(layout).Build(seq)
}
