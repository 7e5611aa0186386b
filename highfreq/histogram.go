package highfreq

import (
	"iter"
	"maps"

	"github.com/hupe1980/dnagram/ngram"
	"github.com/hupe1980/dnagram/rowsource"
)

// Histogram counts, per key, the number of rows containing it.
//
// A Histogram is not safe for concurrent use.
type Histogram struct {
	counts map[ngram.Key]int64
	rows   int64
	parts  map[rowsource.Partition]struct{}
}

// NewHistogram returns an empty histogram that belongs to no partition.
func NewHistogram() *Histogram {
	return &Histogram{
		counts: make(map[ngram.Key]int64),
		parts:  make(map[rowsource.Partition]struct{}),
	}
}

// ForPartition returns an empty histogram for the rows of p.
func ForPartition(p rowsource.Partition) *Histogram {
	h := NewHistogram()
	h.parts[p] = struct{}{}
	return h
}

// Observe counts one row with the given distinct keys.
func (h *Histogram) Observe(keys *ngram.KeySet) {
	h.rows++
	for k := range keys.All() {
		h.counts[k]++
	}
}

// Merge adds o into h and reports whether it did. If any partition of o has
// already been merged into h, Merge leaves h unchanged and returns false.
func (h *Histogram) Merge(o *Histogram) bool {
	for p := range o.parts {
		if _, dup := h.parts[p]; dup {
			return false
		}
	}
	for k, n := range o.counts {
		h.counts[k] += n
	}
	h.rows += o.rows
	maps.Copy(h.parts, o.parts)
	return true
}

// Rows returns the number of rows observed.
func (h *Histogram) Rows() int64 { return h.rows }

// Len returns the number of distinct keys.
func (h *Histogram) Len() int { return len(h.counts) }

// Count returns the number of rows containing k.
func (h *Histogram) Count(k ngram.Key) int64 { return h.counts[k] }

// Partitions returns the number of partitions merged into h.
func (h *Histogram) Partitions() int { return len(h.parts) }

// All iterates over (key, row count) pairs in no particular order.
func (h *Histogram) All() iter.Seq2[ngram.Key, int64] {
	return maps.All(h.counts)
}

// Flag returns the keys over either threshold. nrow <= 0 disables the
// absolute threshold.
func (h *Histogram) Flag(rate float64, nrow int64) *ngram.KeySet {
	out := ngram.NewKeySet()
	if h.rows == 0 {
		return out
	}
	total := float64(h.rows)
	for k, n := range h.counts {
		if float64(n)/total > rate || (nrow > 0 && n > nrow) {
			out.Add(k)
		}
	}
	return out
}
