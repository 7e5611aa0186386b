package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/dnagram/codec"
	"github.com/hupe1980/dnagram/internal/queue"
	"github.com/hupe1980/dnagram/ngram"
)

// Candidate is one search hit.
type Candidate struct {
	RowID  uint64
	Shared int // |Q' ∩ R| in the active score mode
}

// PostingsStats describes the contents of a Postings index.
type PostingsStats struct {
	Rows        int
	Keys        int    // distinct keys with a non-empty posting list
	Postings    uint64 // total (key, row) pairs
	SkippedKeys uint64 // keys left out at build time because they were excluded
	SizeInBytes uint64
}

// PostingsOption configures a Postings index.
type PostingsOption func(*Postings)

// WithExclusions sets the column's excluded keys. They are left out of the
// posting lists when exclude_high_freq_at_build is on, and always removed
// from queries.
func WithExclusions(excluded *ngram.KeySet) PostingsOption {
	return func(p *Postings) { p.excluded = excluded }
}

// Postings is an in-memory inverted index from n-gram key to row ids.
//
// It is safe for concurrent use; searches share a read lock.
type Postings struct {
	ops *KeyOps

	mu       sync.RWMutex
	lists    map[ngram.Key]*roaring64.Bitmap
	rows     map[uint64]*ngram.KeySet
	excluded *ngram.KeySet
	skipped  uint64
}

// NewPostings returns an empty index driven by ops.
func NewPostings(ops *KeyOps, opts ...PostingsOption) *Postings {
	p := &Postings{
		ops:   ops,
		lists: make(map[ngram.Key]*roaring64.Bitmap),
		rows:  make(map[uint64]*ngram.KeySet),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Excluded returns the excluded keys the index was built with.
func (p *Postings) Excluded() *ngram.KeySet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.excluded
}

// Add indexes seq under rowID, replacing any previous row with that id.
func (p *Postings) Add(rowID uint64, seq codec.EncodedSequence) {
	keys := p.ops.KeySet(seq)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.removeLocked(rowID)
	if p.ops.cfg.ExcludeHighFreqAtBuild && !p.excluded.IsEmpty() {
		n := keys.Len()
		keys = keys.AndNot(p.excluded)
		p.skipped += uint64(n - keys.Len())
	}
	for k := range keys.All() {
		bm, ok := p.lists[k]
		if !ok {
			bm = roaring64.New()
			p.lists[k] = bm
		}
		bm.Add(rowID)
	}
	p.rows[rowID] = keys
}

// Remove drops rowID and reports whether it was indexed.
func (p *Postings) Remove(rowID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(rowID)
}

func (p *Postings) removeLocked(rowID uint64) bool {
	keys, ok := p.rows[rowID]
	if !ok {
		return false
	}
	for k := range keys.All() {
		if bm, ok := p.lists[k]; ok {
			bm.Remove(rowID)
			if bm.IsEmpty() {
				delete(p.lists, k)
			}
		}
	}
	delete(p.rows, rowID)
	return true
}

// RowKeys returns the keys rowID was indexed under.
func (p *Postings) RowKeys(rowID uint64) (*ngram.KeySet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ks, ok := p.rows[rowID]
	return ks, ok
}

// Search returns the rows that share at least one key with query and match
// it, ranked by shared key count and then by ascending row id. limit <= 0
// returns every match.
func (p *Postings) Search(query *ngram.KeySet, limit int) []Candidate {
	p.mu.RLock()
	defer p.mu.RUnlock()

	q, e := p.ops.Normalize(query), p.ops.Normalize(p.excluded)
	need := max(1, p.ops.actualMinScore(q, e))

	counts := make(map[uint64]int)
	for k := range q.AndNot(e).All() {
		bm, ok := p.lists[k]
		if !ok {
			continue
		}
		it := bm.Iterator()
		for it.HasNext() {
			counts[it.Next()]++
		}
	}

	top := queue.NewTopK(limit)
	for id, n := range counts {
		if n >= need {
			top.Push(queue.Item{ID: id, Score: n})
		}
	}

	items := top.Drain()
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = Candidate{RowID: it.ID, Shared: it.Score}
	}
	return out
}

// Stats returns a snapshot of the index.
func (p *Postings) Stats() PostingsStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PostingsStats{Rows: len(p.rows), Keys: len(p.lists), SkippedKeys: p.skipped}
	for _, bm := range p.lists {
		st.Postings += bm.GetCardinality()
		st.SizeInBytes += bm.GetSizeInBytes()
	}
	return st
}
