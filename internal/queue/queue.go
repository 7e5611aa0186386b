// Package queue provides a bounded top-k heap of scored candidates.
package queue

// Item is one scored candidate.
type Item struct {
	ID    uint64
	Score int
}

// better reports whether a ranks ahead of b: higher score first, then lower id.
func better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// TopK keeps the k best items seen so far.
//
// Internally it is a min-heap on rank, so the worst kept item sits at the
// root and is replaced when a better one arrives. Value-based storage keeps
// pushes allocation free once the backing slice has grown to k.
type TopK struct {
	k     int
	items []Item
}

// NewTopK returns a heap that keeps at most k items. k <= 0 keeps everything.
func NewTopK(k int) *TopK {
	c := k
	if c <= 0 || c > 1024 {
		c = 64
	}
	return &TopK{k: k, items: make([]Item, 0, c)}
}

// Len returns the number of kept items.
func (q *TopK) Len() int { return len(q.items) }

// Worst returns the lowest ranked kept item.
func (q *TopK) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Push offers an item and reports whether it was kept.
func (q *TopK) Push(item Item) bool {
	if q.k <= 0 || len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return true
	}
	if !better(item, q.items[0]) {
		return false
	}
	q.items[0] = item
	q.siftDown(0)
	return true
}

// Drain empties the heap and returns its items best first.
func (q *TopK) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

// Reset clears the heap for reuse.
func (q *TopK) Reset() { q.items = q.items[:0] }

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.siftDown(0)
	}
	return root
}

// less orders the heap so that the worst item is at the root.
func (q *TopK) less(i, j int) bool { return better(q.items[j], q.items[i]) }

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.less(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && q.less(r, l) {
			worst = r
		}
		if !q.less(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
