package exclusion

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/dnagram/internal/resource"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
)

type localEntry struct {
	meta  metastore.Metadata
	keys  *ngram.KeySet
	bytes int64
}

// LocalStats describes the process-local tier.
type LocalStats struct {
	Subjects int
	Entries  int
	Bytes    int64
}

// LocalTier holds exclusion sets loaded into this process. Loaded sets are
// charged against the resource controller's memory budget.
type LocalTier struct {
	rc *resource.Controller

	mu      sync.RWMutex
	entries map[metastore.Subject]*localEntry
}

// NewLocalTier returns an empty tier. rc may be nil.
func NewLocalTier(rc *resource.Controller) *LocalTier {
	return &LocalTier{rc: rc, entries: make(map[metastore.Subject]*localEntry)}
}

// Load stores rec, replacing a previously loaded set for the same subject.
// It returns the replaced set, if any. A load that would push the tier past
// the controller's memory limit fails with resource.ErrMemoryLimitExceeded
// and leaves the tier unchanged; a replacement is charged only for the
// difference to the set it replaces.
func (t *LocalTier) Load(ctx context.Context, rec metastore.Record) (*ngram.KeySet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := rec.Keys
	if keys == nil {
		keys = ngram.NewKeySet()
	}
	size := int64(keys.SizeInBytes())

	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.entries[rec.Subject]
	var prevBytes int64
	if prev != nil {
		prevBytes = prev.bytes
	}
	switch delta := size - prevBytes; {
	case delta > 0:
		if !t.rc.TryAcquireMemory(delta) {
			return nil, fmt.Errorf("%w: loading %s needs %d more bytes (used %d of %d)",
				resource.ErrMemoryLimitExceeded, rec.Subject, delta, t.rc.MemoryUsage(), t.rc.MemoryLimit())
		}
	case delta < 0:
		t.rc.ReleaseMemory(-delta)
	}
	t.entries[rec.Subject] = &localEntry{meta: rec.Metadata, keys: keys, bytes: size}

	if prev == nil {
		return nil, nil
	}
	return prev.keys, nil
}

func (t *LocalTier) get(subject metastore.Subject) (*localEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[subject]
	return e, ok
}

// Free drops the subject's set and returns the number of entries removed.
func (t *LocalTier) Free(subject metastore.Subject) (int, *ngram.KeySet) {
	t.mu.Lock()
	e, ok := t.entries[subject]
	delete(t.entries, subject)
	t.mu.Unlock()
	if !ok {
		return 0, nil
	}
	t.rc.ReleaseMemory(e.bytes)
	return e.keys.Len(), e.keys
}

// FreeAll drops every set and returns the total number of entries removed
// along with the dropped sets.
func (t *LocalTier) FreeAll() (int, []*ngram.KeySet) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[metastore.Subject]*localEntry)
	t.mu.Unlock()

	n := 0
	dropped := make([]*ngram.KeySet, 0, len(entries))
	for _, e := range entries {
		n += e.keys.Len()
		dropped = append(dropped, e.keys)
		t.rc.ReleaseMemory(e.bytes)
	}
	return n, dropped
}

// Subjects returns the loaded subjects in order.
func (t *LocalTier) Subjects() []metastore.Subject {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]metastore.Subject, 0, len(t.entries))
	for s := range t.entries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Stats returns a snapshot of the tier.
func (t *LocalTier) Stats() LocalStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st := LocalStats{Subjects: len(t.entries)}
	for _, e := range t.entries {
		st.Entries += e.keys.Len()
		st.Bytes += e.bytes
	}
	return st
}
