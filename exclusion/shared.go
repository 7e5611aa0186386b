package exclusion

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	dfs "github.com/hupe1980/dnagram/internal/fs"
	"github.com/hupe1980/dnagram/internal/mmap"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
)

const (
	segmentExt = ".seg"
	lockName   = ".lock"
)

// SegmentInfo describes one published segment.
type SegmentInfo struct {
	Subject  metastore.Subject
	Entries  int
	Refs     uint32 // processes attached, across the whole directory
	Attached bool   // attached by this tier
}

// SharedStats describes the shared tier.
type SharedStats struct {
	Attached    int
	Entries     int
	MappedBytes int64
	Segments    []SegmentInfo
}

// SharedTier is the cross-process exclusion cache: one immutable,
// memory-mapped segment file per subject in a directory every participating
// process points at.
//
// Structural changes (publish, attach, detach, free) hold an flock on the
// directory's lock file and, in process, the write lock. Lookups take only
// the in-process read lock and binary-search the mapping.
type SharedTier struct {
	dir string
	fs  dfs.FileSystem

	mu       sync.RWMutex
	attached map[metastore.Subject]*segment
}

// NewSharedTier opens or creates the segment directory.
func NewSharedTier(dir string, fsys dfs.FileSystem) (*SharedTier, error) {
	if dir == "" {
		return nil, errors.New("shared tier: directory is required")
	}
	if fsys == nil {
		fsys = dfs.Default
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shared tier: %w", err)
	}
	return &SharedTier{dir: dir, fs: fsys, attached: make(map[metastore.Subject]*segment)}, nil
}

// Dir returns the segment directory.
func (t *SharedTier) Dir() string { return t.dir }

func segmentName(s metastore.Subject) string {
	return url.QueryEscape(s.Table) + "@" + url.QueryEscape(s.Column) + segmentExt
}

func parseSegmentName(name string) (metastore.Subject, bool) {
	base, ok := strings.CutSuffix(name, segmentExt)
	if !ok {
		return metastore.Subject{}, false
	}
	t, c, ok := strings.Cut(base, "@")
	if !ok {
		return metastore.Subject{}, false
	}
	table, err1 := url.QueryUnescape(t)
	column, err2 := url.QueryUnescape(c)
	if err1 != nil || err2 != nil {
		return metastore.Subject{}, false
	}
	return metastore.Subject{Table: table, Column: column}, true
}

func (t *SharedTier) path(s metastore.Subject) string {
	return filepath.Join(t.dir, segmentName(s))
}

// lockDir takes the cross-process lock. The caller must call the returned
// function to release it.
func (t *SharedTier) lockDir() (func(), error) {
	f, err := t.fs.OpenFile(filepath.Join(t.dir, lockName), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := mmap.Lock(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = mmap.Unlock(f)
		_ = f.Close()
	}, nil
}

// Publish writes rec as the subject's segment, replacing any previous one.
// Processes attached to the previous segment keep reading it until they
// detach.
func (t *SharedTier) Publish(rec metastore.Record) error {
	unlock, err := t.lockDir()
	if err != nil {
		return err
	}
	defer unlock()
	return t.publishLocked(rec)
}

func (t *SharedTier) publishLocked(rec metastore.Record) error {
	return dfs.WriteFileAtomic(t.fs, t.path(rec.Subject), encodeSegment(rec), 0o644)
}

// addRefs adjusts the attach count stored in the segment header.
func (t *SharedTier) addRefs(path string, delta int) (uint32, error) {
	f, err := t.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var buf [4]byte
	if _, err := f.ReadAt(buf[:], refsOffset); err != nil {
		return 0, err
	}
	refs := int64(binary.LittleEndian.Uint32(buf[:])) + int64(delta)
	refs = max(refs, 0)
	binary.LittleEndian.PutUint32(buf[:], uint32(refs))
	if _, err := f.WriteAt(buf[:], refsOffset); err != nil {
		return 0, err
	}
	return uint32(refs), nil
}

// Attach maps the subject's published segment. It returns fs.ErrNotExist
// when none is published. Attaching twice is a no-op.
func (t *SharedTier) Attach(subject metastore.Subject) (metastore.Metadata, error) {
	unlock, err := t.lockDir()
	if err != nil {
		return metastore.Metadata{}, err
	}
	defer unlock()
	return t.attachLocked(subject)
}

func (t *SharedTier) attachLocked(subject metastore.Subject) (metastore.Metadata, error) {
	t.mu.RLock()
	seg, ok := t.attached[subject]
	t.mu.RUnlock()
	if ok {
		return seg.meta, nil
	}

	path := t.path(subject)
	seg, err := openSegment(path, subject)
	if err != nil {
		return metastore.Metadata{}, err
	}
	if _, err := t.addRefs(path, 1); err != nil {
		_ = seg.close()
		return metastore.Metadata{}, err
	}

	t.mu.Lock()
	t.attached[subject] = seg
	t.mu.Unlock()
	return seg.meta, nil
}

// PublishAndAttach publishes rec and attaches the new segment, detaching a
// previously attached one first.
func (t *SharedTier) PublishAndAttach(rec metastore.Record) error {
	unlock, err := t.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := t.detachLocked(rec.Subject); err != nil {
		return err
	}
	if err := t.publishLocked(rec); err != nil {
		return err
	}
	_, err = t.attachLocked(rec.Subject)
	return err
}

// Detach unmaps the subject's segment and drops this process's reference.
// The segment stays published. It returns the number of entries detached.
func (t *SharedTier) Detach(subject metastore.Subject) (int, error) {
	unlock, err := t.lockDir()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return t.detachLocked(subject)
}

func (t *SharedTier) detachLocked(subject metastore.Subject) (int, error) {
	t.mu.Lock()
	seg, ok := t.attached[subject]
	delete(t.attached, subject)
	t.mu.Unlock()
	if !ok {
		return 0, nil
	}

	n := seg.len()
	if err := seg.close(); err != nil {
		return n, err
	}
	if _, err := t.addRefs(t.path(subject), -1); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return n, err
	}
	return n, nil
}

// Free removes the subject's segment for every participant and detaches it
// here. It returns the number of entries removed.
func (t *SharedTier) Free(subject metastore.Subject) (int, error) {
	unlock, err := t.lockDir()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return t.freeLocked(subject)
}

func (t *SharedTier) freeLocked(subject metastore.Subject) (int, error) {
	path := t.path(subject)
	n := 0
	if info, err := t.fs.Stat(path); err == nil {
		n = int((info.Size() - headerSize) / 8)
	}

	t.mu.Lock()
	seg, ok := t.attached[subject]
	delete(t.attached, subject)
	t.mu.Unlock()
	if ok {
		n = seg.len()
		_ = seg.close()
	}

	if err := t.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return n, err
	}
	return n, nil
}

// FreeAll removes every published segment and returns the total number of
// entries removed.
func (t *SharedTier) FreeAll() (int, error) {
	unlock, err := t.lockDir()
	if err != nil {
		return 0, err
	}
	defer unlock()

	subjects, err := t.published()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range subjects {
		n, err := t.freeLocked(s)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *SharedTier) published() ([]metastore.Subject, error) {
	entries, err := t.fs.ReadDir(t.dir)
	if err != nil {
		return nil, err
	}
	var out []metastore.Subject
	for _, e := range entries {
		if s, ok := parseSegmentName(e.Name()); ok && !e.IsDir() {
			out = append(out, s)
		}
	}
	return out, nil
}

// Contains looks key up in the subject's attached segment. attached is false
// when the subject is not attached here.
func (t *SharedTier) Contains(subject metastore.Subject, key ngram.Key) (found bool, meta metastore.Metadata, attached bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seg, ok := t.attached[subject]
	if !ok {
		return false, metastore.Metadata{}, false
	}
	return seg.contains(key), seg.meta, true
}

// KeySet returns the subject's attached segment as a KeySet. The set is
// decoded once per attach and shared by all callers, who must not modify it.
func (t *SharedTier) KeySet(subject metastore.Subject) (*ngram.KeySet, metastore.Metadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	seg, ok := t.attached[subject]
	if !ok {
		return nil, metastore.Metadata{}, false
	}
	return seg.keySet(), seg.meta, true
}

// Stats lists every published segment with its attach count.
func (t *SharedTier) Stats() (SharedStats, error) {
	unlock, err := t.lockDir()
	if err != nil {
		return SharedStats{}, err
	}
	defer unlock()

	subjects, err := t.published()
	if err != nil {
		return SharedStats{}, err
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].String() < subjects[j].String() })

	var st SharedStats
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range subjects {
		info := SegmentInfo{Subject: s}
		path := t.path(s)
		if fi, err := t.fs.Stat(path); err == nil {
			info.Entries = int((fi.Size() - headerSize) / 8)
		}
		if refs, err := t.readRefs(path); err == nil {
			info.Refs = refs
		}
		if seg, ok := t.attached[s]; ok {
			info.Attached = true
			st.Attached++
			st.Entries += seg.len()
			st.MappedBytes += int64(seg.m.Size())
		}
		st.Segments = append(st.Segments, info)
	}
	return st, nil
}

func (t *SharedTier) readRefs(path string) (uint32, error) {
	f, err := t.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var buf [4]byte
	if _, err := f.ReadAt(buf[:], refsOffset); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Close detaches every segment attached by this tier.
func (t *SharedTier) Close() error {
	unlock, err := t.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	t.mu.RLock()
	subjects := make([]metastore.Subject, 0, len(t.attached))
	for s := range t.attached {
		subjects = append(subjects, s)
	}
	t.mu.RUnlock()

	var errs []error
	for _, s := range subjects {
		if _, err := t.detachLocked(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
