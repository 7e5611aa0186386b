// Package badgerstore implements metastore.Store on BadgerDB.
//
// Every excluded NgramKey is its own Badger key, so a point lookup from the
// store-fallback cache tier touches one key instead of decoding a whole
// exclusion set. Key sets are written under a fresh generation and made
// visible by a single metadata transaction, which keeps Replace atomic even
// when the set is too large for one Badger transaction.
//
// Key layout:
//
//	m/<table>/<column>                    -> generation (8 bytes) + metadata record
//	k/<table>/<column>/<gen><ngram key>   -> empty
//
// Table and column are path-escaped; generation and key are big-endian so
// a generation's keys iterate in ascending order.
package badgerstore

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/dnagram/metastore"
	"github.com/hupe1980/dnagram/ngram"
)

// Config holds configuration for a Badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCDiscardRatio is the value log garbage ratio that triggers a
	// rewrite after Delete. 0 disables GC.
	GCDiscardRatio float64
}

// DefaultConfig returns durable defaults for a store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a metastore.Store on BadgerDB.
type Store struct {
	db      *badger.DB
	gcRatio float64
	logger  *slog.Logger
}

var _ metastore.Store = (*Store)(nil)

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	ratio := cfg.GCDiscardRatio
	if cfg.InMemory {
		ratio = 0
	}
	return &Store{db: db, gcRatio: ratio, logger: logger}, nil
}

func subjectPath(s metastore.Subject) string {
	return url.PathEscape(s.Table) + "/" + url.PathEscape(s.Column)
}

func metaKey(s metastore.Subject) []byte {
	return []byte("m/" + subjectPath(s))
}

func genPrefix(s metastore.Subject, gen uint64) []byte {
	p := []byte("k/" + subjectPath(s) + "/")
	return binary.BigEndian.AppendUint64(p, gen)
}

func entryKey(prefix []byte, key ngram.Key) []byte {
	out := make([]byte, len(prefix), len(prefix)+8)
	copy(out, prefix)
	return binary.BigEndian.AppendUint64(out, uint64(key))
}

// readMeta returns the current generation and metadata for subject.
func readMeta(txn *badger.Txn, subject metastore.Subject) (uint64, metastore.Metadata, error) {
	item, err := txn.Get(metaKey(subject))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, metastore.Metadata{}, fmt.Errorf("%s: %w", subject, metastore.ErrNotAnalyzed)
		}
		return 0, metastore.Metadata{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, metastore.Metadata{}, err
	}
	return decodeMetaValue(val)
}

func decodeMetaValue(val []byte) (uint64, metastore.Metadata, error) {
	if len(val) < 8 {
		return 0, metastore.Metadata{}, fmt.Errorf("%w: metadata value is %d bytes", metastore.ErrCorrupt, len(val))
	}
	meta, err := metastore.DecodeMetadata(val[8:])
	if err != nil {
		return 0, metastore.Metadata{}, err
	}
	return binary.BigEndian.Uint64(val), meta, nil
}

// Replace implements metastore.Store. Keys are bulk-written under a new
// generation first; the metadata transaction that switches generations is
// the commit point.
func (s *Store) Replace(ctx context.Context, rec metastore.Record) error {
	if err := rec.Subject.Validate(); err != nil {
		return err
	}
	rec.ExcludedKeys = int64(rec.Keys.Len())

	var prevGen uint64
	err := s.db.View(func(txn *badger.Txn) error {
		gen, _, err := readMeta(txn, rec.Subject)
		if errors.Is(err, metastore.ErrNotAnalyzed) {
			return nil
		}
		prevGen = gen
		return err
	})
	if err != nil {
		return err
	}
	gen := prevGen + 1
	prefix := genPrefix(rec.Subject, gen)

	// Leftovers from an aborted Replace with the same generation.
	if err := s.dropPrefix(ctx, prefix, nil); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	for key := range rec.Keys.All() {
		if err := ctx.Err(); err != nil {
			wb.Cancel()
			return s.abortReplace(prefix, err)
		}
		if err := wb.Set(entryKey(prefix, key), nil); err != nil {
			wb.Cancel()
			return s.abortReplace(prefix, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return s.abortReplace(prefix, err)
	}

	meta, err := metastore.EncodeRecord(metastore.Record{Metadata: rec.Metadata}, metastore.CompressionNone)
	if err != nil {
		return s.abortReplace(prefix, err)
	}
	val := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(meta)), gen)
	val = append(val, meta...)

	err = s.db.Update(func(txn *badger.Txn) error {
		cur, _, err := readMeta(txn, rec.Subject)
		switch {
		case errors.Is(err, metastore.ErrNotAnalyzed):
			cur = 0
		case err != nil:
			return err
		}
		if cur != prevGen {
			return badger.ErrConflict
		}
		return txn.Set(metaKey(rec.Subject), val)
	})
	if err != nil {
		return s.abortReplace(prefix, fmt.Errorf("commit %s: %w", rec.Subject, err))
	}

	if prevGen > 0 {
		if err := s.dropPrefix(context.WithoutCancel(ctx), genPrefix(rec.Subject, prevGen), nil); err != nil {
			s.logger.Warn("failed to drop superseded exclusion keys",
				slog.String("subject", rec.Subject.String()),
				slog.Uint64("generation", prevGen),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Store) abortReplace(prefix []byte, cause error) error {
	if err := s.dropPrefix(context.Background(), prefix, nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// dropPrefix deletes every key under prefix in batches, accumulating into
// stats when non-nil.
func (s *Store) dropPrefix(ctx context.Context, prefix []byte, stats *metastore.DropStats) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			keys = append(keys, item.KeyCopy(nil))
			if stats != nil {
				stats.Keys++
				stats.BytesReclaimed += item.EstimatedSize()
			}
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}

	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

// Get implements metastore.Store.
func (s *Store) Get(ctx context.Context, subject metastore.Subject) (metastore.Record, error) {
	if err := subject.Validate(); err != nil {
		return metastore.Record{}, err
	}
	var rec metastore.Record
	err := s.db.View(func(txn *badger.Txn) error {
		gen, meta, err := readMeta(txn, subject)
		if err != nil {
			return err
		}
		rec.Metadata = meta
		rec.Keys = ngram.NewKeySet()

		prefix := genPrefix(subject, gen)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := it.Item().Key()
			rec.Keys.Add(ngram.Key(binary.BigEndian.Uint64(k[len(prefix):])))
		}
		return nil
	})
	if err != nil {
		return metastore.Record{}, err
	}
	return rec, nil
}

// Metadata implements metastore.Store.
func (s *Store) Metadata(_ context.Context, subject metastore.Subject) (metastore.Metadata, error) {
	if err := subject.Validate(); err != nil {
		return metastore.Metadata{}, err
	}
	var meta metastore.Metadata
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		_, meta, err = readMeta(txn, subject)
		return err
	})
	return meta, err
}

// Contains implements metastore.Store with a single point lookup.
func (s *Store) Contains(_ context.Context, subject metastore.Subject, key ngram.Key) (bool, error) {
	if err := subject.Validate(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		gen, _, err := readMeta(txn, subject)
		if err != nil {
			return err
		}
		_, err = txn.Get(entryKey(genPrefix(subject, gen), key))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// Delete implements metastore.Store. The metadata key is removed first so
// the subject reads as not analyzed before its keys are reclaimed.
func (s *Store) Delete(ctx context.Context, subject metastore.Subject) (metastore.DropStats, error) {
	if err := subject.Validate(); err != nil {
		return metastore.DropStats{}, err
	}

	var gen uint64
	var stats metastore.DropStats
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(subject))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if gen, _, err = decodeMetaValue(val); err != nil {
			return err
		}
		stats.Records = 1
		stats.BytesReclaimed = item.EstimatedSize()
		return txn.Delete(metaKey(subject))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return metastore.DropStats{}, nil
	}
	if err != nil {
		return metastore.DropStats{}, err
	}

	if err := s.dropPrefix(ctx, genPrefix(subject, gen), &stats); err != nil {
		return stats, err
	}
	s.runGC()
	return stats, nil
}

func (s *Store) runGC() {
	if s.gcRatio <= 0 {
		return
	}
	// RunValueLogGC returns nil if GC was triggered, ErrNoRewrite if not needed.
	if err := s.db.RunValueLogGC(s.gcRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		s.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}

// List implements metastore.Store.
func (s *Store) List(ctx context.Context) ([]metastore.Metadata, error) {
	var out []metastore.Metadata
	prefix := []byte("m/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			_, meta, err := decodeMetaValue(val)
			if err != nil {
				return err
			}
			out = append(out, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b metastore.Metadata) int {
		return cmp.Compare(a.Subject.String(), b.Subject.String())
	})
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
