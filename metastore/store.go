package metastore

import (
	"context"

	"github.com/hupe1980/dnagram/ngram"
)

// Store is the durable exclusion metadata store.
//
// Implementations must make Replace atomic per subject: readers observe
// either the previous record or the new one, never a mix.
type Store interface {
	// Replace drops any record for rec.Subject and stores rec in its place.
	Replace(ctx context.Context, rec Record) error

	// Get returns the full record or ErrNotAnalyzed.
	Get(ctx context.Context, subject Subject) (Record, error)

	// Metadata returns the record's metadata without its keys, or ErrNotAnalyzed.
	Metadata(ctx context.Context, subject Subject) (Metadata, error)

	// Contains reports whether key is excluded for subject. A subject
	// without a record returns ErrNotAnalyzed.
	Contains(ctx context.Context, subject Subject, key ngram.Key) (bool, error)

	// Delete drops the subject's record. Deleting a subject that was never
	// analyzed returns zero DropStats and no error.
	Delete(ctx context.Context, subject Subject) (DropStats, error)

	// List returns the metadata of every analyzed subject ordered by subject.
	List(ctx context.Context) ([]Metadata, error)

	Close() error
}
