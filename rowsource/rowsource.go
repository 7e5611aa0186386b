// Package rowsource defines the row source the analyzer scans and ships
// two implementations: an in-memory table and a FASTA file reader.
//
// Partitioning is by row ordinal: partition i of n owns every row whose
// ordinal o satisfies o % n == i. The assignment depends only on the
// ordinal, so it is stable across scans and the partitions of one count
// cover every row exactly once.
package rowsource

import (
	"context"
	"fmt"

	"github.com/hupe1980/dnagram/codec"
)

// Row is one scanned row.
type Row struct {
	// ID is the row's stable ordinal within the source.
	ID uint64
	// Name is an optional label (the FASTA header id).
	Name string
	Seq  codec.EncodedSequence
}

// Partition selects a disjoint slice of a source.
type Partition struct {
	Index int
	Count int
}

// Full is the single partition covering every row.
var Full = Partition{Index: 0, Count: 1}

// Validate reports whether p is well formed.
func (p Partition) Validate() error {
	if p.Count < 1 || p.Index < 0 || p.Index >= p.Count {
		return fmt.Errorf("invalid partition %d/%d", p.Index, p.Count)
	}
	return nil
}

// Owns reports whether the row with ordinal id belongs to p.
func (p Partition) Owns(id uint64) bool {
	return id%uint64(p.Count) == uint64(p.Index)
}

func (p Partition) String() string {
	return fmt.Sprintf("%d/%d", p.Index, p.Count)
}

// Source yields rows of one subject.
type Source interface {
	// Scan calls fn for every row in p, in ordinal order. Returning an
	// error from fn stops the scan and returns that error.
	Scan(ctx context.Context, p Partition, fn func(Row) error) error
}
