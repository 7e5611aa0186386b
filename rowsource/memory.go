package rowsource

import (
	"context"
	"fmt"

	"github.com/hupe1980/dnagram/codec"
)

// Memory is a Source over rows held in memory.
type Memory struct {
	rows []Row
}

var _ Source = (*Memory)(nil)

// NewMemory returns a Source over seqs; row i gets ID i.
func NewMemory(seqs ...codec.EncodedSequence) *Memory {
	m := &Memory{rows: make([]Row, len(seqs))}
	for i, s := range seqs {
		m.rows[i] = Row{ID: uint64(i), Seq: s}
	}
	return m
}

// FromStrings encodes texts as typ and returns a Source over them.
func FromStrings(typ codec.Type, texts ...string) (*Memory, error) {
	seqs := make([]codec.EncodedSequence, len(texts))
	for i, t := range texts {
		s, err := codec.Encode(t, typ)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		seqs[i] = s
	}
	return NewMemory(seqs...), nil
}

// Append adds a row and returns its ID.
func (m *Memory) Append(seq codec.EncodedSequence) uint64 {
	id := uint64(len(m.rows))
	m.rows = append(m.rows, Row{ID: id, Seq: seq})
	return id
}

// Len returns the number of rows.
func (m *Memory) Len() int { return len(m.rows) }

// Row returns the row with the given ID.
func (m *Memory) Row(id uint64) (Row, bool) {
	if id >= uint64(len(m.rows)) {
		return Row{}, false
	}
	return m.rows[id], true
}

// Scan implements Source.
func (m *Memory) Scan(ctx context.Context, p Partition, fn func(Row) error) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i := p.Index; i < len(m.rows); i += p.Count {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(m.rows[i]); err != nil {
			return err
		}
	}
	return nil
}
