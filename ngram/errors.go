package ngram

import "fmt"

// ErrIncompatible reports a k and occurrence width that do not fit in 64 bits.
type ErrIncompatible struct {
	K              int
	OccurrenceBits int
}

func (e *ErrIncompatible) Error() string {
	return fmt.Sprintf("kmer_size %d with occurrence_bits %d needs %d bits, more than 64; lower kmer_size to at most %d or occurrence_bits to at most %d",
		e.K, e.OccurrenceBits, 2*e.K+e.OccurrenceBits, (64-e.OccurrenceBits)/2, max(0, 64-2*e.K))
}

// ErrOccurrenceBits reports an occurrence width outside [0, MaxOccurrenceBits].
type ErrOccurrenceBits struct {
	Bits int
}

func (e *ErrOccurrenceBits) Error() string {
	return fmt.Sprintf("occurrence_bits %d out of range [0, %d]", e.Bits, MaxOccurrenceBits)
}
