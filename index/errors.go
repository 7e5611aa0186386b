package index

import "fmt"

// MinQueryLength is the shortest query accepted regardless of k.
const MinQueryLength = 8

// ErrQueryTooShort is returned for queries below max(k, MinQueryLength) bases.
type ErrQueryTooShort struct {
	Length int
	Min    int
}

func (e *ErrQueryTooShort) Error() string {
	return fmt.Sprintf("query of %d bases is too short: need at least %d", e.Length, e.Min)
}
