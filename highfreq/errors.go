package highfreq

import (
	"errors"
	"fmt"
)

// ErrAborted matches every error returned by a failed analysis.
var ErrAborted = errors.New("analysis aborted")

// AbortError reports why an analysis stopped. Nothing was persisted.
type AbortError struct {
	// Phase is the last phase reached before the failure.
	Phase Phase
	// Partition is the failing worker's partition index, or -1.
	Partition int
	Err       error
}

func (e *AbortError) Error() string {
	if e.Partition >= 0 {
		return fmt.Sprintf("analysis aborted during %s (partition %d): %v", e.Phase, e.Partition, e.Err)
	}
	return fmt.Sprintf("analysis aborted during %s: %v", e.Phase, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Is matches ErrAborted.
func (e *AbortError) Is(target error) bool { return target == ErrAborted }
