// Package highfreq finds n-gram keys that appear in too many rows of a
// column and persists them as the column's exclusion set.
//
// An analysis moves through the phases
//
//	Idle -> Scanning -> Aggregating -> Flagging -> Persisted
//
// Scanning splits the row source into W partitions, one per worker. Each
// worker counts, for every key, how many of its rows contain it. Aggregating
// merges the per-partition histograms as workers finish; the merge is
// associative and commutative, and merging the same partition twice is a
// no-op. Flagging marks a key when
//
//	count/total_rows > max_appearance_rate
//	or (max_appearance_nrow > 0 and count > max_appearance_nrow)
//
// and Persisted replaces the subject's previous record in one step.
//
// Any worker error or cancellation aborts the whole run: the error matches
// ErrAborted and nothing is written, so the previous record stays in place.
package highfreq
