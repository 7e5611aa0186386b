// Package score computes shared n-gram key scores between a sequence and a
// query.
//
// The raw score is |KeySet(sequence) ∩ KeySet(query)|. The corrected score
// subtracts the number of query keys that are excluded as high-frequency,
// the same term the match threshold is lowered by:
//
//	corrected = max(0, raw - |KeySet(query) ∩ excluded|)
//
// Both scores follow the configured score mode. In exact mode keys must
// agree on their occurrence field; in kmer mode occurrence fields are
// cleared first, so repeated motifs count once.
//
// With no exclusion metadata the two scores are equal.
package score
