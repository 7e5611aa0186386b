// Package testutil provides testing utilities for dnagram.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded generators for nucleotide data and a brute-force
// key oracle that the packed pipeline is checked against.
//
// # Random Sequence Generation
//
//	rng := testutil.NewRNG(seed)
//	seq := rng.DNA(120)                // concrete A/C/G/T
//	deg := rng.IUPAC(120, 0.05)        // ~5% degenerate positions
//	rows := rng.RowsWithMotif(1000, 60, 120, "ACGTACGT", 0.8)
//
// # Ground Truth
//
//	keys := testutil.NaiveKeys("ATCGATCG", 4, 8)
package testutil
