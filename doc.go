// Package dnagram provides k-mer based similarity search over DNA sequences.
//
// Sequences are bit-packed (DNA2 for concrete bases, DNA4 for IUPAC
// degenerate codes), split into overlapping k-mers and turned into n-gram
// keys that carry an occurrence ordinal. A row matches a query when it
// shares enough keys with it, after keys that appear in too many rows of the
// column have been discounted.
//
//   - Codec and k-mer extraction with SIMD kernels (AVX2/AVX-512 on x86_64,
//     NEON/SVE2 on arm64) that are bit-identical to the generic path
//   - Raw and corrected similarity scores with memoized partial results
//   - Parallel high-frequency analysis with all-or-nothing persistence
//   - Exclusion sets cached per process, shared across processes through
//     mmap-backed segments, or read straight from the durable store
//   - Durable stores on local disk, S3 (with an optional DynamoDB commit
//     pointer), MinIO and BadgerDB
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, err := dnagram.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	subject := dnagram.Subject{Table: "reads", Column: "seq"}
//
//	src, _ := rowsource.FromStrings(codec.DNA4, "ACGTACGTAC", "TTGACCATGA")
//	res, err := eng.Analyze(ctx, subject, src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("excluded %d of %d keys\n", res.ExcludedKeys, res.DistinctKeys)
//
//	// Keep the exclusion set in process memory.
//	if _, err := eng.LoadCache(ctx, dnagram.LocalCache, subject); err != nil {
//	    log.Fatal(err)
//	}
//
//	row := codec.MustEncode("ACGTACGTAC", codec.DNA4)
//	ok, err := eng.Matches(ctx, subject, row, "ACGTACGT")
//
// # Configuration
//
// Engine parameters live in config.Config and are validated once in New.
// Parameters that an exclusion set was analyzed with (kmer_size,
// occurrence_bits, max_appearance_rate, max_appearance_nrow) are checked on
// every cache load; a drifted value fails with ErrConfigurationIncompatible
// instead of silently using a stale set.
package dnagram
