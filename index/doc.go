// Package index implements the extract and consistent operations an inverted
// n-gram index is built on, and a postings index driven by them.
//
// Ops turns a sequence into its key set and decides whether a row matches a
// query. Given a query key set Q, a row key set R and the excluded
// (high-frequency) keys E of the column:
//
//	Q'     = Q - E
//	actual = max(min_score, ceil(min_shared_ngram_key_rate * |Q|)) - |Q ∩ E|, floored at 0
//	match  = |Q' ∩ R| >= actual
//
// Excluded keys are never indexed, so they can never contribute to a match;
// the threshold is lowered by the number of query keys lost that way.
//
// In kmer score mode every set is compared with its occurrence fields
// cleared. A row that contains a k-mer always contains its first-occurrence
// key, so stripped query keys can be looked up directly in the postings.
//
// Postings maps each key to a Roaring bitmap of row ids and answers ranked
// candidate searches:
//
//	ops, _ := index.NewOps(cfg, aux)
//	p := index.NewPostings(ops)
//	_ = p.Add(1, seq)
//	q, _ := ops.QueryKeySet("ACGTACGTAC")
//	hits := p.Search(q, 10)
package index
