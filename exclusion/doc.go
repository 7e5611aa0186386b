// Package exclusion answers "is this key excluded for this column?" through
// three tiers:
//
//  1. the process-local tier, holding sets explicitly loaded into memory;
//  2. the shared tier, memory-mapped segment files that several processes
//     attach to instead of each reading the durable store;
//  3. the durable metastore, with concurrent identical lookups collapsed
//     into one.
//
// A tier only answers when the parameters the set was analyzed with
// (kmer_size, occurrence_bits, max_appearance_rate, max_appearance_nrow)
// equal the current configuration. Any difference is a
// *config.ErrIncompatible naming the parameter; stale sets are never used.
// With force_shared_cache set, lookups skip the local tier.
//
// A subject that was never analyzed has no exclusions. Loading it is not an
// error and affects zero entries.
package exclusion
