// Package cache provides bounded in-process caches.
//
// LRU is a generic entry-count bounded cache with hit and miss counters.
// Aux groups the three auxiliary caches used by matching and scoring:
// actual-min-score, raw-score and query-pattern. Entries are only removed
// by capacity eviction or an explicit Clear.
package cache
