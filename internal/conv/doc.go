// Package conv converts integers between the fixed-width fields of on-disk
// formats and Go's native types, failing instead of wrapping.
//
// Use it for values read from disk (counts, lengths) and for lengths
// written into narrower fields. Conversions that are safe by construction
// (loop indices, bounded parameters) use plain casts.
package conv
