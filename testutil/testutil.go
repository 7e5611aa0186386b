package testutil

import (
	"math"
	"math/rand"
	"slices"
	"strings"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

const (
	concrete   = "ACGT"
	degenerate = "MRWSYKVHDBN"
)

// DNA returns a random concrete sequence of length n.
func (r *RNG) DNA(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dnaLocked(n)
}

func (r *RNG) dnaLocked(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = concrete[r.rand.Intn(4)]
	}
	return string(b)
}

// IUPAC returns a random sequence of length n where each position is a
// degenerate code with probability rate.
func (r *RNG) IUPAC(n int, rate float64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		if r.rand.Float64() < rate {
			b[i] = degenerate[r.rand.Intn(len(degenerate))]
		} else {
			b[i] = concrete[r.rand.Intn(4)]
		}
	}
	return string(b)
}

// MixedCase randomly lowercases letters and rewrites T as U, producing
// input that normalizes back to s.
func (r *RNG) MixedCase(s string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := []byte(s)
	for i, c := range b {
		if c == 'T' && r.rand.Intn(4) == 0 {
			c = 'U'
		}
		if r.rand.Intn(2) == 0 {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}

// Rows generates num random concrete rows with lengths in [minLen, maxLen].
func (r *RNG) Rows(num, minLen, maxLen int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]string, num)
	for i := range rows {
		rows[i] = r.dnaLocked(minLen + r.rand.Intn(maxLen-minLen+1))
	}
	return rows
}

// RowsWithMotif generates rows like Rows and splices motif into each row
// with probability rate, making the motif's k-mers high-frequency.
func (r *RNG) RowsWithMotif(num, minLen, maxLen int, motif string, rate float64) []string {
	rows := r.Rows(num, max(minLen, len(motif)), max(maxLen, len(motif)))

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range rows {
		if r.rand.Float64() >= rate {
			continue
		}
		at := r.rand.Intn(len(row) - len(motif) + 1)
		rows[i] = row[:at] + motif + row[at+len(motif):]
	}
	return rows
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// ZipfRows builds num rows by concatenating words drawn from a Zipfian
// distribution over vocab, so a few k-mers dominate the corpus.
func (r *RNG) ZipfRows(num, wordsPerRow int, vocab []string, s float64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := make([]string, num)
	var sb strings.Builder
	for i := range rows {
		sb.Reset()
		for range wordsPerRow {
			sb.WriteString(vocab[r.zipfLocked(len(vocab), s)])
		}
		rows[i] = sb.String()
	}
	return rows
}

// NaiveKeys computes the n-gram keys of a concrete uppercase sequence the
// slow way: string windows, a map of counts, and the packing formula
// kmer<<occBits | min(ordinal-1, 2^occBits-1). Keys are returned sorted.
func NaiveKeys(text string, k, occBits int) []uint64 {
	code := map[byte]uint64{'A': 0, 'C': 1, 'G': 2, 'T': 3}
	maxOcc := uint64(1)<<occBits - 1

	seen := make(map[string]uint64)
	set := make(map[uint64]struct{})
	for i := 0; i+k <= len(text); i++ {
		w := text[i : i+k]
		var bits uint64
		for j := 0; j < k; j++ {
			bits = bits<<2 | code[w[j]]
		}
		occ := min(seen[w], maxOcc)
		seen[w]++
		set[bits<<occBits|occ] = struct{}{}
	}

	out := make([]uint64, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}

// Intersect returns |a ∩ b| for two sorted key slices.
func Intersect(a, b []uint64) int {
	n, i, j := 0, 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			n++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return n
}
