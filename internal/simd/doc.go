// Package simd provides the nucleotide pack/unpack kernels behind the codec.
//
// # Dispatch
//
// A runtime probe (golang.org/x/sys/cpu) selects the widest ISA available:
//
//   - x86-64: AVX-512, AVX2
//   - ARM64: SVE2, NEON
//
// Each ISA binds a kernel set whose block width matches the register width
// (64 bytes for AVX-512/SVE2, 32 bytes for AVX2/NEON). Kernels are SWAR
// word-at-a-time Go loops; the scalar kernel set is the default and the
// correctness oracle. All kernel sets produce bit-identical output.
//
// Set DNAGRAM_SIMD=generic|neon|sve2|avx2|avx512 to force a selection, or call
// SetISA from tests.
package simd
