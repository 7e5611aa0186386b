package simd

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// ISA represents a SIMD instruction set architecture.
type ISA uint8

const (
	// Generic represents the scalar implementation (no SIMD).
	Generic ISA = iota
	// NEON represents ARM64 NEON (128-bit SIMD, ASIMD).
	NEON
	// SVE2 represents ARM64 SVE2 (scalable vectors, 128-2048 bit).
	SVE2
	// AVX2 represents x86-64 AVX2 (256-bit SIMD).
	AVX2
	// AVX512 represents x86-64 AVX-512 (512-bit SIMD).
	AVX512
)

// EnvOverride is the environment variable consulted at init to force an ISA.
const EnvOverride = "DNAGRAM_SIMD"

// String returns the string representation of an ISA.
func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case NEON:
		return "neon"
	case SVE2:
		return "sve2"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// ParseISA parses a string into an ISA value.
// "scalar" is accepted as an alias for generic.
func ParseISA(s string) (ISA, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "generic", "scalar":
		return Generic, true
	case "neon":
		return NEON, true
	case "sve2":
		return SVE2, true
	case "avx2":
		return AVX2, true
	case "avx512":
		return AVX512, true
	default:
		return Generic, false
	}
}

var (
	mu sync.RWMutex

	// activeISA is the selected implementation; kernels are bound to it.
	activeISA ISA

	// hasOverride is true if DNAGRAM_SIMD (or SetISA) forced the ISA.
	hasOverride bool

	// CPU feature flags (set by platform-specific init)
	hasASIMD    bool // ARM64 NEON
	hasSVE2     bool // ARM64 SVE2
	hasAVX2     bool // x86-64 AVX2
	hasAVX512F  bool // x86-64 AVX-512 Foundation
	hasAVX512BW bool // x86-64 AVX-512 Byte/Word
)

// initCapabilities is called from platform-specific init functions
// after CPU features are detected.
func initCapabilities() {
	activeISA = selectBestISA()
	if override := os.Getenv(EnvOverride); override != "" {
		if isa, ok := ParseISA(override); ok && isISAAvailable(isa) {
			activeISA = isa
			hasOverride = true
		}
	}
	bind(activeISA)
}

// isISAAvailable checks if an ISA is supported on this CPU.
func isISAAvailable(isa ISA) bool {
	switch isa {
	case Generic:
		return true
	case NEON:
		return hasASIMD
	case SVE2:
		return hasSVE2
	case AVX2:
		return hasAVX2
	case AVX512:
		return hasAVX512F && hasAVX512BW
	default:
		return false
	}
}

// selectBestISA chooses the widest ISA available on the current platform.
func selectBestISA() ISA {
	switch runtime.GOARCH {
	case "arm64":
		if hasSVE2 {
			return SVE2
		}
		if hasASIMD {
			return NEON
		}
	case "amd64":
		if hasAVX512F && hasAVX512BW {
			return AVX512
		}
		if hasAVX2 {
			return AVX2
		}
	}
	return Generic
}

// ActiveISA returns the currently active ISA.
func ActiveISA() ISA {
	mu.RLock()
	defer mu.RUnlock()
	return activeISA
}

// IsOverridden returns true if the ISA was forced by DNAGRAM_SIMD or SetISA.
func IsOverridden() bool {
	mu.RLock()
	defer mu.RUnlock()
	return hasOverride
}

// Available returns every ISA usable on this CPU, generic first.
func Available() []ISA {
	out := []ISA{Generic}
	for _, isa := range []ISA{NEON, SVE2, AVX2, AVX512} {
		if isISAAvailable(isa) {
			out = append(out, isa)
		}
	}
	return out
}

// SetISA forces the kernels of the given ISA and returns a function that
// restores the previous selection. It fails if the CPU lacks the ISA.
func SetISA(isa ISA) (restore func(), err error) {
	if !isISAAvailable(isa) {
		return nil, fmt.Errorf("simd: isa %s not available on %s/%s", isa, runtime.GOOS, runtime.GOARCH)
	}

	mu.Lock()
	prevISA, prevOverride := activeISA, hasOverride
	activeISA, hasOverride = isa, true
	bind(isa)
	mu.Unlock()

	return func() {
		mu.Lock()
		activeISA, hasOverride = prevISA, prevOverride
		bind(prevISA)
		mu.Unlock()
	}, nil
}

// HasASIMD returns true if ARM64 NEON is available.
func HasASIMD() bool {
	return hasASIMD
}

// HasSVE2 returns true if ARM64 SVE2 is available.
func HasSVE2() bool {
	return hasSVE2
}

// HasAVX2 returns true if x86-64 AVX2 is available.
func HasAVX2() bool {
	return hasAVX2
}

// HasAVX512 returns true if x86-64 AVX-512 (F+BW) is available.
func HasAVX512() bool {
	return hasAVX512F && hasAVX512BW
}
