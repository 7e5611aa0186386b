package simd

import "sync/atomic"

// ==============================================================================
// Nucleotide Pack/Unpack Kernels
// ==============================================================================
//
// DNA2 packs one base into 2 bits (A=0 C=1 G=2 T=3), DNA4 packs one base into
// a 4-bit mask (A=1 C=2 G=4 T=8, degenerate codes are ORs). Both layouts are
// MSB-first within a byte.

// Invalid marks characters that have no code in a table.
const Invalid = 0xFF

var (
	code2   [256]byte
	code4   [256]byte
	letter2 = [4]byte{'A', 'C', 'G', 'T'}
	letter4 = [16]byte{'?', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

	// quad tables expand one DNA2 byte into four outputs.
	quadLetter2 [256][4]byte
	quadCode2   [256][4]byte
	// pair tables expand one DNA4 byte into two outputs.
	pairLetter4 [256][2]byte
	pairCode4   [256][2]byte
)

func init() {
	for i := range code2 {
		code2[i] = Invalid
		code4[i] = Invalid
	}

	set2 := func(c byte, v byte) {
		code2[c] = v
		code2[c|0x20] = v // lowercase
	}
	set2('A', 0)
	set2('C', 1)
	set2('G', 2)
	set2('T', 3)
	set2('U', 3)

	for mask := 1; mask < 16; mask++ {
		c := letter4[mask]
		code4[c] = byte(mask)
		code4[c|0x20] = byte(mask)
	}
	code4['U'] = 8
	code4['u'] = 8

	for b := 0; b < 256; b++ {
		for j := 0; j < 4; j++ {
			v := byte(b>>(6-2*j)) & 3
			quadCode2[b][j] = v
			quadLetter2[b][j] = letter2[v]
		}
		hi, lo := byte(b>>4), byte(b&0x0F)
		pairCode4[b] = [2]byte{hi, lo}
		pairLetter4[b] = [2]byte{letter4[hi], letter4[lo]}
	}
}

// Code2 returns the DNA2 code of c, or Invalid.
func Code2(c byte) byte { return code2[c] }

// Code4 returns the DNA4 mask of c, or Invalid.
func Code4(c byte) byte { return code4[c] }

// Letter2 returns the canonical letter of a DNA2 code.
func Letter2(v byte) byte { return letter2[v&3] }

// Letter4 returns the canonical letter of a DNA4 mask.
func Letter4(m byte) byte { return letter4[m&0x0F] }

// kernels is one complete implementation of the nucleotide operations.
type kernels struct {
	isa     ISA
	pack2   func(dst, src []byte) int
	pack4   func(dst, src []byte) int
	unpack2 func(dst, src []byte)
	unpack4 func(dst, src []byte)
	codes2  func(dst, src []byte)
	codes4  func(dst, src []byte)
}

var active atomic.Pointer[kernels]

var scalarKernels = &kernels{
	isa:     Generic,
	pack2:   pack2Generic,
	pack4:   pack4Generic,
	unpack2: unpack2Generic,
	unpack4: unpack4Generic,
	codes2:  codes2Generic,
	codes4:  codes4Generic,
}

// bind installs the kernel set for isa. Callers hold mu or run in init.
func bind(isa ISA) {
	active.Store(kernelsFor(isa))
}

func kernelsFor(isa ISA) *kernels {
	switch isa {
	case AVX512, SVE2:
		return blockKernels(isa, 64)
	case AVX2, NEON:
		return blockKernels(isa, 32)
	default:
		return scalarKernels
	}
}

// Pack2 packs ASCII bases from src into dst at 2 bits per base.
// dst must be zeroed and hold at least (2*len(src)+7)/8 bytes.
// Returns the index of the first invalid character, or -1.
func Pack2(dst, src []byte) int {
	return active.Load().pack2(dst, src)
}

// Pack4 packs ASCII bases (IUPAC codes allowed) from src into dst at 4 bits
// per base. dst must be zeroed and hold at least (len(src)+1)/2 bytes.
// Returns the index of the first invalid character, or -1.
func Pack4(dst, src []byte) int {
	return active.Load().pack4(dst, src)
}

// Unpack2 writes len(dst) canonical letters decoded from DNA2 src.
func Unpack2(dst, src []byte) {
	active.Load().unpack2(dst, src)
}

// Unpack4 writes len(dst) canonical letters decoded from DNA4 src.
func Unpack4(dst, src []byte) {
	active.Load().unpack4(dst, src)
}

// Codes2 writes len(dst) 2-bit codes decoded from DNA2 src.
func Codes2(dst, src []byte) {
	active.Load().codes2(dst, src)
}

// Codes4 writes len(dst) 4-bit masks decoded from DNA4 src.
func Codes4(dst, src []byte) {
	active.Load().codes4(dst, src)
}
