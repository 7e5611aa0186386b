package simd

import "encoding/binary"

// ==============================================================================
// Block implementations
// ==============================================================================
//
// Block kernels consume `width` bases per outer iteration, eight at a time
// into a single word store, and accumulate an invalid-character flag per
// block. Tails shorter than a block go through the generic kernels; block
// boundaries are byte aligned for both layouts so no bit shifting is needed
// at the seam.

func blockKernels(isa ISA, width int) *kernels {
	return &kernels{
		isa:     isa,
		pack2:   func(dst, src []byte) int { return pack2Block(dst, src, width) },
		pack4:   func(dst, src []byte) int { return pack4Block(dst, src, width) },
		unpack2: func(dst, src []byte) { expand2Block(dst, src, width, &quadLetter2) },
		unpack4: func(dst, src []byte) { expand4Block(dst, src, width, &pairLetter4) },
		codes2:  func(dst, src []byte) { expand2Block(dst, src, width, &quadCode2) },
		codes4:  func(dst, src []byte) { expand4Block(dst, src, width, &pairCode4) },
	}
}

func pack2Block(dst, src []byte, width int) int {
	n := len(src) - len(src)%width
	for off := 0; off < n; off += width {
		blk := src[off : off+width]
		out := dst[off>>2 : (off+width)>>2]

		var bad byte
		for j := 0; j < width; j += 8 {
			c0, c1, c2, c3 := code2[blk[j]], code2[blk[j+1]], code2[blk[j+2]], code2[blk[j+3]]
			c4, c5, c6, c7 := code2[blk[j+4]], code2[blk[j+5]], code2[blk[j+6]], code2[blk[j+7]]
			bad |= c0 | c1 | c2 | c3 | c4 | c5 | c6 | c7

			w := uint16(c0&3)<<14 | uint16(c1&3)<<12 | uint16(c2&3)<<10 | uint16(c3&3)<<8 |
				uint16(c4&3)<<6 | uint16(c5&3)<<4 | uint16(c6&3)<<2 | uint16(c7&3)
			binary.BigEndian.PutUint16(out[j>>2:], w)
		}
		if bad&^3 != 0 {
			return off + firstInvalid(blk, &code2)
		}
	}

	if bad := pack2Generic(dst[n>>2:], src[n:]); bad >= 0 {
		return n + bad
	}
	return -1
}

func pack4Block(dst, src []byte, width int) int {
	n := len(src) - len(src)%width
	for off := 0; off < n; off += width {
		blk := src[off : off+width]
		out := dst[off>>1 : (off+width)>>1]

		var bad byte
		for j := 0; j < width; j += 8 {
			c0, c1, c2, c3 := code4[blk[j]], code4[blk[j+1]], code4[blk[j+2]], code4[blk[j+3]]
			c4, c5, c6, c7 := code4[blk[j+4]], code4[blk[j+5]], code4[blk[j+6]], code4[blk[j+7]]
			bad |= c0 | c1 | c2 | c3 | c4 | c5 | c6 | c7

			w := uint32(c0&0x0F)<<28 | uint32(c1&0x0F)<<24 | uint32(c2&0x0F)<<20 | uint32(c3&0x0F)<<16 |
				uint32(c4&0x0F)<<12 | uint32(c5&0x0F)<<8 | uint32(c6&0x0F)<<4 | uint32(c7&0x0F)
			binary.BigEndian.PutUint32(out[j>>1:], w)
		}
		if bad&0xF0 != 0 {
			return off + firstInvalid(blk, &code4)
		}
	}

	if bad := pack4Generic(dst[n>>1:], src[n:]); bad >= 0 {
		return n + bad
	}
	return -1
}

func firstInvalid(blk []byte, table *[256]byte) int {
	for i, c := range blk {
		if table[c] == Invalid {
			return i
		}
	}
	return -1
}

func expand2Block(dst, src []byte, width int, table *[256][4]byte) {
	n := len(dst) - len(dst)%width
	for off := 0; off < n; off += width {
		in := src[off>>2 : (off+width)>>2]
		for j, b := range in {
			*(*[4]byte)(dst[off+4*j : off+4*j+4]) = table[b]
		}
	}

	tail := dst[n:]
	for i := range tail {
		tail[i] = table[src[(n+i)>>2]][i&3]
	}
}

func expand4Block(dst, src []byte, width int, table *[256][2]byte) {
	n := len(dst) - len(dst)%width
	for off := 0; off < n; off += width {
		in := src[off>>1 : (off+width)>>1]
		for j, b := range in {
			*(*[2]byte)(dst[off+2*j : off+2*j+2]) = table[b]
		}
	}

	tail := dst[n:]
	for i := range tail {
		tail[i] = table[src[(n+i)>>1]][i&1]
	}
}
