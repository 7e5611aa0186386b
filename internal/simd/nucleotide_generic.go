package simd

// ==============================================================================
// Generic implementations
// ==============================================================================
//
// One base per iteration. These are the reference the block kernels are
// tested against.

func pack2Generic(dst, src []byte) int {
	for i, c := range src {
		v := code2[c]
		if v == Invalid {
			return i
		}
		dst[i>>2] |= v << (6 - 2*uint(i&3))
	}
	return -1
}

func pack4Generic(dst, src []byte) int {
	for i, c := range src {
		v := code4[c]
		if v == Invalid {
			return i
		}
		dst[i>>1] |= v << (4 - 4*uint(i&1))
	}
	return -1
}

func unpack2Generic(dst, src []byte) {
	for i := range dst {
		dst[i] = letter2[(src[i>>2]>>(6-2*uint(i&3)))&3]
	}
}

func unpack4Generic(dst, src []byte) {
	for i := range dst {
		dst[i] = letter4[(src[i>>1]>>(4-4*uint(i&1)))&0x0F]
	}
}

func codes2Generic(dst, src []byte) {
	for i := range dst {
		dst[i] = (src[i>>2] >> (6 - 2*uint(i&3))) & 3
	}
}

func codes4Generic(dst, src []byte) {
	for i := range dst {
		dst[i] = (src[i>>1] >> (4 - 4*uint(i&1))) & 0x0F
	}
}
