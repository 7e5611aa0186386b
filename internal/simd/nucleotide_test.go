package simd

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dna4Alphabet = "ACGTUMRWSYKVHDBNacgtumrwsykvhdbn"

func randomText(rng *rand.Rand, alphabet string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return b
}

// allKernels returns the scalar oracle plus every block width, independent of
// what the CPU supports: block kernels are portable Go.
func allKernels() []*kernels {
	return []*kernels{scalarKernels, blockKernels(AVX2, 32), blockKernels(AVX512, 64)}
}

func TestKernels_MatchScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	lengths := []int{0, 1, 3, 4, 7, 8, 31, 32, 33, 63, 64, 65, 100, 257, 1000}

	for _, k := range allKernels()[1:] {
		t.Run(k.isa.String(), func(t *testing.T) {
			for _, n := range lengths {
				text2 := randomText(rng, "ACGTUacgtu", n)
				want2 := make([]byte, (2*n+7)/8)
				got2 := make([]byte, len(want2))
				require.Equal(t, -1, scalarKernels.pack2(want2, text2))
				require.Equal(t, -1, k.pack2(got2, text2))
				assert.Equal(t, want2, got2, "pack2 n=%d", n)

				text4 := randomText(rng, dna4Alphabet, n)
				want4 := make([]byte, (n+1)/2)
				got4 := make([]byte, len(want4))
				require.Equal(t, -1, scalarKernels.pack4(want4, text4))
				require.Equal(t, -1, k.pack4(got4, text4))
				assert.Equal(t, want4, got4, "pack4 n=%d", n)

				for _, pair := range []struct {
					name       string
					ref, under func(dst, src []byte)
					src        []byte
				}{
					{"unpack2", scalarKernels.unpack2, k.unpack2, want2},
					{"codes2", scalarKernels.codes2, k.codes2, want2},
					{"unpack4", scalarKernels.unpack4, k.unpack4, want4},
					{"codes4", scalarKernels.codes4, k.codes4, want4},
				} {
					ref := make([]byte, n)
					got := make([]byte, n)
					pair.ref(ref, pair.src)
					pair.under(got, pair.src)
					assert.Equal(t, ref, got, "%s n=%d", pair.name, n)
				}
			}
		})
	}
}

func TestKernels_InvalidPosition(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, k := range allKernels() {
		for _, pos := range []int{0, 5, 31, 32, 70, 99} {
			text := randomText(rng, "ACGT", 100)
			text[pos] = 'X'
			assert.Equal(t, pos, k.pack2(make([]byte, 25), text), "%s pack2", k.isa)

			text[pos] = 'Z'
			assert.Equal(t, pos, k.pack4(make([]byte, 50), text), "%s pack4", k.isa)
		}
	}
}

func TestPack_Layout(t *testing.T) {
	dst := make([]byte, 2)
	require.Equal(t, -1, pack2Generic(dst, []byte("ACGTu")))
	// A=00 C=01 G=10 T=11 | T=11 padded with zeros
	assert.Equal(t, []byte{0b00011011, 0b11000000}, dst)

	dst4 := make([]byte, 2)
	require.Equal(t, -1, pack4Generic(dst4, []byte("ANg")))
	assert.Equal(t, []byte{0x1F, 0x40}, dst4)
}

func TestTables(t *testing.T) {
	assert.Equal(t, Code4('T'), Code4('U'))
	assert.Equal(t, Code4('n'), Code4('N'))
	assert.Equal(t, byte(Invalid), Code2('N'))
	assert.Equal(t, byte('N'), Letter4(15))
	assert.Equal(t, byte('R'), Letter4(1|4))
	for m := byte(1); m < 16; m++ {
		assert.Equal(t, m, Code4(Letter4(m)))
	}
}

func TestSetISA(t *testing.T) {
	for _, isa := range Available() {
		restore, err := SetISA(isa)
		require.NoError(t, err)
		assert.Equal(t, isa, ActiveISA())
		assert.True(t, IsOverridden())

		dst := make([]byte, 1)
		assert.Equal(t, -1, Pack2(dst, []byte("GATC")))
		assert.Equal(t, []byte{0b10001101}, dst)
		restore()
	}
}

func TestParseISA(t *testing.T) {
	for _, isa := range []ISA{Generic, NEON, SVE2, AVX2, AVX512} {
		got, ok := ParseISA(isa.String())
		require.True(t, ok)
		assert.Equal(t, isa, got)
	}
	got, ok := ParseISA(" Scalar ")
	assert.True(t, ok)
	assert.Equal(t, Generic, got)

	_, ok = ParseISA("sse4")
	assert.False(t, ok)
}
