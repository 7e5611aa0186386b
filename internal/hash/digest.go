package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Digest accumulates a 64-bit fingerprint. The zero value is not usable;
// call NewDigest.
type Digest struct {
	x   *xxhash.Digest
	buf [8]byte
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{x: xxhash.New()}
}

// Byte adds a single byte, typically a type tag.
func (d *Digest) Byte(b byte) *Digest {
	d.buf[0] = b
	_, _ = d.x.Write(d.buf[:1])
	return d
}

// Bytes adds p verbatim.
func (d *Digest) Bytes(p []byte) *Digest {
	_, _ = d.x.Write(p)
	return d
}

// Uint64 adds v in little-endian order.
func (d *Digest) Uint64(v uint64) *Digest {
	binary.LittleEndian.PutUint64(d.buf[:], v)
	_, _ = d.x.Write(d.buf[:])
	return d
}

// Sum64 returns the fingerprint of everything added so far.
func (d *Digest) Sum64() uint64 { return d.x.Sum64() }

// String returns the fingerprint of s.
func String(s string) uint64 { return xxhash.Sum64String(s) }
