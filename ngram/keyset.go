package ngram

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/dnagram/internal/hash"
)

// KeySet is a set of n-gram keys backed by a 64-bit Roaring bitmap.
//
// A nil *KeySet is a valid empty set for all read-only methods.
type KeySet struct {
	rb *roaring64.Bitmap
}

// NewKeySet returns a set holding keys.
func NewKeySet(keys ...Key) *KeySet {
	ks := &KeySet{rb: roaring64.New()}
	for _, k := range keys {
		ks.rb.Add(uint64(k))
	}
	return ks
}

func (s *KeySet) bitmap() *roaring64.Bitmap {
	if s == nil || s.rb == nil {
		return roaring64.New()
	}
	return s.rb
}

// Add inserts a key.
func (s *KeySet) Add(k Key) {
	if s.rb == nil {
		s.rb = roaring64.New()
	}
	s.rb.Add(uint64(k))
}

// Remove deletes a key.
func (s *KeySet) Remove(k Key) {
	if s.rb != nil {
		s.rb.Remove(uint64(k))
	}
}

// Contains reports whether k is in the set.
func (s *KeySet) Contains(k Key) bool {
	return s != nil && s.rb != nil && s.rb.Contains(uint64(k))
}

// Len returns the number of keys.
func (s *KeySet) Len() int {
	if s == nil || s.rb == nil {
		return 0
	}
	return int(s.rb.GetCardinality())
}

// IsEmpty reports whether the set has no keys.
func (s *KeySet) IsEmpty() bool { return s.Len() == 0 }

// AndLen returns |s ∩ o| without materializing the intersection.
func (s *KeySet) AndLen(o *KeySet) int {
	if s.IsEmpty() || o.IsEmpty() {
		return 0
	}
	return int(s.rb.AndCardinality(o.rb))
}

// And returns s ∩ o as a new set.
func (s *KeySet) And(o *KeySet) *KeySet {
	rb := s.bitmap().Clone()
	rb.And(o.bitmap())
	return &KeySet{rb: rb}
}

// AndNot returns s - o as a new set.
func (s *KeySet) AndNot(o *KeySet) *KeySet {
	rb := s.bitmap().Clone()
	if !o.IsEmpty() {
		rb.AndNot(o.rb)
	}
	return &KeySet{rb: rb}
}

// Or adds every key of o to s.
func (s *KeySet) Or(o *KeySet) {
	if o.IsEmpty() {
		return
	}
	if s.rb == nil {
		s.rb = roaring64.New()
	}
	s.rb.Or(o.rb)
}

// Clone returns a deep copy.
func (s *KeySet) Clone() *KeySet {
	return &KeySet{rb: s.bitmap().Clone()}
}

// Equal reports whether both sets hold the same keys.
func (s *KeySet) Equal(o *KeySet) bool {
	n := s.Len()
	return n == o.Len() && s.AndLen(o) == n
}

// StripOccurrence returns a new set with the occurrence field of every key
// cleared, so that keys compare by k-mer alone.
func (s *KeySet) StripOccurrence(l Layout) *KeySet {
	if l.occBits == 0 {
		return s.Clone()
	}
	out := NewKeySet()
	for k := range s.All() {
		out.rb.Add(uint64(l.StripOccurrence(k)))
	}
	return out
}

// All iterates keys in ascending order.
func (s *KeySet) All() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		if s == nil || s.rb == nil {
			return
		}
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(Key(it.Next())) {
				return
			}
		}
	}
}

// Keys returns the keys in ascending order.
func (s *KeySet) Keys() []Key {
	out := make([]Key, 0, s.Len())
	for k := range s.All() {
		out = append(out, k)
	}
	return out
}

// Fingerprint returns a 64-bit hash of the set's contents. Equal sets have
// equal fingerprints; the empty set hashes to 0.
func (s *KeySet) Fingerprint() uint64 {
	if s.IsEmpty() {
		return 0
	}
	d := hash.NewDigest()
	for k := range s.All() {
		d.Uint64(uint64(k))
	}
	return d.Sum64()
}

// SizeInBytes returns the serialized size of the set.
func (s *KeySet) SizeInBytes() uint64 {
	return s.bitmap().GetSizeInBytes()
}

// MarshalBinary returns the portable Roaring serialization.
func (s *KeySet) MarshalBinary() ([]byte, error) {
	return s.bitmap().MarshalBinary()
}

// UnmarshalBinary replaces the set with a serialized one.
func (s *KeySet) UnmarshalBinary(data []byte) error {
	rb := roaring64.New()
	if err := rb.UnmarshalBinary(data); err != nil {
		return err
	}
	s.rb = rb
	return nil
}
