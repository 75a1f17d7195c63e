package domain

import (
	"fmt"
	"math/bits"
	"strings"
)

// PHashBits is the length of a perceptual hash in bits (an 8x8 coefficient grid).
const PHashBits = 64

// PHash is a 64-bit perceptual hash. Bit 63 corresponds to the top-left
// coefficient of the grid, bit 0 to the bottom-right one.
type PHash uint64

// String renders the hash as a 64-character string of '0' and '1', the
// representation stored in the image_hash column.
func (h PHash) String() string {
	var b strings.Builder
	b.Grow(PHashBits)
	for i := PHashBits - 1; i >= 0; i-- {
		if h&(1<<uint(i)) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParsePHash parses the bit-string form produced by PHash.String.
func ParsePHash(s string) (PHash, error) {
	if len(s) != PHashBits {
		return 0, fmt.Errorf("phash: want %d bits, got %d", PHashBits, len(s))
	}
	var h PHash
	for i := 0; i < PHashBits; i++ {
		h <<= 1
		switch s[i] {
		case '1':
			h |= 1
		case '0':
		default:
			return 0, fmt.Errorf("phash: invalid character %q at %d", s[i], i)
		}
	}
	return h, nil
}

// Hamming returns the number of differing bits between two hashes.
func Hamming(a, b PHash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Attributes is the shape vector of a segmented object.
type Attributes struct {
	Area        float64
	Perimeter   float64
	Circularity float64
	AspectRatio float64
}

// Signature summarizes an object's visual appearance for matching.
// Either part may be absent; a signature with neither carries no evidence.
type Signature struct {
	Hash       *PHash
	Attributes *Attributes
}

// IsZero reports whether the signature carries neither a hash nor attributes.
func (s Signature) IsZero() bool {
	return s.Hash == nil && s.Attributes == nil
}

// HashString returns the bit-string form of the hash, or "" when absent.
func (s Signature) HashString() string {
	if s.Hash == nil {
		return ""
	}
	return s.Hash.String()
}
