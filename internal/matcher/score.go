package matcher

import (
	"math"

	"github.com/heartmarshall/lingualearn/internal/domain"
)

// Attribute weights of the shape similarity score.
const (
	weightArea        = 0.3
	weightCircularity = 0.4
	weightAspect      = 0.3
)

// AttributeScore compares two shape vectors. Each sub-score is clamped to
// [0,1] before weighting, so the result is in [0,1].
func AttributeScore(a, b domain.Attributes) float64 {
	area := 1.0
	if m := math.Max(a.Area, b.Area); m > 0 {
		area = 1 - math.Abs(a.Area-b.Area)/m
	}
	circ := 1 - math.Abs(a.Circularity-b.Circularity)
	aspect := 1 - math.Abs(a.AspectRatio-b.AspectRatio)

	return weightArea*clamp01(area) + weightCircularity*clamp01(circ) + weightAspect*clamp01(aspect)
}

// HashScore converts the Hamming distance between two hashes into a score in
// [0,1]. Equal hashes always match; otherwise the distance must be below
// bound, so it reports false for a distance of bound or more.
func HashScore(a, b domain.PHash, bound int) (float64, bool) {
	d := domain.Hamming(a, b)
	if d != 0 && d >= bound {
		return 0, false
	}
	return 1 - float64(d)/domain.PHashBits, true
}

// Score combines the evidence two signatures share: the better of the
// attribute score and the hash score. It reports false when the signatures
// have no comparable part or the hashes are too far apart and no attributes
// are available.
func Score(query, stored domain.Signature, hammingBound int) (float64, bool) {
	var (
		best float64
		ok   bool
	)
	if query.Attributes != nil && stored.Attributes != nil {
		best, ok = AttributeScore(*query.Attributes, *stored.Attributes), true
	}
	if query.Hash != nil && stored.Hash != nil {
		if s, near := HashScore(*query.Hash, *stored.Hash, hammingBound); near {
			best, ok = math.Max(best, s), true
		}
	}
	return best, ok
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
