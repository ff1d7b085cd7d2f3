// Package histogram defines the visual-word frequency histogram consumed by
// the index and ranking layers, along with the small vector helpers both
// rely on.
package histogram

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// Histogram holds one non-negative frequency per visual word. Its length is
// the vocabulary size of the index it belongs to.
type Histogram []float64

// Clone returns an independent copy of h.
func (h Histogram) Clone() Histogram {
	if h == nil {
		return nil
	}
	out := make(Histogram, len(h))
	copy(out, h)
	return out
}

func (h Histogram) Sum() float64 {
	var s float64
	for _, v := range h {
		s += v
	}
	return s
}

// Normalize returns h scaled so its components sum to 1. The zero vector
// yields NaN components.
func (h Histogram) Normalize() Histogram {
	s := h.Sum()
	out := make(Histogram, len(h))
	for i, v := range h {
		out[i] = v / s
	}
	return out
}

// Validate checks that h has exactly visualWords components and that every
// component is a finite, non-negative number.
func (h Histogram) Validate(visualWords int) error {
	if len(h) != visualWords {
		return fmt.Errorf("%w: expected %d, got %d", apperrors.ErrDimensionMismatch, visualWords, len(h))
	}
	for i, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is not finite", apperrors.ErrInvalidHistogram, i)
		}
		if v < 0 {
			return fmt.Errorf("%w: component %d is negative (%g)", apperrors.ErrInvalidHistogram, i, v)
		}
	}
	return nil
}

// Encode serialises h as a little-endian sequence of IEEE 754 float64
// values with no length prefix.
func Encode(h Histogram) []byte {
	b := make([]byte, len(h)*8)
	for i, v := range h {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

// Decode parses a blob produced by Encode.
func Decode(b []byte) (Histogram, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of 8", apperrors.ErrInvalidHistogram, len(b))
	}
	h := make(Histogram, len(b)/8)
	for i := range h {
		h[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return h, nil
}
