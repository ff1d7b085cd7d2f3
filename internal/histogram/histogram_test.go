package histogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

func TestClone(t *testing.T) {
	h := Histogram{1, 2, 3}
	c := h.Clone()
	c[0] = 42
	assert.Equal(t, 1.0, h[0])
	assert.Nil(t, Histogram(nil).Clone())
}

func TestNormalize(t *testing.T) {
	n := Histogram{1, 3, 0, 4}.Normalize()
	assert.InDeltaSlice(t, []float64{0.125, 0.375, 0, 0.5}, []float64(n), 1e-12)
	assert.InDelta(t, 1.0, n.Sum(), 1e-12)

	zero := Histogram{0, 0}.Normalize()
	assert.True(t, math.IsNaN(zero[0]))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Histogram{0, 0.5, 1}.Validate(3))

	err := Histogram{0, 1}.Validate(3)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

	err = Histogram{0, -1, 0}.Validate(3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHistogram)

	err = Histogram{0, math.Inf(1), 0}.Validate(3)
	assert.ErrorIs(t, err, apperrors.ErrInvalidHistogram)
}

func TestEncodeDecode(t *testing.T) {
	h := Histogram{0.9, 0.05, 0.03, 0.02}
	b := Encode(h)
	assert.Len(t, b, 32)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidHistogram)
}
