package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// variants runs fn against a fresh instance of every Index implementation.
func variants(t *testing.T, visualWords int, fn func(t *testing.T, idx Index)) {
	t.Helper()
	t.Run("Forward", func(t *testing.T) {
		idx, err := NewForward(visualWords)
		require.NoError(t, err)
		fn(t, idx)
	})
	t.Run("Inverted", func(t *testing.T) {
		idx, err := NewInverted(visualWords, DefaultCutoffRatio)
		require.NoError(t, err)
		fn(t, idx)
	})
}

func TestAddDuplicateFails(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		first := histogram.Histogram{0.9, 0.05, 0.03, 0.02}
		require.NoError(t, idx.Add("a", first))

		err := idx.Add("a", histogram.Histogram{0.1, 0.1, 0.7, 0.1})
		assert.ErrorIs(t, err, apperrors.ErrImageExists)

		got, err := idx.Get("a")
		require.NoError(t, err)
		assert.Equal(t, first, got)
		assert.Equal(t, 1, idx.Len())
		assert.Equal(t, []float64(first), idx.Frequencies())
	})
}

func TestRemoveMissingFails(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		err := idx.Remove("ghost")
		assert.ErrorIs(t, err, apperrors.ErrImageNotFound)

		_, err = idx.Get("ghost")
		assert.ErrorIs(t, err, apperrors.ErrImageNotFound)
	})
}

func TestAddRemoveRestoresState(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	variants(t, 8, func(t *testing.T, idx Index) {
		for i, h := range randomHistograms(rng, 10, 8) {
			h[i%8] = 1
			require.NoError(t, idx.Add(string(rune('a'+i)), h))
		}
		lenBefore := idx.Len()
		freqBefore := idx.Frequencies()

		require.NoError(t, idx.Add("extra", histogram.Histogram{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2}))
		require.NoError(t, idx.Remove("extra"))

		assert.Equal(t, lenBefore, idx.Len())
		assert.InDeltaSlice(t, freqBefore, idx.Frequencies(), 1e-9)
	})
}

func TestFrequenciesTrackMean(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		require.NoError(t, idx.Add("a", histogram.Histogram{0.9, 0.05, 0.03, 0.02}))
		require.NoError(t, idx.Add("b", histogram.Histogram{0.1, 0.1, 0.7, 0.1}))
		assert.InDeltaSlice(t, []float64{0.5, 0.075, 0.365, 0.06}, idx.Frequencies(), 1e-9)

		require.NoError(t, idx.Remove("a"))
		assert.InDeltaSlice(t, []float64{0.1, 0.1, 0.7, 0.1}, idx.Frequencies(), 1e-9)

		require.NoError(t, idx.Remove("b"))
		assert.Nil(t, idx.Frequencies())
		assert.Equal(t, 0, idx.Len())
	})
}

func TestRejectsMalformedHistograms(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		err := idx.Add("short", histogram.Histogram{1, 0})
		assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

		err = idx.Add("negative", histogram.Histogram{1, -0.5, 0, 0})
		assert.ErrorIs(t, err, apperrors.ErrInvalidHistogram)

		_, err = idx.Find(histogram.Histogram{1}, 1)
		assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)

		assert.Equal(t, 0, idx.Len())
		assert.Nil(t, idx.Frequencies())
	})
}

func TestFindOnEmptyIndex(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		items, err := idx.Find(histogram.Histogram{0.8, 0.1, 0.05, 0.05}, 5)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestStoredHistogramsAreIsolated(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		h := histogram.Histogram{0.9, 0.05, 0.03, 0.02}
		require.NoError(t, idx.Add("a", h))
		h[0] = 0

		got, err := idx.Get("a")
		require.NoError(t, err)
		assert.Equal(t, 0.9, got[0])

		got[0] = 0
		again, err := idx.Get("a")
		require.NoError(t, err)
		assert.Equal(t, 0.9, again[0])
	})
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := NewForward(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = NewInverted(-1, 2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = NewInverted(4, -2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSnapshotListsDistinctEntries(t *testing.T) {
	variants(t, 4, func(t *testing.T, idx Index) {
		assert.Empty(t, idx.Snapshot())

		multi := histogram.Histogram{0.6, 0, 0.7, 0}
		require.NoError(t, idx.Add("m", multi))
		require.NoError(t, idx.Add("a", histogram.Histogram{0.9, 0.05, 0.03, 0.02}))

		snap := idx.Snapshot()
		require.Len(t, snap, 2, "an entry stored in several shards appears once")
		assert.Equal(t, "a", snap[0].ImageID)
		assert.Equal(t, "m", snap[1].ImageID)
		assert.Equal(t, multi, snap[1].Histogram)

		snap[1].Histogram[0] = 0
		got, err := idx.Get("m")
		require.NoError(t, err)
		assert.Equal(t, multi, got)
	})
}
