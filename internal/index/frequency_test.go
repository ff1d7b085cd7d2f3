package index

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
)

func randomHistograms(rng *rand.Rand, count, visualWords int) []histogram.Histogram {
	out := make([]histogram.Histogram, count)
	for i := range out {
		h := make(histogram.Histogram, visualWords)
		for k := range h {
			h[k] = rng.Float64()
		}
		out[i] = h
	}
	return out
}

func TestFrequencyTrackerMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	hists := randomHistograms(rng, 200, 16)

	var tracker FrequencyTracker
	for _, h := range hists {
		tracker.OnAdd(h)
	}

	want := make([]float64, 16)
	for _, h := range hists {
		for k, v := range h {
			want[k] += v / float64(len(hists))
		}
	}
	assert.Equal(t, 200, tracker.Count())
	assert.InDeltaSlice(t, want, tracker.Vector(), 1e-9)
}

func TestFrequencyTrackerAddRemoveSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	hists := randomHistograms(rng, 20, 8)

	var tracker FrequencyTracker
	for _, h := range hists[:19] {
		tracker.OnAdd(h)
	}
	before := tracker.Vector()

	tracker.OnAdd(hists[19])
	tracker.OnRemove(hists[19])

	assert.Equal(t, 19, tracker.Count())
	assert.InDeltaSlice(t, before, tracker.Vector(), 1e-9)
}

func TestFrequencyTrackerEmpties(t *testing.T) {
	var tracker FrequencyTracker
	assert.Nil(t, tracker.Vector())

	h := histogram.Histogram{0.5, 0.5}
	tracker.OnAdd(h)
	h[0] = 99
	assert.Equal(t, []float64{0.5, 0.5}, tracker.Vector(), "tracker must not alias the added histogram")

	tracker.OnRemove(histogram.Histogram{0.5, 0.5})
	assert.Equal(t, 0, tracker.Count())
	assert.Nil(t, tracker.Vector())
}

func TestFrequencyTrackerRemoveFromEmptyPanics(t *testing.T) {
	var tracker FrequencyTracker
	assert.Panics(t, func() {
		tracker.OnRemove(histogram.Histogram{1})
	})
}
