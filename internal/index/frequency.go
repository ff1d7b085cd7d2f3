package index

import (
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
)

// FrequencyTracker maintains the per-visual-word arithmetic mean over every
// histogram currently indexed. Each update is O(V); the mean is never
// recomputed by rescanning, so long add/remove sequences accumulate a small
// amount of floating-point drift.
type FrequencyTracker struct {
	freq  []float64
	count int
}

// OnAdd folds hist into the running mean.
func (t *FrequencyTracker) OnAdd(hist histogram.Histogram) {
	if t.count == 0 {
		t.freq = hist.Clone()
		t.count = 1
		return
	}
	n := float64(t.count)
	for k, v := range hist {
		t.freq[k] = (t.freq[k]*n + v) / (n + 1)
	}
	t.count++
}

// OnRemove takes hist back out of the running mean. hist must be a
// histogram previously passed to OnAdd; removing from an empty tracker is a
// programming error and panics.
func (t *FrequencyTracker) OnRemove(hist histogram.Histogram) {
	if t.count <= 0 {
		panic("index: FrequencyTracker.OnRemove called on empty tracker")
	}
	t.count--
	if t.count == 0 {
		t.freq = nil
		return
	}
	n := float64(t.count)
	for k, v := range hist {
		t.freq[k] = (t.freq[k]*(n+1) - v) / n
	}
}

// Vector returns a copy of the current mean, or nil when nothing is tracked.
func (t *FrequencyTracker) Vector() []float64 {
	if t.count == 0 {
		return nil
	}
	out := make([]float64, len(t.freq))
	copy(out, t.freq)
	return out
}

func (t *FrequencyTracker) Count() int {
	return t.count
}
