package ranker

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
)

// WeightFunc re-weights a histogram given the collection's mean visual-word
// frequencies.
type WeightFunc func(hist histogram.Histogram, freq []float64) histogram.Histogram

// TFIDF multiplies each component by -log(freq[k]) so that visual words
// common across the collection contribute less. A zero frequency yields a
// zero weight rather than an infinite one.
func TFIDF(hist histogram.Histogram, freq []float64) histogram.Histogram {
	out := make(histogram.Histogram, len(hist))
	for k, v := range hist {
		if k >= len(freq) || freq[k] == 0 {
			continue
		}
		out[k] = v * -math.Log(freq[k])
	}
	return out
}

// Weighting applies a WeightFunc to the query and to every candidate,
// normalises both to unit sum, and compares the results.
type Weighting struct {
	comparator comparator.Comparator
	weight     WeightFunc
	workers    int
}

// NewWeighting builds a Weighting ranker. A nil weight selects TFIDF.
func NewWeighting(cmp comparator.Comparator, weight WeightFunc, workers int) *Weighting {
	if weight == nil {
		weight = TFIDF
	}
	return &Weighting{comparator: cmp, weight: weight, workers: workers}
}

func (w *Weighting) Rank(query histogram.Histogram, items index.CandidateSet, n int, freq []float64) []ScoredImage {
	if len(items) == 0 || n <= 0 {
		return []ScoredImage{}
	}
	weightedQuery := w.weight(query, freq).Normalize()
	scored := scoreAll(items, w.workers, func(hist histogram.Histogram) float64 {
		return w.comparator.Compare(w.weight(hist, freq).Normalize(), weightedQuery)
	})
	return TopN(scored, n, w.comparator.Reversed())
}

func (w *Weighting) Comparator() comparator.Comparator {
	return w.comparator
}
