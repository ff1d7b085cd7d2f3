package ranker

import (
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
)

// Simple scores each candidate directly against the query, without any
// re-weighting.
type Simple struct {
	comparator comparator.Comparator
	workers    int
}

func NewSimple(cmp comparator.Comparator, workers int) *Simple {
	return &Simple{comparator: cmp, workers: workers}
}

func (s *Simple) Rank(query histogram.Histogram, items index.CandidateSet, n int, _ []float64) []ScoredImage {
	if len(items) == 0 || n <= 0 {
		return []ScoredImage{}
	}
	scored := scoreAll(items, s.workers, func(hist histogram.Histogram) float64 {
		return s.comparator.Compare(hist, query)
	})
	return TopN(scored, n, s.comparator.Reversed())
}

func (s *Simple) Comparator() comparator.Comparator {
	return s.comparator
}
