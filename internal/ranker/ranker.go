// Package ranker turns a candidate set into an ordered top-N result. Both
// rankers score every candidate with a pluggable comparator and then run a
// bounded-heap selection that honours the comparator's Reversed flag.
package ranker

import (
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
)

// parallelThreshold is the candidate count below which scoring stays on the
// calling goroutine even when workers are configured.
const parallelThreshold = 2048

type ScoredImage struct {
	ImageID string  `json:"image_id"`
	Score   float64 `json:"score"`
}

// Ranker orders candidates by similarity to query and returns at most n of
// them. freq is the index's running mean histogram; rankers that do not
// re-weight ignore it.
type Ranker interface {
	Rank(query histogram.Histogram, items index.CandidateSet, n int, freq []float64) []ScoredImage
}

type candidate struct {
	id   string
	hist histogram.Histogram
}

// scoreAll applies score to every candidate. With workers > 1 and a large
// enough candidate set the work is split into contiguous chunks scored
// concurrently; score must therefore be safe for concurrent use.
func scoreAll(items index.CandidateSet, workers int, score func(histogram.Histogram) float64) []ScoredImage {
	cands := make([]candidate, 0, len(items))
	for id, hist := range items {
		cands = append(cands, candidate{id: id, hist: hist})
	}

	scored := make([]ScoredImage, len(cands))
	if workers <= 1 || len(cands) < parallelThreshold {
		for i, c := range cands {
			scored[i] = ScoredImage{ImageID: c.id, Score: score(c.hist)}
		}
		return scored
	}

	var g errgroup.Group
	g.SetLimit(workers)
	chunk := (len(cands) + workers - 1) / workers
	for start := 0; start < len(cands); start += chunk {
		end := min(start+chunk, len(cands))
		g.Go(func() error {
			for i := start; i < end; i++ {
				scored[i] = ScoredImage{ImageID: cands[i].id, Score: score(cands[i].hist)}
			}
			return nil
		})
	}
	_ = g.Wait()
	return scored
}
