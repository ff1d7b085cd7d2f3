package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// DefaultCutoffRatio is the cutoff ratio used when none is configured. The
// effective cutoff is the ratio divided by the vocabulary size, i.e. twice
// the frequency a visual word would have in a uniform histogram.
const DefaultCutoffRatio = 2.0

// Inverted keeps one shard per visual word. An image is stored, as a full
// histogram, in every shard whose word frequency exceeds the cutoff; a query
// only considers the shards of its own significant words.
type Inverted struct {
	shards      []map[string]histogram.Histogram
	freq        FrequencyTracker
	size        int
	cutoff      float64
	visualWords int
}

func NewInverted(visualWords int, cutoffRatio float64) (*Inverted, error) {
	if visualWords <= 0 {
		return nil, fmt.Errorf("%w: vocabulary size must be positive, got %d", apperrors.ErrInvalidInput, visualWords)
	}
	if cutoffRatio < 0 || math.IsNaN(cutoffRatio) || math.IsInf(cutoffRatio, 0) {
		return nil, fmt.Errorf("%w: cutoff ratio must be a finite non-negative number, got %g", apperrors.ErrInvalidInput, cutoffRatio)
	}
	shards := make([]map[string]histogram.Histogram, visualWords)
	for k := range shards {
		shards[k] = make(map[string]histogram.Histogram)
	}
	return &Inverted{
		shards:      shards,
		cutoff:      cutoffRatio / float64(visualWords),
		visualWords: visualWords,
	}, nil
}

// Add stores hist in every shard where it exceeds the cutoff. Histograms
// with no component above the cutoff could never be returned by Find, so
// they are rejected with ErrUnreachableImage instead of being stored.
func (inv *Inverted) Add(id string, hist histogram.Histogram) error {
	if err := hist.Validate(inv.visualWords); err != nil {
		return fmt.Errorf("adding image %q: %w", id, err)
	}
	words := inv.significantWords(hist)
	if len(words) == 0 {
		return fmt.Errorf("adding image %q: %w (cutoff %g)", id, apperrors.ErrUnreachableImage, inv.cutoff)
	}
	for _, shard := range inv.shards {
		if _, exists := shard[id]; exists {
			return fmt.Errorf("adding image %q: %w", id, apperrors.ErrImageExists)
		}
	}
	stored := hist.Clone()
	for _, k := range words {
		inv.shards[k][id] = stored
	}
	inv.freq.OnAdd(stored)
	inv.size++
	return nil
}

func (inv *Inverted) Remove(id string) error {
	var stored histogram.Histogram
	for _, shard := range inv.shards {
		if hist, exists := shard[id]; exists {
			stored = hist
			delete(shard, id)
		}
	}
	if stored == nil {
		return fmt.Errorf("removing image %q: %w", id, apperrors.ErrImageNotFound)
	}
	inv.freq.OnRemove(stored)
	inv.size--
	return nil
}

func (inv *Inverted) Get(id string) (histogram.Histogram, error) {
	for _, shard := range inv.shards {
		if hist, exists := shard[id]; exists {
			return hist.Clone(), nil
		}
	}
	return nil, fmt.Errorf("getting image %q: %w", id, apperrors.ErrImageNotFound)
}

// Len counts distinct image IDs, not shard entries; one image usually lives
// in several shards.
func (inv *Inverted) Len() int {
	return inv.size
}

// Find unions the shards of every visual word where query exceeds the
// cutoff. Images sharing no significant word with the query are never
// returned.
func (inv *Inverted) Find(query histogram.Histogram, n int) (CandidateSet, error) {
	if len(query) != inv.visualWords {
		return nil, fmt.Errorf("finding candidates: %w: expected %d, got %d",
			apperrors.ErrDimensionMismatch, inv.visualWords, len(query))
	}
	result := make(CandidateSet)
	for _, k := range inv.significantWords(query) {
		for id, hist := range inv.shards[k] {
			if _, exists := result[id]; !exists {
				result[id] = hist
			}
		}
	}
	return result, nil
}

func (inv *Inverted) Frequencies() []float64 {
	return inv.freq.Vector()
}

func (inv *Inverted) VisualWords() int {
	return inv.visualWords
}

// Cutoff returns the per-word frequency threshold, cutoffRatio / V.
func (inv *Inverted) Cutoff() float64 {
	return inv.cutoff
}

// ShardSizes returns the number of images stored in each visual-word shard.
func (inv *Inverted) ShardSizes() []int {
	sizes := make([]int, len(inv.shards))
	for k, shard := range inv.shards {
		sizes[k] = len(shard)
	}
	return sizes
}

// Snapshot returns every distinct entry sorted by image ID.
func (inv *Inverted) Snapshot() []Entry {
	seen := make(map[string]histogram.Histogram)
	for _, shard := range inv.shards {
		for id, hist := range shard {
			seen[id] = hist
		}
	}
	entries := make([]Entry, 0, len(seen))
	for id, hist := range seen {
		entries = append(entries, Entry{ImageID: id, Histogram: hist.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ImageID < entries[j].ImageID
	})
	return entries
}

func (inv *Inverted) significantWords(hist histogram.Histogram) []int {
	words := make([]int, 0, 4)
	for k, v := range hist {
		if v > inv.cutoff {
			words = append(words, k)
		}
	}
	return words
}
