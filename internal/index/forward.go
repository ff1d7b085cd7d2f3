package index

import (
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// Forward is a flat image ID to histogram map. Find returns every entry, so
// ranking scans the whole collection.
type Forward struct {
	entries     map[string]histogram.Histogram
	freq        FrequencyTracker
	visualWords int
}

func NewForward(visualWords int) (*Forward, error) {
	if visualWords <= 0 {
		return nil, fmt.Errorf("%w: vocabulary size must be positive, got %d", apperrors.ErrInvalidInput, visualWords)
	}
	return &Forward{
		entries:     make(map[string]histogram.Histogram),
		visualWords: visualWords,
	}, nil
}

func (f *Forward) Add(id string, hist histogram.Histogram) error {
	if err := hist.Validate(f.visualWords); err != nil {
		return fmt.Errorf("adding image %q: %w", id, err)
	}
	if _, exists := f.entries[id]; exists {
		return fmt.Errorf("adding image %q: %w", id, apperrors.ErrImageExists)
	}
	stored := hist.Clone()
	f.entries[id] = stored
	f.freq.OnAdd(stored)
	return nil
}

func (f *Forward) Remove(id string) error {
	hist, exists := f.entries[id]
	if !exists {
		return fmt.Errorf("removing image %q: %w", id, apperrors.ErrImageNotFound)
	}
	delete(f.entries, id)
	f.freq.OnRemove(hist)
	return nil
}

func (f *Forward) Get(id string) (histogram.Histogram, error) {
	hist, exists := f.entries[id]
	if !exists {
		return nil, fmt.Errorf("getting image %q: %w", id, apperrors.ErrImageNotFound)
	}
	return hist.Clone(), nil
}

func (f *Forward) Len() int {
	return len(f.entries)
}

func (f *Forward) Find(query histogram.Histogram, n int) (CandidateSet, error) {
	if len(query) != f.visualWords {
		return nil, fmt.Errorf("finding candidates: %w: expected %d, got %d",
			apperrors.ErrDimensionMismatch, f.visualWords, len(query))
	}
	result := make(CandidateSet, len(f.entries))
	for id, hist := range f.entries {
		result[id] = hist
	}
	return result, nil
}

func (f *Forward) Frequencies() []float64 {
	return f.freq.Vector()
}

func (f *Forward) VisualWords() int {
	return f.visualWords
}

// Snapshot returns every entry sorted by image ID.
func (f *Forward) Snapshot() []Entry {
	entries := make([]Entry, 0, len(f.entries))
	for id, hist := range f.entries {
		entries = append(entries, Entry{ImageID: id, Histogram: hist.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ImageID < entries[j].ImageID
	})
	return entries
}
