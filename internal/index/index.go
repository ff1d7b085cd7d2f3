// Package index stores visual-word histograms keyed by image ID and produces
// the candidate sets handed to a ranker. Two variants are provided: Forward,
// a flat map that returns every entry, and Inverted, which shards entries by
// significant visual word so queries only touch images sharing one with the
// query.
//
// Index implementations are single-writer data structures with no internal
// locking. Concurrent reads are safe; mutations must be serialised by the
// caller and must not overlap reads.
package index

import (
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
)

// CandidateSet maps image IDs to their stored histograms. The histograms are
// shared with the index and must be treated as read-only.
type CandidateSet map[string]histogram.Histogram

// Index is the contract shared by the Forward and Inverted variants.
type Index interface {
	// Add stores hist under id. It fails with ErrImageExists when id is
	// already present and leaves the index untouched on any error.
	Add(id string, hist histogram.Histogram) error
	// Remove deletes id. It fails with ErrImageNotFound when id is absent.
	Remove(id string) error
	// Get returns a copy of the histogram stored under id.
	Get(id string) (histogram.Histogram, error)
	// Len reports the number of distinct image IDs stored.
	Len() int
	// Find returns the candidates relevant to query. It does not rank.
	Find(query histogram.Histogram, n int) (CandidateSet, error)
	// Frequencies returns a copy of the running mean histogram, or nil when
	// the index is empty.
	Frequencies() []float64
	// VisualWords reports the configured vocabulary size.
	VisualWords() int
	// Snapshot returns a copy of every entry sorted by image ID.
	Snapshot() []Entry
}

// Entry is one stored (image ID, histogram) pair. Snapshots export entries
// and Restore replays them.
type Entry struct {
	ImageID   string
	Histogram histogram.Histogram
}
