package ranker

import (
	"container/heap"
	"math"
)

// TopN selects the n most favourable entries of scored. When reversed is
// true higher scores win, otherwise lower scores win. Equal scores are
// ordered by ascending image ID and NaN scores always rank last. The
// selection keeps a bounded heap of size n, so it costs O(M log n) for M
// candidates.
func TopN(scored []ScoredImage, n int, reversed bool) []ScoredImage {
	if n <= 0 || len(scored) == 0 {
		return []ScoredImage{}
	}
	h := &worstFirstHeap{reversed: reversed}
	heap.Init(h)
	for _, s := range scored {
		if h.Len() < n {
			heap.Push(h, s)
			continue
		}
		if h.worse(h.items[0], s) {
			h.items[0] = s
			heap.Fix(h, 0)
		}
	}
	result := make([]ScoredImage, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ScoredImage)
	}
	return result
}

// worstFirstHeap keeps the least favourable kept entry at the root so it can
// be evicted in O(log n).
type worstFirstHeap struct {
	items    []ScoredImage
	reversed bool
}

// worse reports whether a ranks below b.
func (h *worstFirstHeap) worse(a, b ScoredImage) bool {
	aNaN, bNaN := math.IsNaN(a.Score), math.IsNaN(b.Score)
	switch {
	case aNaN && bNaN:
		return a.ImageID > b.ImageID
	case aNaN:
		return true
	case bNaN:
		return false
	}
	if a.Score != b.Score {
		if h.reversed {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	return a.ImageID > b.ImageID
}

func (h *worstFirstHeap) Len() int { return len(h.items) }

func (h *worstFirstHeap) Less(i, j int) bool { return h.worse(h.items[i], h.items[j]) }

func (h *worstFirstHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *worstFirstHeap) Push(x any) {
	h.items = append(h.items, x.(ScoredImage))
}

func (h *worstFirstHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
