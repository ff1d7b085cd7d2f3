// Package engine glues an image encoder, an index, a ranker and an optional
// persistent store into the search service's single point of mutation.
//
// The index and ranker packages do no locking of their own; Engine holds the
// one RWMutex that serialises writers and lets queries run concurrently.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/tracing"
)

// DefaultLimit is the number of results returned when the caller does not
// ask for a specific count.
const DefaultLimit = 1

// Encoder turns raw image bytes into a bag-of-visual-words histogram.
type Encoder interface {
	Encode(ctx context.Context, image []byte) (histogram.Histogram, error)
}

// Store persists histograms so the index can be rebuilt after a restart.
type Store interface {
	Save(ctx context.Context, id string, hist histogram.Histogram) error
	Delete(ctx context.Context, id string) error
}

// Options carries the optional collaborators. Zero values disable the
// corresponding feature.
type Options struct {
	Encoder Encoder
	Store   Store
	Metrics *metrics.Metrics
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	Images      int     `json:"images"`
	VisualWords int     `json:"visual_words"`
	IndexKind   string  `json:"index_kind"`
	Cutoff      float64 `json:"cutoff,omitempty"`
	Generation  uint64  `json:"generation"`
	ShardSizes  []int   `json:"shard_sizes,omitempty"`
	Ranker      string  `json:"ranker"`
	Comparator  string  `json:"comparator,omitempty"`
	Encoder     bool    `json:"encoder"`
}

type Engine struct {
	mu         sync.RWMutex
	idx        index.Index
	ranker     ranker.Ranker
	encoder    Encoder
	store      Store
	metrics    *metrics.Metrics
	generation uint64
	logger     *slog.Logger
}

func New(idx index.Index, rk ranker.Ranker, opts Options) *Engine {
	return &Engine{
		idx:     idx,
		ranker:  rk,
		encoder: opts.Encoder,
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  slog.Default().With("component", "engine"),
	}
}

// AddImage encodes image and indexes the result under id.
func (e *Engine) AddImage(ctx context.Context, id string, image []byte) error {
	hist, err := e.Encode(ctx, image)
	if err != nil {
		return err
	}
	return e.AddHistogram(ctx, id, hist)
}

// AddHistogram indexes hist under id and writes it through to the store.
// A failed store write undoes the index insert.
func (e *Engine) AddHistogram(ctx context.Context, id string, hist histogram.Histogram) error {
	if id == "" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "image id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.idx.Add(id, hist); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.Save(ctx, id, hist); err != nil {
			if rbErr := e.idx.Remove(id); rbErr != nil {
				e.logger.Error("rollback after failed save", "image_id", id, "error", rbErr)
			}
			return fmt.Errorf("persisting image %q: %w", id, err)
		}
	}
	e.generation++
	if e.metrics != nil {
		e.metrics.ImagesIndexedTotal.Inc()
		e.metrics.IndexedImages.Set(float64(e.idx.Len()))
	}
	e.logger.Debug("image indexed", "image_id", id, "images", e.idx.Len())
	return nil
}

// RemoveImage drops id from the index and the store. A failed store delete
// puts the histogram back.
func (e *Engine) RemoveImage(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist, err := e.idx.Get(id)
	if err != nil {
		return err
	}
	if err := e.idx.Remove(id); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.Delete(ctx, id); err != nil {
			if rbErr := e.idx.Add(id, hist); rbErr != nil {
				e.logger.Error("rollback after failed delete", "image_id", id, "error", rbErr)
			}
			return fmt.Errorf("deleting image %q from store: %w", id, err)
		}
	}
	e.generation++
	if e.metrics != nil {
		e.metrics.ImagesRemovedTotal.Inc()
		e.metrics.IndexedImages.Set(float64(e.idx.Len()))
	}
	e.logger.Debug("image removed", "image_id", id, "images", e.idx.Len())
	return nil
}

// FindSimilar encodes image and returns up to n of the most similar indexed
// images, best first.
func (e *Engine) FindSimilar(ctx context.Context, image []byte, n int) ([]ranker.ScoredImage, error) {
	query, err := e.Encode(ctx, image)
	if err != nil {
		return nil, err
	}
	return e.FindSimilarHistogram(ctx, query, n)
}

// FindSimilarHistogram ranks the index against an already encoded query.
// n <= 0 yields an empty result.
func (e *Engine) FindSimilarHistogram(ctx context.Context, query histogram.Histogram, n int) ([]ranker.ScoredImage, error) {
	start := time.Now()
	if n <= 0 {
		return []ranker.ScoredImage{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	_, findSpan := tracing.StartChildSpan(ctx, "index.find")
	candidates, err := e.idx.Find(query, n)
	findSpan.SetAttr("candidates", len(candidates))
	findSpan.End()
	if err != nil {
		e.mu.RUnlock()
		e.observeQuery("error", start, 0, 0)
		return nil, err
	}
	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	results := e.ranker.Rank(query, candidates, n, e.idx.Frequencies())
	rankSpan.SetAttr("results", len(results))
	rankSpan.End()
	e.mu.RUnlock()

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	e.observeQuery(resultType, start, len(candidates), len(results))
	return results, nil
}

// Histogram returns a copy of the histogram stored under id.
func (e *Engine) Histogram(id string) (histogram.Histogram, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Get(id)
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Len()
}

// Frequencies returns the mean visual-word frequency vector.
func (e *Engine) Frequencies() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Frequencies()
}

func (e *Engine) VisualWords() int {
	return e.idx.VisualWords()
}

// Generation counts successful mutations. Result caches key on it so that
// any add or remove invalidates earlier answers.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Stats summarises the index and refreshes the per-shard gauges.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{
		Images:      e.idx.Len(),
		VisualWords: e.idx.VisualWords(),
		IndexKind:   "forward",
		Generation:  e.generation,
		Ranker:      rankerKind(e.ranker),
		Encoder:     e.HasEncoder(),
	}
	if rk, ok := e.ranker.(interface{ Comparator() comparator.Comparator }); ok {
		s.Comparator = rk.Comparator().Name()
	}
	if inv, ok := e.idx.(*index.Inverted); ok {
		s.IndexKind = "inverted"
		s.Cutoff = inv.Cutoff()
		s.ShardSizes = inv.ShardSizes()
		if e.metrics != nil {
			for k, size := range s.ShardSizes {
				e.metrics.ShardImageCount.WithLabelValues(strconv.Itoa(k)).Set(float64(size))
			}
		}
	}
	return s
}

func rankerKind(rk ranker.Ranker) string {
	switch rk.(type) {
	case *ranker.Simple:
		return config.RankerSimple
	case *ranker.Weighting:
		return config.RankerWeighting
	default:
		return fmt.Sprintf("%T", rk)
	}
}

// Snapshot copies every indexed entry, sorted by image ID. Feeding the
// result to Restore on an empty engine rebuilds an equivalent index.
func (e *Engine) Snapshot() []index.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idx.Snapshot()
}

// Restore loads previously persisted entries straight into the index without
// writing them back to the store. Entries the index rejects (for example
// after a vocabulary change) are logged and skipped.
func (e *Engine) Restore(entries []index.Entry) (loaded int, skipped int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range entries {
		if err := e.idx.Add(entry.ImageID, entry.Histogram); err != nil {
			e.logger.Warn("skipping stored image", "image_id", entry.ImageID, "error", err)
			skipped++
			continue
		}
		loaded++
	}
	if loaded > 0 {
		e.generation++
	}
	if e.metrics != nil {
		e.metrics.IndexedImages.Set(float64(e.idx.Len()))
	}
	e.logger.Info("index restored", "loaded", loaded, "skipped", skipped)
	return loaded, skipped
}

// HasEncoder reports whether raw-image operations are available.
func (e *Engine) HasEncoder() bool {
	return e.encoder != nil
}

// Encode runs image through the configured encoder without touching the
// index.
func (e *Engine) Encode(ctx context.Context, image []byte) (histogram.Histogram, error) {
	if e.encoder == nil {
		return nil, apperrors.New(apperrors.ErrEncoderUnavailable, http.StatusServiceUnavailable, "no image encoder configured")
	}
	if len(image) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "image body is empty")
	}
	ctx, span := tracing.StartChildSpan(ctx, "encode")
	span.SetAttr("bytes", len(image))
	hist, err := e.encoder.Encode(ctx, image)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return hist, nil
}

func (e *Engine) observeQuery(resultType string, start time.Time, candidates, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues("computed").Observe(time.Since(start).Seconds())
	e.metrics.CandidateSetSize.Observe(float64(candidates))
	e.metrics.SearchResultsCount.Observe(float64(results))
}
