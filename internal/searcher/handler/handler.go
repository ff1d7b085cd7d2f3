// Package handler serves the read side of the image API: similarity search by
// histogram or raw image, histogram lookup and export, and index statistics.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/tracing"
)

// Searcher is the read-only half of *engine.Engine.
type Searcher interface {
	FindSimilarHistogram(ctx context.Context, query histogram.Histogram, n int) ([]ranker.ScoredImage, error)
	Encode(ctx context.Context, image []byte) (histogram.Histogram, error)
	Histogram(id string) (histogram.Histogram, error)
	Generation() uint64
	VisualWords() int
	Frequencies() []float64
	Stats() engine.Stats
	Snapshot() []index.Entry
}

// SearchRequest is the JSON body of POST /api/v1/search.
type SearchRequest struct {
	Histogram []float64 `json:"histogram"`
	Limit     int       `json:"limit"`
}

// SearchResponse carries ranked results, best first.
type SearchResponse struct {
	Results   []ranker.ScoredImage `json:"results"`
	Limit     int                  `json:"limit"`
	CacheHit  bool                 `json:"cache_hit"`
	LatencyMs float64              `json:"latency_ms"`
}

// ImageResponse is returned by GET /api/v1/images/{id}.
type ImageResponse struct {
	ImageID   string    `json:"image_id"`
	Histogram []float64 `json:"histogram"`
}

// ImageListResponse is returned by GET /api/v1/images.
type ImageListResponse struct {
	Images     []ImageResponse `json:"images"`
	Count      int             `json:"count"`
	Generation uint64          `json:"generation"`
}

type Handler struct {
	searcher     Searcher
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	maxBodyBytes int64
	logger       *slog.Logger
}

// New creates a Handler. queryCache and m may be nil.
func New(s Searcher, queryCache *cache.QueryCache, m *metrics.Metrics, defaultLimit, maxResults int, maxBodyBytes int64) *Handler {
	return &Handler{
		searcher:     s,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search handles POST /api/v1/search with a SearchRequest body.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "search", logger.RequestID(r.Context()))
	defer h.finish(ctx, span)

	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateQuery(req.Histogram, h.searcher.VisualWords()); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.clampLimit(req.Limit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(ctx, w, histogram.Histogram(req.Histogram), limit)
}

// SearchImage handles POST /api/v1/search/image?limit=N with raw image bytes.
func (h *Handler) SearchImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "search_image", logger.RequestID(r.Context()))
	defer h.finish(ctx, span)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}
	limit, err := h.clampLimit(limit)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "could not read image body")
		return
	}
	query, err := h.searcher.Encode(ctx, body)
	if err != nil {
		h.writeEngineError(ctx, w, err)
		return
	}
	h.run(ctx, w, query, limit)
}

func (h *Handler) run(ctx context.Context, w http.ResponseWriter, query histogram.Histogram, limit int) {
	start := time.Now()
	log := logger.FromContext(ctx)

	var (
		results  []ranker.ScoredImage
		cacheHit bool
		err      error
	)
	compute := func(ctx context.Context) ([]ranker.ScoredImage, error) {
		return h.searcher.FindSimilarHistogram(ctx, query, limit)
	}
	if h.cache != nil {
		results, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, h.searcher.Generation(), compute)
	} else {
		results, err = compute(ctx)
	}
	if err != nil {
		h.writeEngineError(ctx, w, err)
		return
	}
	if span := tracing.FromContext(ctx); span != nil {
		span.SetAttr("cache_hit", cacheHit)
	}

	elapsed := time.Since(start)
	if h.metrics != nil {
		status := "miss"
		if cacheHit {
			status = "hit"
		} else if h.cache == nil {
			status = "disabled"
		}
		h.metrics.SearchLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	}
	log.Info("similarity search completed",
		"limit", limit,
		"returned", len(results),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Results:   results,
		Limit:     limit,
		CacheHit:  cacheHit,
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
	})
}

// GetImage handles GET /api/v1/images/{id}.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hist, err := h.searcher.Histogram(id)
	if err != nil {
		h.writeEngineError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ImageResponse{ImageID: id, Histogram: hist})
}

// ListImages handles GET /api/v1/images, exporting every indexed image
// sorted by ID.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	generation := h.searcher.Generation()
	entries := h.searcher.Snapshot()
	images := make([]ImageResponse, len(entries))
	for i, entry := range entries {
		images[i] = ImageResponse{ImageID: entry.ImageID, Histogram: entry.Histogram}
	}
	h.writeJSON(w, http.StatusOK, ImageListResponse{Images: images, Count: len(images), Generation: generation})
}

// Stats handles GET /api/v1/stats.
// With ?frequencies=true the mean visual-word frequency vector is included.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"index": h.searcher.Stats()}
	if withFreq, _ := strconv.ParseBool(r.URL.Query().Get("frequencies")); withFreq {
		freq := h.searcher.Frequencies()
		if freq == nil {
			freq = []float64{}
		}
		resp["frequencies"] = freq
	}
	if h.cache != nil {
		hits, misses := h.cache.Stats()
		resp["cache"] = map[string]int64{"hits": hits, "misses": misses}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) finish(ctx context.Context, span *tracing.Span) {
	span.End()
	span.Log(ctx, h.logger)
}

func (h *Handler) clampLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return h.defaultLimit, nil
	case limit < 0:
		return 0, errors.New("limit must be a positive integer")
	case limit > h.maxResults:
		return h.maxResults, nil
	}
	return limit, nil
}

func (h *Handler) writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error("search request failed", "error", err, "status_code", status)
		h.writeError(w, status, "search failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
