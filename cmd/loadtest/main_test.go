package main

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestRandomHistogramClearsCutoff(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		h := randomHistogram(rng, 1000)
		var sum, peak float64
		for _, v := range h {
			sum += v
			peak = max(peak, v)
		}
		assert.InDelta(t, 1, sum, 1e-9)
		assert.Greater(t, peak, 2.0/1000)
	}
}

func TestRunLoadTest(t *testing.T) {
	var served atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/stats":
			_ = json.NewEncoder(w).Encode(map[string]any{"index": map[string]any{"visual_words": 16}})
		case "/api/v1/search":
			var req struct {
				Histogram []float64 `json:"histogram"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Histogram) != 16 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			n := served.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}, "cache_hit": n%2 == 0})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newHTTPClient(2)
	words, err := fetchVisualWords(client, srv.URL)
	require.NoError(t, err)
	require.Equal(t, 16, words)

	cfg := Config{BaseURL: srv.URL, Concurrency: 2, Duration: 200 * time.Millisecond, VisualWords: words, Distinct: 3, Limit: 5}
	stats := runLoadTest(client, cfg, queryBodies(cfg, rand.New(rand.NewSource(2))))

	assert.Positive(t, stats.successCount.Load())
	assert.Zero(t, stats.errorCount.Load())
	assert.Positive(t, stats.cacheHits.Load())

	var out bytes.Buffer
	assert.True(t, printReport(&out, stats, cfg.Duration))
	assert.Contains(t, out.String(), "200: ")
	assert.Contains(t, out.String(), "Cache Hit Rate:")
}

func TestPrintReportWithoutRequests(t *testing.T) {
	var out bytes.Buffer
	assert.False(t, printReport(&out, NewStats(), time.Second))
	assert.Contains(t, out.String(), "No requests completed")
}
