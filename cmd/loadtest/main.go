package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	VisualWords int
	Distinct    int
	Limit       int
	SeedImages  int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the vse service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	visualWords := flag.Int("visual-words", 0, "vocabulary size (0 reads it from /api/v1/stats)")
	distinct := flag.Int("distinct", 50, "number of distinct query histograms")
	limit := flag.Int("limit", 10, "results per query")
	seed := flag.Int("seed-images", 0, "images to add before the run")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		VisualWords: *visualWords,
		Distinct:    *distinct,
		Limit:       *limit,
		SeedImages:  *seed,
	}
	client := newHTTPClient(cfg.Concurrency)

	if cfg.VisualWords == 0 {
		words, err := fetchVisualWords(client, cfg.BaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading vocabulary size: %v\n", err)
			os.Exit(1)
		}
		cfg.VisualWords = words
	}

	fmt.Println("=== Visual Search Load Test ===")
	fmt.Printf("Target:       %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency:  %d\n", cfg.Concurrency)
	fmt.Printf("Duration:     %s\n", cfg.Duration)
	fmt.Printf("Visual words: %d\n", cfg.VisualWords)
	fmt.Printf("Queries:      %d distinct\n", cfg.Distinct)
	fmt.Println()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if cfg.SeedImages > 0 {
		added, err := seedImages(client, cfg, rng)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seeding images: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d images\n\n", added)
	}

	stats := runLoadTest(client, cfg, queryBodies(cfg, rng))
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func newHTTPClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func fetchVisualWords(client *http.Client, baseURL string) (int, error) {
	resp, err := client.Get(baseURL + "/api/v1/stats")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var stats struct {
		Index struct {
			VisualWords int `json:"visual_words"`
		} `json:"index"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, fmt.Errorf("decoding stats: %w", err)
	}
	if stats.Index.VisualWords <= 0 {
		return 0, fmt.Errorf("server reported %d visual words", stats.Index.VisualWords)
	}
	return stats.Index.VisualWords, nil
}

// randomHistogram concentrates most of the mass on a few visual words so the
// histogram clears the inverted index cutoff.
func randomHistogram(rng *rand.Rand, words int) []float64 {
	h := make([]float64, words)
	for i := 0; i < 3; i++ {
		h[rng.Intn(words)] += 10 + rng.Float64()
	}
	for i := 0; i < words/10+1; i++ {
		h[rng.Intn(words)] += rng.Float64()
	}
	var sum float64
	for _, v := range h {
		sum += v
	}
	for i := range h {
		h[i] /= sum
	}
	return h
}

func queryBodies(cfg Config, rng *rand.Rand) [][]byte {
	bodies := make([][]byte, max(cfg.Distinct, 1))
	for i := range bodies {
		bodies[i], _ = json.Marshal(map[string]any{
			"histogram": randomHistogram(rng, cfg.VisualWords),
			"limit":     cfg.Limit,
		})
	}
	return bodies
}

func seedImages(client *http.Client, cfg Config, rng *rand.Rand) (int, error) {
	prefix := fmt.Sprintf("loadtest-%d", time.Now().Unix())
	added := 0
	for i := 0; i < cfg.SeedImages; i++ {
		body, _ := json.Marshal(map[string]any{
			"image_id":  fmt.Sprintf("%s-%d", prefix, i),
			"histogram": randomHistogram(rng, cfg.VisualWords),
		})
		resp, err := client.Post(cfg.BaseURL+"/api/v1/images", "application/json", bytes.NewReader(body))
		if err != nil {
			return added, err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			added++
		}
	}
	return added, nil
}

func runLoadTest(client *http.Client, cfg Config, bodies [][]byte) *Stats {
	stats := NewStats()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		workerID := w
		g.Go(func() error {
			next := workerID
			for ctx.Err() == nil {
				body := bodies[next%len(bodies)]
				next++
				search(ctx, client, cfg.BaseURL, body, stats)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	_ = g.Wait()
	close(done)
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func search(ctx context.Context, client *http.Client, baseURL string, body []byte, stats *Stats) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		stats.RecordRequest(0, 0, false, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.RecordRequest(duration, 0, false, err)
		}
		return
	}
	defer resp.Body.Close()

	var out struct {
		CacheHit bool `json:"cache_hit"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	io.Copy(io.Discard, resp.Body)
	stats.RecordRequest(duration, resp.StatusCode, out.CacheHit, nil)
}

// printReport writes the run summary and reports whether any request
// completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()
	hits := stats.cacheHits.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errors)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errors)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(hits)/float64(success)*100)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Fprintf(w, "P%-2.0f:    %s\n", p, percentile(latencies, p))
		}
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
