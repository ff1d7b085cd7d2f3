// Package cache memoises similarity results in Redis. Keys include the
// engine's mutation generation, so any add or remove makes older entries
// unreachable without an explicit purge.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/resilience"
)

const keyPrefix = "vse:results:"

// Backend is the key-value store behind the cache; *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. Backend failures trip a circuit breaker, after
// which lookups are skipped and queries go straight to the engine.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	var onChange func(string, resilience.State)
	if m != nil {
		onChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		breaker: resilience.NewCircuitBreaker("result-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange:    onChange,
			IsFailure: func(err error) bool {
				return !errors.Is(err, pkgredis.ErrMiss)
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get looks up the results for (query, limit) at the given generation.
func (c *QueryCache) Get(ctx context.Context, query histogram.Histogram, limit int, generation uint64) ([]ranker.ScoredImage, bool) {
	results, ok := c.lookup(ctx, BuildKey(query, limit, generation))
	if ok {
		c.hit()
	} else {
		c.miss()
	}
	return results, ok
}

func (c *QueryCache) lookup(ctx context.Context, key string) ([]ranker.ScoredImage, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, pkgredis.ErrMiss) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var results []ranker.ScoredImage
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return results, true
}

// Set stores results for (query, limit) at the given generation.
func (c *QueryCache) Set(ctx context.Context, query histogram.Histogram, limit int, generation uint64, results []ranker.ScoredImage) {
	key := BuildKey(query, limit, generation)
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

type flight struct {
	results []ranker.ScoredImage
	cached  bool
}

// GetOrCompute returns cached results or runs computeFn once per key,
// collapsing concurrent identical queries. computeFn runs under a context
// detached from the caller's cancellation because every request waiting on
// the key shares its result.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	query histogram.Histogram,
	limit int,
	generation uint64,
	computeFn func(ctx context.Context) ([]ranker.ScoredImage, error),
) ([]ranker.ScoredImage, bool, error) {
	key := BuildKey(query, limit, generation)
	if results, ok := c.lookup(ctx, key); ok {
		c.hit()
		return results, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		// Another flight may have filled the key since the lookup above.
		if results, ok := c.lookup(shared, key); ok {
			return flight{results: results, cached: true}, nil
		}
		results, err := computeFn(shared)
		if err != nil {
			return nil, err
		}
		c.Set(shared, query, limit, generation, results)
		return flight{results: results}, nil
	})
	if err != nil {
		c.miss()
		return nil, false, err
	}
	f := val.(flight)
	if f.cached {
		c.hit()
	} else {
		c.miss()
	}
	return f.results, f.cached, nil
}

// Purge deletes every cached result. Generations restart at zero with each
// process, so entries left by a previous run must be dropped on start-up.
func (c *QueryCache) Purge(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("purging result cache: %w", err)
	}
	c.logger.Info("cache purged", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the query histogram bytes together with limit and
// generation.
func BuildKey(query histogram.Histogram, limit int, generation uint64) string {
	h := sha256.New()
	h.Write(histogram.Encode(query))
	var tail [16]byte
	binary.LittleEndian.PutUint64(tail[:8], uint64(limit))
	binary.LittleEndian.PutUint64(tail[8:], generation)
	h.Write(tail[:])
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}
