package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	pkgredis "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/redis"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
	gets atomic.Int64
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrMiss
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var q = histogram.Histogram{0.8, 0.1, 0.05, 0.05}

func TestBuildKey(t *testing.T) {
	base := BuildKey(q, 5, 1)
	assert.True(t, strings.HasPrefix(base, keyPrefix))
	assert.Equal(t, base, BuildKey(q.Clone(), 5, 1))
	assert.NotEqual(t, base, BuildKey(q, 6, 1))
	assert.NotEqual(t, base, BuildKey(q, 5, 2))
	assert.NotEqual(t, base, BuildKey(histogram.Histogram{0.8, 0.1, 0.05, 0.0500001}, 5, 1))
}

func TestGetOrCompute(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	want := []ranker.ScoredImage{{ImageID: "a", Score: 0.9}}
	var computed atomic.Int64
	compute := func(context.Context) ([]ranker.ScoredImage, error) {
		computed.Add(1)
		return want, nil
	}
	ctx := context.Background()

	got, hit, err := c.GetOrCompute(ctx, q, 1, 7, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(ctx, q, 1, 7, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(1), computed.Load())

	_, hit, _ = c.GetOrCompute(ctx, q, 1, 8, compute)
	assert.False(t, hit, "a new generation misses")
	assert.Equal(t, int64(2), computed.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), q, 1, 0, func(context.Context) ([]ranker.ScoredImage, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), q, 1, 0)
	assert.False(t, ok)
}

func TestBackendOutageFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.err = errors.New("connection refused")
	c := New(backend, time.Minute, nil)
	want := []ranker.ScoredImage{{ImageID: "a", Score: 1}}

	for i := 0; i < 10; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), q, 1, 0, func(context.Context) ([]ranker.ScoredImage, error) { return want, nil })
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, want, got)
	}
	assert.Less(t, backend.gets.Load(), int64(10), "open circuit skips the backend")
}

func TestPurge(t *testing.T) {
	backend := newMemBackend()
	backend.data["other:key"] = []byte("x")
	c := New(backend, time.Minute, nil)
	c.Set(context.Background(), q, 1, 0, []ranker.ScoredImage{})
	require.NoError(t, c.Purge(context.Background()))
	assert.Len(t, backend.data, 1)
}

func TestComputeIgnoresCallerCancellation(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	want := []ranker.ScoredImage{{ImageID: "a", Score: 0.9}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, hit, err := c.GetOrCompute(ctx, q, 1, 0, func(ctx context.Context) ([]ranker.ScoredImage, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return want, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(context.Background(), q, 1, 0, nil)
	require.NoError(t, err)
	assert.True(t, hit, "the first caller's result was cached")
	assert.Equal(t, want, got)
}

// fillingBackend misses the first lookup and stores value as it does,
// standing in for a concurrent request that populated the key in between.
type fillingBackend struct {
	*memBackend
	value []byte
	first sync.Once
}

func (f *fillingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := f.memBackend.Get(ctx, key)
	f.first.Do(func() {
		f.memBackend.Set(ctx, key, f.value, time.Minute)
	})
	return data, err
}

func TestGetOrComputeRechecksInsideFlight(t *testing.T) {
	backend := &fillingBackend{memBackend: newMemBackend(), value: []byte(`[{"image_id":"b","score":0.5}]`)}
	c := New(backend, time.Minute, nil)

	got, hit, err := c.GetOrCompute(context.Background(), q, 1, 0, func(context.Context) ([]ranker.ScoredImage, error) {
		t.Fatal("compute must not run when the key is already filled")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []ranker.ScoredImage{{ImageID: "b", Score: 0.5}}, got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Zero(t, misses)
}
