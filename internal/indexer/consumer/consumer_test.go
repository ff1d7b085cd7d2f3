package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
)

type failingStore struct{ err error }

func (s failingStore) Save(context.Context, string, histogram.Histogram) error { return s.err }
func (s failingStore) Delete(context.Context, string) error                   { return s.err }

func newEngine(t *testing.T, opts engine.Options) *engine.Engine {
	t.Helper()
	idx, err := index.NewInverted(3, index.DefaultCutoffRatio)
	require.NoError(t, err)
	return engine.New(idx, ranker.NewSimple(comparator.Intersection(), 1), opts)
}

func event(t *testing.T, ev ingestion.ImageEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessageAppliesEvents(t *testing.T) {
	e := newEngine(t, engine.Options{})
	handle := HandleMessage(e, nil)
	ctx := context.Background()

	add := event(t, ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "a", Histogram: []float64{0.8, 0.1, 0.1}})
	require.NoError(t, handle(ctx, []byte("a"), add))
	assert.Equal(t, 1, e.Len())

	require.NoError(t, handle(ctx, []byte("a"), add), "redelivered add is idempotent")
	assert.Equal(t, 1, e.Len())

	remove := event(t, ingestion.ImageEvent{Op: ingestion.OpRemove, ImageID: "a"})
	require.NoError(t, handle(ctx, []byte("a"), remove))
	require.NoError(t, handle(ctx, []byte("a"), remove), "redelivered remove is idempotent")
	assert.Equal(t, 0, e.Len())
}

func TestHandleMessageDropsBadEvents(t *testing.T) {
	e := newEngine(t, engine.Options{})
	handle := HandleMessage(e, nil)
	ctx := context.Background()

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, event(t, ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "short", Histogram: []float64{1}})))
	// Flat histogram: nothing above the 2/3 cutoff, so the index refuses it.
	assert.NoError(t, handle(ctx, nil, event(t, ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "flat", Histogram: []float64{0.34, 0.33, 0.33}})))
	assert.Equal(t, 0, e.Len())
}

func TestHandleMessageRetriesStoreFailures(t *testing.T) {
	boom := errors.New("store unavailable")
	e := newEngine(t, engine.Options{Store: failingStore{err: boom}})
	handle := HandleMessage(e, nil)

	err := handle(context.Background(), nil, event(t, ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "a", Histogram: []float64{0.8, 0.1, 0.1}}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, e.Len())
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestWatchLagRefreshesGauge(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "lag_test"})
	var lag atomic.Int64
	lag.Store(42)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watchLag(ctx, lag.Load, gauge, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return gaugeValue(t, gauge) == 42 }, time.Second, time.Millisecond)
	lag.Store(7)
	assert.Eventually(t, func() bool { return gaugeValue(t, gauge) == 7 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchLag did not stop after cancel")
	}
}
