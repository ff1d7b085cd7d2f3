package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
)

// fakeEncoder maps image bytes to fixed histograms.
type fakeEncoder map[string]histogram.Histogram

func (f fakeEncoder) Encode(_ context.Context, image []byte) (histogram.Histogram, error) {
	h, ok := f[string(image)]
	if !ok {
		return nil, errors.New("unknown image")
	}
	return h.Clone(), nil
}

type fakeStore struct {
	saved   map[string]histogram.Histogram
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]histogram.Histogram{}}
}

func (s *fakeStore) Save(_ context.Context, id string, hist histogram.Histogram) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.saved[id] = hist.Clone()
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if s.failErr != nil {
		return s.failErr
	}
	delete(s.saved, id)
	return nil
}

var (
	histA = histogram.Histogram{0.9, 0.05, 0.03, 0.02}
	histB = histogram.Histogram{0.1, 0.1, 0.7, 0.1}
	query = histogram.Histogram{0.8, 0.1, 0.05, 0.05}
)

func newInvertedEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	idx, err := index.NewInverted(4, index.DefaultCutoffRatio)
	require.NoError(t, err)
	return New(idx, ranker.NewSimple(comparator.Intersection(), 1), opts)
}

func TestRoundTrip(t *testing.T) {
	enc := fakeEncoder{"a.jpg": histA, "b.jpg": histB, "q.jpg": query}
	e := newInvertedEngine(t, Options{Encoder: enc})
	ctx := context.Background()

	require.NoError(t, e.AddImage(ctx, "a", []byte("a.jpg")))
	require.NoError(t, e.AddImage(ctx, "b", []byte("b.jpg")))

	results, err := e.FindSimilar(ctx, []byte("q.jpg"), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ImageID)
	// cutoff is 0.5: "b" shares no significant word with the query.
	assert.Len(t, results, 1)

	results, err = e.FindSimilar(ctx, []byte("q.jpg"), DefaultLimit)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFindOnEmptyIndex(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	results, err := e.FindSimilarHistogram(context.Background(), query, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFindNonPositiveLimit(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	require.NoError(t, e.AddHistogram(context.Background(), "a", histA))
	results, err := e.FindSimilarHistogram(context.Background(), query, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAddDuplicateAndRemoveMissing(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	ctx := context.Background()
	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	assert.ErrorIs(t, e.AddHistogram(ctx, "a", histB), apperrors.ErrImageExists)
	assert.ErrorIs(t, e.RemoveImage(ctx, "missing"), apperrors.ErrImageNotFound)
	assert.ErrorIs(t, e.AddHistogram(ctx, "", histA), apperrors.ErrInvalidInput)
	assert.Equal(t, 1, e.Len())
}

func TestGenerationAdvancesOnMutation(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	ctx := context.Background()
	g0 := e.Generation()
	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	g1 := e.Generation()
	assert.Greater(t, g1, g0)
	assert.Error(t, e.AddHistogram(ctx, "a", histA))
	assert.Equal(t, g1, e.Generation(), "failed mutations keep the generation")
	require.NoError(t, e.RemoveImage(ctx, "a"))
	assert.Greater(t, e.Generation(), g1)
}

func TestStoreWriteThrough(t *testing.T) {
	store := newFakeStore()
	e := newInvertedEngine(t, Options{Store: store})
	ctx := context.Background()

	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	assert.Equal(t, histA, store.saved["a"])

	require.NoError(t, e.RemoveImage(ctx, "a"))
	assert.NotContains(t, store.saved, "a")
}

func TestStoreFailureRollsBack(t *testing.T) {
	store := newFakeStore()
	e := newInvertedEngine(t, Options{Store: store})
	ctx := context.Background()

	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	store.failErr = errors.New("connection reset")

	assert.Error(t, e.AddHistogram(ctx, "b", histB))
	_, err := e.Histogram("b")
	assert.ErrorIs(t, err, apperrors.ErrImageNotFound, "failed save must not leave the image indexed")

	assert.Error(t, e.RemoveImage(ctx, "a"))
	got, err := e.Histogram("a")
	require.NoError(t, err, "failed delete must put the image back")
	assert.Equal(t, histA, got)
	assert.Equal(t, 1, e.Len())
	assert.InDeltaSlice(t, []float64(histA), e.Frequencies(), 1e-12)
}

func TestEncoderRequired(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	err := e.AddImage(context.Background(), "a", []byte("a.jpg"))
	assert.ErrorIs(t, err, apperrors.ErrEncoderUnavailable)
	_, err = e.FindSimilar(context.Background(), []byte("q.jpg"), 1)
	assert.ErrorIs(t, err, apperrors.ErrEncoderUnavailable)
	assert.False(t, e.HasEncoder())
}

func TestQueryDimensionMismatch(t *testing.T) {
	e := newInvertedEngine(t, Options{})
	_, err := e.FindSimilarHistogram(context.Background(), histogram.Histogram{1, 0}, 1)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
}

func TestRestoreSkipsRejectedEntries(t *testing.T) {
	store := newFakeStore()
	e := newInvertedEngine(t, Options{Store: store})
	loaded, skipped := e.Restore([]index.Entry{
		{ImageID: "a", Histogram: histA},
		{ImageID: "short", Histogram: histogram.Histogram{1, 0}},
		{ImageID: "b", Histogram: histB},
	})
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 2, e.Len())
	assert.Empty(t, store.saved, "restore does not write back")
}

func TestStatsAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := newInvertedEngine(t, Options{Metrics: m})
	ctx := context.Background()
	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	require.NoError(t, e.AddHistogram(ctx, "b", histB))

	s := e.Stats()
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, "inverted", s.IndexKind)
	assert.Equal(t, 0.5, s.Cutoff)
	assert.Equal(t, []int{1, 0, 1, 0}, s.ShardSizes)
	assert.Equal(t, "simple", s.Ranker)
	assert.Equal(t, "intersection", s.Comparator)
	assert.False(t, s.Encoder)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newInvertedEngine(t, Options{})
	require.NoError(t, src.AddHistogram(ctx, "b", histB))
	require.NoError(t, src.AddHistogram(ctx, "a", histA))
	require.NoError(t, src.AddHistogram(ctx, "c", histogram.Histogram{0.05, 0.85, 0.05, 0.05}))
	require.NoError(t, src.RemoveImage(ctx, "c"))

	snap := src.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ImageID)
	assert.Equal(t, "b", snap[1].ImageID)
	snap[0].Histogram[0] = 42
	got, err := src.Histogram("a")
	require.NoError(t, err)
	assert.Equal(t, histA, got, "snapshot entries are copies")

	dst := newInvertedEngine(t, Options{})
	loaded, skipped := dst.Restore(src.Snapshot())
	assert.Equal(t, 2, loaded)
	assert.Zero(t, skipped)
	assert.Equal(t, src.Len(), dst.Len())
	assert.InDeltaSlice(t, src.Frequencies(), dst.Frequencies(), 1e-12)
	assert.Equal(t, src.Stats().ShardSizes, dst.Stats().ShardSizes)

	want, err := src.FindSimilarHistogram(ctx, query, 2)
	require.NoError(t, err)
	results, err := dst.FindSimilarHistogram(ctx, query, 2)
	require.NoError(t, err)
	assert.Equal(t, want, results)
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Index:   config.IndexConfig{Kind: config.IndexForward, VisualWords: 4},
		Ranking: config.RankingConfig{Ranker: config.RankerWeighting, Comparator: "Chi-Squared", Workers: 1},
	}
	e, err := FromConfig(cfg, Options{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, e.AddHistogram(ctx, "a", histA))
	require.NoError(t, e.AddHistogram(ctx, "b", histB))

	results, err := e.FindSimilarHistogram(ctx, query, 2)
	require.NoError(t, err)
	require.Len(t, results, 2, "forward index returns every image")
	assert.Equal(t, "a", results[0].ImageID)

	cfg.Ranking.Comparator = "manhattan-ish"
	_, err = FromConfig(cfg, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
