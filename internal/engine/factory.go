package engine

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/comparator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ranker"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
)

// NewIndex builds the index variant named by cfg.Kind.
func NewIndex(cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Kind {
	case config.IndexForward:
		return index.NewForward(cfg.VisualWords)
	case config.IndexInverted:
		return index.NewInverted(cfg.VisualWords, cfg.CutoffRatio)
	default:
		return nil, fmt.Errorf("unknown index kind %q", cfg.Kind)
	}
}

// NewRanker builds the ranker named by cfg.Ranker around the configured
// comparator.
func NewRanker(cfg config.RankingConfig) (ranker.Ranker, error) {
	cmp, err := comparator.ByName(cfg.Comparator)
	if err != nil {
		return nil, err
	}
	switch cfg.Ranker {
	case config.RankerSimple:
		return ranker.NewSimple(cmp, cfg.Workers), nil
	case config.RankerWeighting:
		return ranker.NewWeighting(cmp, ranker.TFIDF, cfg.Workers), nil
	default:
		return nil, fmt.Errorf("unknown ranker %q", cfg.Ranker)
	}
}

// FromConfig assembles an Engine from configuration plus the optional
// collaborators in opts.
func FromConfig(cfg *config.Config, opts Options) (*Engine, error) {
	idx, err := NewIndex(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	rk, err := NewRanker(cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("building ranker: %w", err)
	}
	e := New(idx, rk, opts)
	e.logger.Info("engine configured",
		"index", cfg.Index.Kind,
		"visual_words", cfg.Index.VisualWords,
		"ranker", cfg.Ranking.Ranker,
		"comparator", cfg.Ranking.Comparator,
	)
	return e, nil
}
