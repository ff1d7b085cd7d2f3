// Package consumer applies image events from Kafka to the search engine.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/metrics"
)

// Indexer is the part of *engine.Engine the consumer drives.
type Indexer interface {
	AddHistogram(ctx context.Context, id string, hist histogram.Histogram) error
	RemoveImage(ctx context.Context, id string) error
	VisualWords() int
}

// lagInterval is how often the consumer lag gauge is refreshed.
const lagInterval = 10 * time.Second

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer. m may be
// nil.
func New(kafkaConsumer *kafka.Consumer, m *metrics.Metrics) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		metrics:  m,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	if ic.metrics != nil {
		go watchLag(ctx, ic.consumer.Lag, ic.metrics.IngestConsumerLag, lagInterval)
	}
	return ic.consumer.Start(ctx)
}

// watchLag copies lag() into gauge every interval until ctx is done.
func watchLag(ctx context.Context, lag func() int64, gauge prometheus.Gauge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gauge.Set(float64(lag()))
		}
	}
}

// HandleMessage returns a Kafka MessageHandler that applies each ImageEvent
// to idx. Redelivered events are idempotent: adding an image that already
// exists or removing one that is gone is logged and committed. Malformed
// events are dropped. Only failures that may succeed on retry, such as a
// store outage, are returned so the message is redelivered.
func HandleMessage(idx Indexer, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(op, status string) {
		if m != nil {
			m.IngestEventsTotal.WithLabelValues(op, status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.ImageEvent](value)
		if err != nil {
			logger.Error("failed to decode image event", "error", err, "key", string(key))
			count("unknown", "malformed")
			return nil
		}
		if err := validator.ValidateEvent(&event, idx.VisualWords()); err != nil {
			logger.Warn("dropping invalid image event", "image_id", event.ImageID, "op", event.Op, "error", err)
			count("invalid", "malformed")
			return nil
		}

		switch event.Op {
		case ingestion.OpAdd:
			err = idx.AddHistogram(ctx, event.ImageID, histogram.Histogram(event.Histogram))
		case ingestion.OpRemove:
			err = idx.RemoveImage(ctx, event.ImageID)
		}

		switch {
		case err == nil:
			count(event.Op, "ok")
			logger.Info("image event applied", "image_id", event.ImageID, "op", event.Op)
			return nil
		case errors.Is(err, apperrors.ErrImageExists), errors.Is(err, apperrors.ErrImageNotFound):
			count(event.Op, "duplicate")
			logger.Info("image event already applied", "image_id", event.ImageID, "op", event.Op)
			return nil
		case apperrors.IsPrecondition(err):
			count(event.Op, "rejected")
			logger.Warn("image event rejected by index", "image_id", event.ImageID, "op", event.Op, "error", err)
			return nil
		default:
			count(event.Op, "error")
			return fmt.Errorf("applying %s for image %s: %w", event.Op, event.ImageID, err)
		}
	}
}
