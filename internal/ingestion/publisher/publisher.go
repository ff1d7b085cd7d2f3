// Package publisher queues image additions and removals on Kafka for the
// indexer consumer to apply.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/kafka"
)

// Producer is the subset of *kafka.Producer the publisher needs.
type Producer interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher turns image operations into ImageEvents keyed by image ID.
type Publisher struct {
	producer Producer
	logger   *slog.Logger
	now      func() time.Time
}

func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
		now:      time.Now,
	}
}

// PublishAdd queues an add event for id.
func (p *Publisher) PublishAdd(ctx context.Context, id string, hist []float64) error {
	return p.Publish(ctx, ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: id, Histogram: hist})
}

// PublishRemove queues a remove event for id.
func (p *Publisher) PublishRemove(ctx context.Context, id string) error {
	return p.Publish(ctx, ingestion.ImageEvent{Op: ingestion.OpRemove, ImageID: id})
}

// Publish sends events in one batch, stamping any zero PublishedAt.
func (p *Publisher) Publish(ctx context.Context, events ...ingestion.ImageEvent) error {
	batch := make([]kafka.Event, 0, len(events))
	for _, ev := range events {
		if ev.PublishedAt.IsZero() {
			ev.PublishedAt = p.now().UTC()
		}
		batch = append(batch, kafka.Event{Key: ev.ImageID, Value: ev})
	}
	if err := p.producer.PublishBatch(ctx, batch); err != nil {
		return fmt.Errorf("publishing %d image events: %w", len(batch), err)
	}
	p.logger.Debug("image events published", "count", len(batch))
	return nil
}
