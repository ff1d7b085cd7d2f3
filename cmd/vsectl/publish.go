package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/kafka"
)

type eventProducer interface {
	publisher.Producer
	Close() error
}

// newProducer is swapped out in tests.
var newProducer = func(brokers []string, topic string) eventProducer {
	return kafka.NewProducer(config.KafkaConfig{Brokers: brokers}, topic)
}

func NewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <events.jsonl|->",
		Short: "Queue image events directly on Kafka",
		Long: `Read one JSON image event per line and publish them to the ingest topic.
Each line has the form {"op":"add","image_id":"...","histogram":[...]} or
{"op":"remove","image_id":"..."}. A missing op means add. Invalid lines abort
the run before anything is sent.`,
		Args: cobra.ExactArgs(1),
		RunE: runPublish,
	}
	cmd.Flags().StringSlice("brokers", []string{"localhost:9092"}, "Kafka broker addresses")
	cmd.Flags().String("topic", "image-ingest", "Ingest topic")
	cmd.Flags().Int("visual-words", 1000, "Vocabulary size histograms must match")
	cmd.Flags().Int("batch", 100, "Events per Kafka batch")
	return cmd
}

func runPublish(cmd *cobra.Command, args []string) error {
	brokers, _ := cmd.Flags().GetStringSlice("brokers")
	topic, _ := cmd.Flags().GetString("topic")
	visualWords, _ := cmd.Flags().GetInt("visual-words")
	batch, _ := cmd.Flags().GetInt("batch")
	if batch <= 0 {
		return fmt.Errorf("--batch must be positive, got %d", batch)
	}

	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening events: %w", err)
		}
		defer f.Close()
		in = f
	}
	events, err := readEvents(in, visualWords)
	if err != nil {
		return err
	}

	producer := newProducer(brokers, topic)
	defer producer.Close()
	pub := publisher.New(producer)
	for start := 0; start < len(events); start += batch {
		end := min(start+batch, len(events))
		if err := pub.Publish(cmd.Context(), events[start:end]...); err != nil {
			return fmt.Errorf("publish: %d of %d events sent: %w", start, len(events), err)
		}
	}

	if wantJSON(cmd) {
		return outputJSON(cmd, map[string]any{"published": len(events), "topic": topic})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d events to %s\n", len(events), topic)
	return nil
}

func readEvents(r io.Reader, visualWords int) ([]ingestion.ImageEvent, error) {
	var events []ingestion.ImageEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var ev ingestion.ImageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.Op == "" {
			ev.Op = ingestion.OpAdd
		}
		if err := validator.ValidateEvent(&ev, visualWords); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}
	return events, nil
}
