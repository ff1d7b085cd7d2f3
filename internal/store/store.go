// Package store persists image histograms to PostgreSQL so the in-memory
// index can be rebuilt on start-up.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS image_histograms (
    image_id     TEXT PRIMARY KEY,
    visual_words INTEGER NOT NULL,
    histogram    BYTEA NOT NULL,
    indexed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const schemaIndex = `
CREATE INDEX IF NOT EXISTS image_histograms_visual_words_idx
    ON image_histograms (visual_words)`

// Store keeps one row per indexed image in the image_histograms table. The
// histogram column holds the little-endian float64 encoding from
// histogram.Encode.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db: db,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Retryable:    isTransient,
		},
		logger: slog.Default().With("component", "histogram-store"),
	}
}

// Migrate creates the backing table and its index if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating image_histograms table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, schemaIndex); err != nil {
			return fmt.Errorf("creating image_histograms index: %w", err)
		}
		return nil
	})
}

// Save upserts the histogram for id.
func (s *Store) Save(ctx context.Context, id string, hist histogram.Histogram) error {
	blob := histogram.Encode(hist)
	return resilience.Retry(ctx, "store.save", s.retry, func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO image_histograms (image_id, visual_words, histogram, indexed_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (image_id) DO UPDATE
			 SET visual_words = EXCLUDED.visual_words,
			     histogram = EXCLUDED.histogram,
			     indexed_at = EXCLUDED.indexed_at`,
			id, len(hist), blob, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("saving histogram %q: %w", id, err)
		}
		return nil
	})
}

// Delete removes the row for id. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return resilience.Retry(ctx, "store.delete", s.retry, func() error {
		if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM image_histograms WHERE image_id = $1`, id); err != nil {
			return fmt.Errorf("deleting histogram %q: %w", id, err)
		}
		return nil
	})
}

// LoadAll returns every stored histogram whose vocabulary size matches
// visualWords, ordered by image ID. Rows with a different size are counted
// and left in place.
func (s *Store) LoadAll(ctx context.Context, visualWords int) ([]index.Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT image_id, visual_words, histogram FROM image_histograms ORDER BY image_id`)
	if err != nil {
		return nil, fmt.Errorf("querying histograms: %w", err)
	}
	defer rows.Close()

	var (
		entries    []index.Entry
		mismatched int
	)
	for rows.Next() {
		var (
			id    string
			words int
			blob  []byte
		)
		if err := rows.Scan(&id, &words, &blob); err != nil {
			return nil, fmt.Errorf("scanning histogram row: %w", err)
		}
		if words != visualWords {
			mismatched++
			continue
		}
		hist, err := histogram.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding histogram %q: %w", id, err)
		}
		entries = append(entries, index.Entry{ImageID: id, Histogram: hist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating histogram rows: %w", err)
	}
	if mismatched > 0 {
		s.logger.Warn("ignoring histograms with a different vocabulary size",
			"count", mismatched,
			"visual_words", visualWords,
		)
	}
	s.logger.Info("histograms loaded", "count", len(entries))
	return entries, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_histograms`).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("counting histograms: %w", err)
	}
	return n, nil
}

// isTransient reports whether err is worth retrying: connection failures,
// serialization conflicts and server shutdowns.
func isTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "57":
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
