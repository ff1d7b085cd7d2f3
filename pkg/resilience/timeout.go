package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
)

// WithTimeout runs fn under a deadline and returns as soon as either fn
// finishes or the deadline passes. A missed deadline is reported as
// apperrors.ErrTimeout, also matching context.DeadlineExceeded; fn keeps
// running in the background until it observes its cancelled context.
// Cancellation of the parent context is returned unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(deadlineCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-deadlineCtx.Done():
		err = deadlineCtx.Err()
	}
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", name, err)
	case !errors.Is(err, context.DeadlineExceeded):
		return err
	}
	slog.Default().With("component", "timeout").Warn("operation exceeded its deadline",
		"operation", name,
		"limit", timeout,
		"elapsed", time.Since(started),
	)
	return fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, context.DeadlineExceeded)
}
