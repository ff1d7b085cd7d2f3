// Package encoder talks to the remote bag-of-visual-words service that turns
// raw image bytes into histograms.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/resilience"
)

// EncodePath is appended to the configured base URL.
const EncodePath = "/encode"

type encodeResponse struct {
	Histogram []float64 `json:"histogram"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client posts images to the encoder service. Transport failures and 5xx
// responses trip a circuit breaker so a dead encoder fails fast.
type Client struct {
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg config.EncoderConfig, onStateChange func(string, resilience.State)) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{
		http: c,
		breaker: resilience.NewCircuitBreaker("encoder", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			OnStateChange:    onStateChange,
			IsFailure: func(err error) bool {
				return errors.Is(err, apperrors.ErrEncoderUnavailable)
			},
		}),
		logger: slog.Default().With("component", "encoder"),
	}
}

// Encode sends image to the encoder and returns the histogram it produced.
func (c *Client) Encode(ctx context.Context, image []byte) (histogram.Histogram, error) {
	var hist histogram.Histogram
	err := c.breaker.Execute(func() error {
		var err error
		hist, err = c.encode(ctx, image)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEncoderUnavailable, err)
	}
	return hist, err
}

func (c *Client) encode(ctx context.Context, image []byte) (histogram.Histogram, error) {
	var out encodeResponse
	var fail errorResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(image).
		SetResult(&out).
		SetError(&fail).
		Post(EncodePath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEncoderUnavailable, err)
	}
	switch {
	case resp.StatusCode() >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: encoder returned %d", apperrors.ErrEncoderUnavailable, resp.StatusCode())
	case resp.IsError():
		msg := fail.Error
		if msg == "" {
			msg = resp.Status()
		}
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "encoder rejected image: %s", msg)
	}
	if len(out.Histogram) == 0 {
		return nil, fmt.Errorf("%w: encoder returned an empty histogram", apperrors.ErrEncoderUnavailable)
	}
	c.logger.Debug("image encoded",
		"bytes", len(image),
		"visual_words", len(out.Histogram),
		"duration", time.Since(start),
	)
	return histogram.Histogram(out.Histogram), nil
}

// Ping checks that the encoder answers at all; used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if state := c.breaker.GetState(); state == resilience.StateOpen {
		return fmt.Errorf("encoder circuit %s", state)
	}
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("encoder health returned %d", resp.StatusCode())
	}
	return nil
}
