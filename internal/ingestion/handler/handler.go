// Package handler serves the write side of the image API: adding images by
// histogram or raw bytes and removing them, either directly against the
// engine or queued through Kafka.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/logger"
)

// ImageWriter is the mutating half of *engine.Engine.
type ImageWriter interface {
	AddHistogram(ctx context.Context, id string, hist histogram.Histogram) error
	AddImage(ctx context.Context, id string, image []byte) error
	RemoveImage(ctx context.Context, id string) error
	VisualWords() int
}

// EventPublisher queues image operations for asynchronous indexing.
type EventPublisher interface {
	PublishAdd(ctx context.Context, id string, hist []float64) error
	PublishRemove(ctx context.Context, id string) error
}

type Handler struct {
	writer       ImageWriter
	publisher    EventPublisher
	maxBodyBytes int64
	logger       *slog.Logger
}

// New creates a Handler. publisher may be nil, in which case ?async=true
// requests are rejected.
func New(writer ImageWriter, publisher EventPublisher, maxBodyBytes int64) *Handler {
	return &Handler{
		writer:       writer,
		publisher:    publisher,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "ingestion-handler"),
	}
}

// Add handles POST /api/v1/images with an AddImageRequest body.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingestion.AddImageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateAddRequest(&req, h.writer.VisualWords()); err != nil {
		h.writeValidation(w, err)
		return
	}

	async, ok := h.async(w, r)
	if !ok {
		return
	}
	if async {
		if err := h.publisher.PublishAdd(ctx, req.ImageID, req.Histogram); err != nil {
			log.Error("queueing image failed", "image_id", req.ImageID, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "could not queue image")
			return
		}
		h.writeJSON(w, http.StatusAccepted, ingestion.ImageResponse{ImageID: req.ImageID, Status: "queued"})
		return
	}

	if err := h.writer.AddHistogram(ctx, req.ImageID, histogram.Histogram(req.Histogram)); err != nil {
		h.writeEngineError(ctx, w, "add image", req.ImageID, err)
		return
	}
	log.Info("image indexed", "image_id", req.ImageID)
	h.writeJSON(w, http.StatusCreated, ingestion.ImageResponse{ImageID: req.ImageID, Status: "indexed"})
}

// PutContent handles PUT /api/v1/images/{id}/content with raw image bytes,
// which are encoded before indexing.
func (h *Handler) PutContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "image exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.writeError(w, http.StatusBadRequest, "could not read image body")
		return
	}
	if err := h.writer.AddImage(ctx, id, body); err != nil {
		h.writeEngineError(ctx, w, "add image content", id, err)
		return
	}
	logger.FromContext(ctx).Info("image encoded and indexed", "image_id", id, "bytes", len(body))
	h.writeJSON(w, http.StatusCreated, ingestion.ImageResponse{ImageID: id, Status: "indexed"})
}

// Remove handles DELETE /api/v1/images/{id}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	async, ok := h.async(w, r)
	if !ok {
		return
	}
	if async {
		if err := h.publisher.PublishRemove(ctx, id); err != nil {
			logger.FromContext(ctx).Error("queueing removal failed", "image_id", id, "error", err)
			h.writeError(w, http.StatusServiceUnavailable, "could not queue removal")
			return
		}
		h.writeJSON(w, http.StatusAccepted, ingestion.ImageResponse{ImageID: id, Status: "queued"})
		return
	}

	if err := h.writer.RemoveImage(ctx, id); err != nil {
		h.writeEngineError(ctx, w, "remove image", id, err)
		return
	}
	logger.FromContext(ctx).Info("image removed", "image_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// async parses the ?async flag. It writes the error response itself and
// returns ok=false when the flag is malformed or Kafka is not configured.
func (h *Handler) async(w http.ResponseWriter, r *http.Request) (async bool, ok bool) {
	raw := r.URL.Query().Get("async")
	if raw == "" {
		return false, true
	}
	async, err := strconv.ParseBool(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "async must be a boolean")
		return false, false
	}
	if async && h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is not enabled")
		return false, false
	}
	return async, true
}

func (h *Handler) writeEngineError(ctx context.Context, w http.ResponseWriter, op, id string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(ctx).Error(op+" failed", "image_id", id, "error", err, "status_code", status)
		h.writeError(w, status, op+" failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
