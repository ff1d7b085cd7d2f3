// Package ingestion defines the request/response types and Kafka event
// schemas used to add and remove images.
package ingestion

import "time"

// Event operations carried by ImageEvent.Op.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// AddImageRequest is the JSON body accepted by POST /api/v1/images.
type AddImageRequest struct {
	ImageID   string    `json:"image_id"`
	Histogram []float64 `json:"histogram"`
}

// ImageResponse is returned after an image is accepted. Status is "indexed"
// for synchronous writes and "queued" when the write went through Kafka.
type ImageResponse struct {
	ImageID string `json:"image_id"`
	Status  string `json:"status"`
}

// ImageEvent is the Kafka message payload on the image-ingest topic. The
// message key is the image ID so events for one image stay ordered.
type ImageEvent struct {
	Op          string    `json:"op"`
	ImageID     string    `json:"image_id"`
	Histogram   []float64 `json:"histogram,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
