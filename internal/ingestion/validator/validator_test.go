package validator

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
)

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestValidateAddRequest(t *testing.T) {
	ok := &ingestion.AddImageRequest{ImageID: "cat.jpg", Histogram: []float64{0.5, 0.5, 0}}
	assert.NoError(t, ValidateAddRequest(ok, 3))

	tests := []struct {
		name  string
		req   ingestion.AddImageRequest
		field string
	}{
		{"missing id", ingestion.AddImageRequest{ImageID: " ", Histogram: []float64{1, 0, 0}}, "image_id"},
		{"long id", ingestion.AddImageRequest{ImageID: strings.Repeat("x", 513), Histogram: []float64{1, 0, 0}}, "image_id"},
		{"short histogram", ingestion.AddImageRequest{ImageID: "a", Histogram: []float64{1}}, "histogram"},
		{"negative", ingestion.AddImageRequest{ImageID: "a", Histogram: []float64{1, -0.1, 0}}, "histogram"},
		{"nan", ingestion.AddImageRequest{ImageID: "a", Histogram: []float64{1, math.NaN(), 0}}, "histogram"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, fields(t, ValidateAddRequest(&tt.req, 3)), tt.field)
		})
	}
}

func TestValidateEvent(t *testing.T) {
	assert.NoError(t, ValidateEvent(&ingestion.ImageEvent{Op: ingestion.OpRemove, ImageID: "a"}, 3))
	assert.NoError(t, ValidateEvent(&ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "a", Histogram: []float64{0, 0, 1}}, 3))
	assert.Contains(t, fields(t, ValidateEvent(&ingestion.ImageEvent{Op: "upsert", ImageID: "a"}, 3)), "op")
	assert.Contains(t, fields(t, ValidateEvent(&ingestion.ImageEvent{Op: ingestion.OpAdd, ImageID: "a"}, 3)), "histogram")
}
