// Package validator checks image requests and events before they reach the
// index, returning per-field error details.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
)

const maxImageIDLength = 512

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateAddRequest checks the image ID and histogram of an add request
// against the configured vocabulary size.
func ValidateAddRequest(req *ingestion.AddImageRequest, visualWords int) error {
	errs := make(map[string]string)
	checkImageID(req.ImageID, errs)
	checkHistogram(req.Histogram, visualWords, errs)
	return result(errs)
}

// ValidateEvent checks an ImageEvent consumed from Kafka.
func ValidateEvent(ev *ingestion.ImageEvent, visualWords int) error {
	errs := make(map[string]string)
	checkImageID(ev.ImageID, errs)
	switch ev.Op {
	case ingestion.OpAdd:
		checkHistogram(ev.Histogram, visualWords, errs)
	case ingestion.OpRemove:
	default:
		errs["op"] = fmt.Sprintf("unknown operation %q", ev.Op)
	}
	return result(errs)
}

// ValidateQuery checks a query histogram. Queries may contain any finite
// non-negative values but must match the vocabulary size.
func ValidateQuery(hist []float64, visualWords int) error {
	errs := make(map[string]string)
	checkHistogram(hist, visualWords, errs)
	return result(errs)
}

func checkImageID(id string, errs map[string]string) {
	switch {
	case strings.TrimSpace(id) == "":
		errs["image_id"] = "image_id is required"
	case len(id) > maxImageIDLength:
		errs["image_id"] = fmt.Sprintf("image_id must be at most %d characters", maxImageIDLength)
	}
}

func checkHistogram(hist []float64, visualWords int, errs map[string]string) {
	if len(hist) != visualWords {
		errs["histogram"] = fmt.Sprintf("histogram must have %d components, got %d", visualWords, len(hist))
		return
	}
	for k, v := range hist {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs["histogram"] = fmt.Sprintf("component %d must be finite and non-negative, got %g", k, v)
			return
		}
	}
}

func result(errs map[string]string) error {
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
