package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/histogram"
)

// query is what a command sends: either a histogram or raw image bytes.
type query struct {
	hist  histogram.Histogram
	image []byte
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("histogram", "", "Comma-separated histogram values")
	cmd.Flags().StringP("file", "f", "", "File holding a JSON array histogram")
	cmd.Flags().String("image", "", "Raw image file, encoded server-side")
	cmd.Flags().Bool("normalize", false, "Scale the histogram to sum to 1 before sending")
	cmd.MarkFlagsMutuallyExclusive("histogram", "file", "image")
}

func readQuery(cmd *cobra.Command) (query, error) {
	inline, _ := cmd.Flags().GetString("histogram")
	file, _ := cmd.Flags().GetString("file")
	image, _ := cmd.Flags().GetString("image")
	normalize, _ := cmd.Flags().GetBool("normalize")

	var (
		q   query
		err error
	)
	switch {
	case image != "":
		q.image, err = os.ReadFile(image)
		if err != nil {
			return q, fmt.Errorf("reading image: %w", err)
		}
		return q, nil
	case file != "":
		q.hist, err = readHistogramFile(file)
	case inline != "":
		q.hist, err = parseHistogram(inline)
	default:
		return q, errors.New("one of --histogram, --file or --image is required")
	}
	if err != nil {
		return q, err
	}
	if normalize {
		q.hist = q.hist.Normalize()
	}
	return q, nil
}

func parseHistogram(s string) (histogram.Histogram, error) {
	fields := strings.Split(s, ",")
	hist := make(histogram.Histogram, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("histogram value %d: %w", i, err)
		}
		hist = append(hist, v)
	}
	return hist, nil
}

func readHistogramFile(path string) (histogram.Histogram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading histogram file: %w", err)
	}
	var hist histogram.Histogram
	if err := json.Unmarshal(data, &hist); err != nil {
		return nil, fmt.Errorf("parsing histogram file %s: %w", path, err)
	}
	return hist, nil
}
