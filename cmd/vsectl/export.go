package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/ingestion"
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every indexed image as add events",
		Long: `Write one {"op":"add","image_id":...,"histogram":[...]} line per indexed image,
sorted by ID. The output can be fed back through "vsectl publish" to rebuild
the index on another deployment.`,
		Args: cobra.NoArgs,
		RunE: runExport,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file (- for stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	list, err := clientFrom(cmd).listImages(cmd.Context())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	path, _ := cmd.Flags().GetString("output")
	var out io.Writer = cmd.OutOrStdout()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	for _, img := range list.Images {
		line := exportEvent{Op: ingestion.OpAdd, ImageID: img.ImageID, Histogram: img.Histogram}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("writing %s: %w", img.ImageID, err)
		}
	}
	if path != "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d images to %s\n", list.Count, path)
	}
	return nil
}

// exportEvent is an ImageEvent without PublishedAt, which publish stamps
// when the event is sent.
type exportEvent struct {
	Op        string    `json:"op"`
	ImageID   string    `json:"image_id"`
	Histogram []float64 `json:"histogram"`
}
