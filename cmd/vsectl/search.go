package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	searchhandler "github.com/Adithya-Monish-Kumar-K/visual-search-engine/internal/searcher/handler"
)

func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the images most similar to a query",
		Long: `Search by histogram (--histogram or --file) or by raw image bytes (--image).
A zero --number uses the server's default limit.`,
		Args: cobra.NoArgs,
		RunE: runSearch,
	}
	addQueryFlags(cmd)
	cmd.Flags().IntP("number", "n", 0, "Maximum results")
	return cmd
}

func runSearch(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("number")
	if limit < 0 {
		return fmt.Errorf("--number must not be negative, got %d", limit)
	}
	q, err := readQuery(cmd)
	if err != nil {
		return err
	}

	client := clientFrom(cmd)
	var resp searchhandler.SearchResponse
	if q.image != nil {
		resp, err = client.searchImage(cmd.Context(), q.image, limit)
	} else {
		resp, err = client.search(cmd.Context(), q.hist, limit)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if wantJSON(cmd) {
		return outputJSON(cmd, resp)
	}
	for _, r := range resp.Results {
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", r.Score, r.ImageID)
	}
	return nil
}

func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := clientFrom(cmd).stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if wantJSON(cmd) {
				return outputJSON(cmd, stats)
			}
			printSection(cmd, "", stats)
			return nil
		},
	}
}

func printSection(cmd *cobra.Command, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok {
			printSection(cmd, prefix+k+".", nested)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %v\n", prefix, k, m[k])
	}
}
