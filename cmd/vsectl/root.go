package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/visual-search-engine/pkg/logger"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vsectl",
		Short:         "Command-line client for the visual search engine",
		Long:          `Add, inspect, remove and search images against a running vse server, or queue image events directly on Kafka.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.SetupWriter(cmd.ErrOrStderr(), level, "text")
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	rootCmd.AddCommand(
		NewAddCmd(),
		NewGetCmd(),
		NewRemoveCmd(),
		NewSearchCmd(),
		NewStatsCmd(),
		NewPublishCmd(),
		NewExportCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server", apiBaseURL(), "Base URL of the vse API (env VSE_API_URL)")
	cmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("log-level", "warn", "Log level (debug|info|warn|error)")
}

func clientFrom(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return newAPIClient(server, timeout)
}

func wantJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
