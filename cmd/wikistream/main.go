// Package main provides the entry point for the wikistream CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wikistream/wikistream/cmd/wikistream/commands"
	"github.com/wikistream/wikistream/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wikistream",
		Short: "Wikistream - resumable MediaWiki dump ingestion",
		Long: `Wikistream streams compressed MediaWiki XML dumps into retrieval-ready
chunk bundles, checkpointing as it goes so interrupted runs resume instead
of restarting.

Commands:
  build     Run the ingest/chunk/filter/bundle pipeline
  status    Show checkpoint and pipeline progress
  reset     Clear checkpoint and stage state`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands.
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewResetCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
