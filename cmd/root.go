// Package cmd contains the CLI entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "askdocs",
	Short: "askdocs - document Q&A pipeline service",
	Long: `askdocs runs the retrieval-augmented answering pipeline behind
document chatbots: ingestion (chunking and embedding), vector
similarity search with LLM reranking, and streamed answer synthesis
with conversation persistence.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
