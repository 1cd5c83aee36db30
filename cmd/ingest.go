package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs/internal/app"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/ingest"
)

var ingestChatbotID string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest extracted text files into a chatbot's knowledge base",
	Long: `Reads pre-extracted plain text files, splits them into chunks,
embeds each chunk, and stores the vectors for retrieval. The file name
becomes the deletion scope for later cleanup.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestChatbotID, "chatbot", "", "chatbot id to ingest into (required)")
	_ = ingestCmd.MarkFlagRequired("chatbot")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, paths []string) error {
	chatbotID, err := uuid.Parse(ingestChatbotID)
	if err != nil {
		return fmt.Errorf("invalid chatbot id %q: %w", ingestChatbotID, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	for _, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		result, err := a.Pipeline.Ingest(ctx, ingest.Request{
			ChatbotID: chatbotID,
			FileName:  path,
			Text:      string(text),
		})
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks, %d embedded\n", path, result.Chunks, result.Embedded)
	}
	return nil
}
