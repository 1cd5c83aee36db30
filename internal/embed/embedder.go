// Package embed wraps the text-embedding provider behind a small
// gateway. Documents and queries go through the same call; two vectors
// are only comparable when produced by the same model and dimension.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"

	"github.com/askdocs/askdocs/internal/chatbot"
)

// VectorDimension is the fixed embedding width stored in pgvector.
// gemini-embedding-001 emits 3072 dimensions by default; we request 768
// via OutputDimensionality so the schema and similarity math stay fixed
// regardless of provider-side defaults.
const VectorDimension int32 = 768

// Timeout bounds a single embedding call.
const Timeout = 15 * time.Second

// Gateway converts text to fixed-length vectors via a provider-backed
// genkit embedder. The underlying client is constructed once at startup
// and injected; there is no local caching, every call re-embeds.
//
// Gateway is safe for concurrent use by multiple goroutines.
type Gateway struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Gateway. logger may be nil.
func New(embedder ai.Embedder, logger *slog.Logger) (*Gateway, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{embedder: embedder, logger: logger}, nil
}

// Embed converts text into a VectorDimension-length vector.
//
// Upstream failure or an empty response returns a *chatbot.ProviderError;
// it is never swallowed, because a garbage vector would silently corrupt
// every similarity comparison downstream.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &chatbot.ValidationError{Field: "text", Reason: "must not be empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	dim := VectorDimension
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, &chatbot.ProviderError{Op: "embed", Err: err}
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, &chatbot.ProviderError{Op: "embed", Err: fmt.Errorf("empty embedding response")}
	}

	vec := resp.Embeddings[0].Embedding
	g.logger.Debug("embedded text", "input_len", len(text), "dimensions", len(vec))
	return vec, nil
}
