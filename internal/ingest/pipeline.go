// Package ingest turns uploaded document text into embedded, searchable
// chunks: split, persist placeholder rows, then embed each chunk with
// bounded concurrency and store the vectors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/chunk"
)

// DefaultConcurrency bounds in-flight embedding calls per document.
const DefaultConcurrency = 3

// embedder is the slice of embed.Gateway the pipeline needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// chunkStore is the slice of knowledge.Store the pipeline needs.
type chunkStore interface {
	InsertPlaceholders(ctx context.Context, chatbotID uuid.UUID, fileName string, texts []string) ([]uuid.UUID, error)
	SetVector(ctx context.Context, chunkID uuid.UUID, vec []float32) error
}

// Request is one document to ingest.
type Request struct {
	ChatbotID uuid.UUID
	FileName  string
	Text      string // extracted plain text
	MimeType  string // informational only
}

// Result reports what one ingestion stored. Embedded may be smaller
// than Chunks when individual embedding calls failed; those chunks keep
// their placeholder rows with no vector.
type Result struct {
	Chunks   int
	Embedded int
}

// Pipeline ingests documents for retrieval.
type Pipeline struct {
	embedder    embedder
	store       chunkStore
	concurrency int
	chunkOpts   chunk.Options
	logger      *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithConcurrency overrides the embedding concurrency bound.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithChunkOptions overrides the chunker sizing.
func WithChunkOptions(opts chunk.Options) PipelineOption {
	return func(p *Pipeline) { p.chunkOpts = opts }
}

// NewPipeline creates a Pipeline. logger may be nil.
func NewPipeline(emb embedder, store chunkStore, logger *slog.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		embedder:    emb,
		store:       store,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ingest chunks the document, persists placeholder rows, then embeds
// each chunk and writes its vector back keyed by chunk id. Embedding
// completion order does not matter; each vector lands on its own row.
//
// A failed embedding leaves that chunk without a vector and is logged,
// not fatal. Context cancellation aborts the remaining work.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.ChatbotID == uuid.Nil {
		return nil, &chatbot.ValidationError{Field: "chatbotId", Reason: "is required"}
	}
	if strings.TrimSpace(req.FileName) == "" {
		return nil, &chatbot.ValidationError{Field: "fileName", Reason: "is required"}
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%s: %w", req.FileName, chatbot.ErrUnextractable)
	}

	texts := chunk.Split(req.Text, p.chunkOpts)
	if len(texts) == 0 {
		return nil, fmt.Errorf("%s: %w", req.FileName, chatbot.ErrUnextractable)
	}

	ids, err := p.store.InsertPlaceholders(ctx, req.ChatbotID, req.FileName, texts)
	if err != nil {
		return nil, fmt.Errorf("storing chunks for %s: %w", req.FileName, err)
	}

	var embedded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := p.embedder.Embed(gctx, texts[i])
			if err != nil {
				p.logger.Warn("chunk embedding failed, vector left absent",
					"chunk_id", id, "file", req.FileName, "error", err)
				return nil
			}
			if err := p.store.SetVector(gctx, id, vec); err != nil {
				p.logger.Warn("storing chunk vector failed",
					"chunk_id", id, "file", req.FileName, "error", err)
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", req.FileName, err)
	}

	result := &Result{Chunks: len(ids), Embedded: int(embedded.Load())}
	p.logger.Info("document ingested",
		"chatbot_id", req.ChatbotID,
		"file", req.FileName,
		"chunks", result.Chunks,
		"embedded", result.Embedded,
	)
	return result, nil
}
