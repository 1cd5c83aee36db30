package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/knowledge"
)

// DefaultTopK is the candidate shortlist size handed to the reranker.
const DefaultTopK = 5

// Candidate is one ranked retrieval result.
type Candidate struct {
	Text  string
	Score float64
}

// Engine ranks a chatbot's chunks against a query embedding and returns
// the top k, descending by score. An empty corpus returns an empty
// slice; the reranker and mode gate treat that as valid input.
type Engine interface {
	TopK(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]Candidate, error)
}

// chunkSearcher is the slice of knowledge.Store the StoreEngine needs.
type chunkSearcher interface {
	Search(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]knowledge.ScoredChunk, error)
}

// chunkLoader is the slice of knowledge.Store the MemoryEngine needs.
type chunkLoader interface {
	Candidates(ctx context.Context, chatbotID uuid.UUID) ([]knowledge.Chunk, error)
}

// StoreEngine pushes ranking down to pgvector's distance operator so
// the full candidate set is never loaded client-side. This is the
// canonical strategy for deployments with a shared database; it avoids
// O(n) corpus scans per query.
type StoreEngine struct {
	store chunkSearcher
}

// NewStoreEngine creates an index-assisted engine over the given store.
func NewStoreEngine(store chunkSearcher) *StoreEngine {
	return &StoreEngine{store: store}
}

// TopK returns the k most similar chunks, scored as 1 - cosine distance.
func (e *StoreEngine) TopK(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	scored, err := e.store.Search(ctx, chatbotID, query, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	candidates := make([]Candidate, 0, len(scored))
	for _, sc := range scored {
		candidates = append(candidates, Candidate{Text: sc.Chunk.Content, Score: sc.Similarity})
	}
	return candidates, nil
}

// MemoryEngine loads a chatbot's embedded chunks and scores them
// in-process with cosine similarity. Suitable for small corpora and for
// deployments without a vector-capable store.
type MemoryEngine struct {
	store chunkLoader
}

// NewMemoryEngine creates an in-process engine over the given store.
func NewMemoryEngine(store chunkLoader) *MemoryEngine {
	return &MemoryEngine{store: store}
}

// TopK scores every candidate against the query vector, sorts
// descending, and returns the first k. The sort is stable, so ties keep
// their load order; no secondary key is imposed.
func (e *MemoryEngine) TopK(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	chunks, err := e.store.Candidates(ctx, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	candidates := make([]Candidate, 0, len(chunks))
	for _, c := range chunks {
		candidates = append(candidates, Candidate{
			Text:  c.Content,
			Score: CosineSimilarity(query, c.Embedding),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}
