package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded span of a source document's text, the unit of
// embedding and retrieval. Chunks are created in bulk during ingestion,
// immutable afterwards, and deleted together when their source file is
// removed.
type Chunk struct {
	ID        uuid.UUID
	ChatbotID uuid.UUID
	FileName  string
	Seq       int // sequence index within the source document
	Content   string
	Embedding []float32 // nil until the ingestion pipeline writes it back
	CreatedAt time.Time
}

// HasVector reports whether the chunk's embedding has been written.
// A chunk without a vector is an expected intermediate state during
// ingestion and is excluded from retrieval.
func (c *Chunk) HasVector() bool {
	return len(c.Embedding) > 0
}

// ScoredChunk pairs a chunk with its similarity to a query vector.
// Similarity is 1 - cosine distance, so higher is more similar.
type ScoredChunk struct {
	Chunk      Chunk
	Similarity float64
}
