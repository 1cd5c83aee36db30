// Package knowledge stores document chunks and their embedding vectors
// in PostgreSQL with pgvector. Chunk rows are written first as
// placeholders (vector NULL); the ingestion pipeline writes vectors back
// keyed by chunk id, so completion order never matters.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a vector similarity query so a slow index scan
// cannot stall a chat turn.
const searchTimeout = 10 * time.Second

// Store manages chunk rows and their vectors.
//
// Store is safe for concurrent use by multiple goroutines. Rows are
// write-once from the pipeline's perspective: a placeholder insert, one
// vector write-back, then immutable until bulk deletion.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// InsertPlaceholders bulk-inserts chunk rows with no vector, returning
// the generated ids in input order. All rows share one transaction so a
// partially chunked document never becomes visible.
func (s *Store) InsertPlaceholders(ctx context.Context, chatbotID uuid.UUID, fileName string, texts []string) ([]uuid.UUID, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	ids := make([]uuid.UUID, len(texts))
	for i, text := range texts {
		err := tx.QueryRow(ctx,
			`INSERT INTO chunks (chatbot_id, file_name, seq, content)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			chatbotID, fileName, i, text,
		).Scan(&ids[i])
		if err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing chunk insert: %w", err)
	}

	s.logger.Debug("inserted chunk placeholders",
		"chatbot_id", chatbotID, "file", fileName, "count", len(ids))
	return ids, nil
}

// SetVector writes an embedding onto its placeholder row. Keyed by
// chunk id, so out-of-order completion across concurrent embedding
// calls still lands each vector on the right row.
func (s *Store) SetVector(ctx context.Context, chunkID uuid.UUID, vec []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chunks SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(vec), chunkID,
	)
	if err != nil {
		return fmt.Errorf("writing vector for chunk %s: %w", chunkID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s not found", chunkID)
	}
	return nil
}

// Search returns the k chunks most similar to the query vector for one
// chatbot, ordered by the pgvector cosine distance operator. The full
// candidate set is never materialized client-side. Chunks still waiting
// for their vector are excluded. An empty corpus yields an empty slice.
func (s *Store) Search(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx,
		`SELECT id, chatbot_id, file_name, seq, content, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE chatbot_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(query), chatbotID, k,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.ChatbotID, &sc.Chunk.FileName,
			&sc.Chunk.Seq, &sc.Chunk.Content, &sc.Chunk.CreatedAt, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}

	return results, nil
}

// Candidates loads every embedded chunk for a chatbot, for in-process
// similarity scoring. Suitable for small corpora only; large tenants
// should use Search instead.
func (s *Store) Candidates(ctx context.Context, chatbotID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chatbot_id, file_name, seq, content, embedding, created_at
		 FROM chunks
		 WHERE chatbot_id = $1 AND embedding IS NOT NULL
		 ORDER BY file_name, seq`,
		chatbotID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading candidates: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c   Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.ChatbotID, &c.FileName, &c.Seq, &c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidate rows: %w", err)
	}

	return chunks, nil
}

// DeleteByFile removes every chunk that came from one source file,
// scoped to the owning chatbot. Returns the number of rows removed.
// Safe to run concurrently with unrelated documents' ingestion.
func (s *Store) DeleteByFile(ctx context.Context, chatbotID uuid.UUID, fileName string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE chatbot_id = $1 AND file_name = $2`,
		chatbotID, fileName,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %q: %w", fileName, err)
	}

	s.logger.Debug("deleted file chunks",
		"chatbot_id", chatbotID, "file", fileName, "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// Count returns the number of chunks stored for a chatbot.
func (s *Store) Count(ctx context.Context, chatbotID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE chatbot_id = $1`, chatbotID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}
