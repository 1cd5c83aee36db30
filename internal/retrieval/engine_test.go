package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/knowledge"
)

// mockLoader implements chunkLoader.
type mockLoader struct {
	chunks []knowledge.Chunk
	err    error
}

func (m *mockLoader) Candidates(ctx context.Context, chatbotID uuid.UUID) ([]knowledge.Chunk, error) {
	return m.chunks, m.err
}

// mockSearcher implements chunkSearcher.
type mockSearcher struct {
	results []knowledge.ScoredChunk
	err     error
	gotK    int
}

func (m *mockSearcher) Search(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]knowledge.ScoredChunk, error) {
	m.gotK = k
	return m.results, m.err
}

func chunkWithVector(text string, vec []float32) knowledge.Chunk {
	return knowledge.Chunk{ID: uuid.New(), Content: text, Embedding: vec}
}

func TestMemoryEngineRanksDescending(t *testing.T) {
	loader := &mockLoader{chunks: []knowledge.Chunk{
		chunkWithVector("orthogonal", []float32{0, 1}),
		chunkWithVector("exact match", []float32{1, 0}),
		chunkWithVector("partial match", []float32{1, 1}),
	}}
	engine := NewMemoryEngine(loader)

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Text != "exact match" {
		t.Errorf("top candidate = %q, want exact match", got[0].Text)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at index %d", i)
		}
	}
}

func TestMemoryEngineLimitsToK(t *testing.T) {
	var chunks []knowledge.Chunk
	for range 10 {
		chunks = append(chunks, chunkWithVector("text", []float32{1, 0}))
	}
	engine := NewMemoryEngine(&mockLoader{chunks: chunks})

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 candidates, got %d", len(got))
	}
}

func TestMemoryEngineEmptyCorpus(t *testing.T) {
	engine := NewMemoryEngine(&mockLoader{})

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("empty corpus is not an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d candidates", len(got))
	}
}

func TestMemoryEngineStableTieBreak(t *testing.T) {
	loader := &mockLoader{chunks: []knowledge.Chunk{
		chunkWithVector("first", []float32{1, 0}),
		chunkWithVector("second", []float32{1, 0}),
		chunkWithVector("third", []float32{1, 0}),
	}}
	engine := NewMemoryEngine(loader)

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("tie order broken at %d: got %q want %q", i, got[i].Text, w)
		}
	}
}

func TestMemoryEngineZeroQueryVector(t *testing.T) {
	loader := &mockLoader{chunks: []knowledge.Chunk{
		chunkWithVector("anything", []float32{1, 0}),
	}}
	engine := NewMemoryEngine(loader)

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if got[0].Score != 0 {
		t.Errorf("zero query vector should yield score 0, got %v", got[0].Score)
	}
}

func TestStoreEngineConvertsResults(t *testing.T) {
	searcher := &mockSearcher{results: []knowledge.ScoredChunk{
		{Chunk: knowledge.Chunk{Content: "best"}, Similarity: 0.92},
		{Chunk: knowledge.Chunk{Content: "second"}, Similarity: 0.81},
	}}
	engine := NewStoreEngine(searcher)

	got, err := engine.TopK(context.Background(), uuid.New(), []float32{1}, 2)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(got) != 2 || got[0].Text != "best" || got[0].Score != 0.92 {
		t.Errorf("unexpected conversion: %+v", got)
	}
}

func TestStoreEngineDefaultsK(t *testing.T) {
	searcher := &mockSearcher{}
	engine := NewStoreEngine(searcher)

	if _, err := engine.TopK(context.Background(), uuid.New(), []float32{1}, 0); err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if searcher.gotK != DefaultTopK {
		t.Errorf("k = %d, want default %d", searcher.gotK, DefaultTopK)
	}
}

func TestStoreEnginePropagatesError(t *testing.T) {
	boom := errors.New("connection refused")
	engine := NewStoreEngine(&mockSearcher{err: boom})

	_, err := engine.TopK(context.Background(), uuid.New(), []float32{1}, 5)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
