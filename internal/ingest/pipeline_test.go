package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/askdocs/askdocs/internal/chatbot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockEmbedder struct {
	mu       sync.Mutex
	inFlight int32
	maxSeen  int32
	failFor  map[string]bool
	calls    int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	cur := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	m.mu.Lock()
	if cur > m.maxSeen {
		m.maxSeen = cur
	}
	m.calls++
	fail := false
	for marker := range m.failFor {
		if strings.Contains(text, marker) {
			fail = true
		}
	}
	m.mu.Unlock()

	if fail {
		return nil, &chatbot.ProviderError{Op: "embed", Err: errors.New("quota exceeded")}
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockStore struct {
	mu      sync.Mutex
	ids     []uuid.UUID
	texts   []string
	vectors map[uuid.UUID][]float32

	insertErr error
	setErr    map[uuid.UUID]error
}

func (m *mockStore) InsertPlaceholders(ctx context.Context, chatbotID uuid.UUID, fileName string, texts []string) ([]uuid.UUID, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = texts
	m.ids = make([]uuid.UUID, len(texts))
	for i := range texts {
		m.ids[i] = uuid.New()
	}
	return m.ids, nil
}

func (m *mockStore) SetVector(ctx context.Context, chunkID uuid.UUID, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setErr[chunkID]; err != nil {
		return err
	}
	if m.vectors == nil {
		m.vectors = make(map[uuid.UUID][]float32)
	}
	m.vectors[chunkID] = vec
	return nil
}

func newPipeline(t *testing.T, emb embedder, store chunkStore, opts ...PipelineOption) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, store, nil, opts...)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func docText(paragraphs int) string {
	var sb strings.Builder
	for i := 0; i < paragraphs; i++ {
		sb.WriteString(strings.Repeat("word ", 40))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func TestIngestStoresEveryChunkVector(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	p := newPipeline(t, emb, store)

	result, err := p.Ingest(context.Background(), Request{
		ChatbotID: uuid.New(),
		FileName:  "manual.pdf",
		Text:      docText(20),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Chunks == 0 {
		t.Fatal("no chunks produced")
	}
	if result.Embedded != result.Chunks {
		t.Errorf("embedded = %d, want %d", result.Embedded, result.Chunks)
	}
	if len(store.vectors) != result.Chunks {
		t.Errorf("stored %d vectors, want %d", len(store.vectors), result.Chunks)
	}
	for _, id := range store.ids {
		if _, ok := store.vectors[id]; !ok {
			t.Errorf("chunk %s has no vector", id)
		}
	}
}

func TestIngestBoundsConcurrency(t *testing.T) {
	emb := &mockEmbedder{}
	store := &mockStore{}
	p := newPipeline(t, emb, store, WithConcurrency(3))

	if _, err := p.Ingest(context.Background(), Request{
		ChatbotID: uuid.New(),
		FileName:  "big.txt",
		Text:      docText(40),
	}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if emb.maxSeen > 3 {
		t.Errorf("observed %d concurrent embeddings, limit is 3", emb.maxSeen)
	}
}

// One chunk's embedding failure must not fail the document; the chunk
// keeps its placeholder row without a vector.
func TestIngestPerChunkFailureNotFatal(t *testing.T) {
	store := &mockStore{}
	failing := strings.TrimSpace(strings.Repeat("poison ", 30))
	emb := &mockEmbedder{failFor: map[string]bool{failing: true}}
	p := newPipeline(t, emb, store)

	text := failing + "\n\n" + docText(5)
	result, err := p.Ingest(context.Background(), Request{
		ChatbotID: uuid.New(),
		FileName:  "mixed.txt",
		Text:      text,
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Embedded != result.Chunks-1 {
		t.Errorf("embedded = %d, want %d", result.Embedded, result.Chunks-1)
	}
}

func TestIngestValidation(t *testing.T) {
	p := newPipeline(t, &mockEmbedder{}, &mockStore{})

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"missing chatbot id", Request{FileName: "a.txt", Text: "hello world content"}, nil},
		{"missing file name", Request{ChatbotID: uuid.New(), Text: "hello world content"}, nil},
		{"empty text", Request{ChatbotID: uuid.New(), FileName: "a.txt"}, chatbot.ErrUnextractable},
		{"whitespace text", Request{ChatbotID: uuid.New(), FileName: "a.txt", Text: " \n\t "}, chatbot.ErrUnextractable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Ingest(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Ingest() error = nil")
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			var ve *chatbot.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error = %v, want ValidationError", err)
			}
		})
	}
}

func TestIngestInsertFailureFatal(t *testing.T) {
	store := &mockStore{insertErr: errors.New("database unreachable")}
	p := newPipeline(t, &mockEmbedder{}, store)

	_, err := p.Ingest(context.Background(), Request{
		ChatbotID: uuid.New(),
		FileName:  "a.txt",
		Text:      docText(3),
	})
	if err == nil {
		t.Fatal("Ingest() error = nil, placeholder insert failure must be fatal")
	}
}
