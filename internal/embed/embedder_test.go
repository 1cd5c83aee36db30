package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/log"
)

// mockEmbedder implements ai.Embedder for testing.
type mockEmbedder struct {
	embedErr    error
	returnEmpty bool
	embeddings  []float32
	callCount   int
	lastInput   string
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(r api.Registry) {}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInput = req.Input[0].Content[0].Text
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if m.returnEmpty {
		return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: []float32{}}}}, nil
	}
	emb := m.embeddings
	if emb == nil {
		emb = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: emb}}}, nil
}

func TestNewRequiresEmbedder(t *testing.T) {
	if _, err := New(nil, log.NewNop()); err == nil {
		t.Error("expected error for nil embedder")
	}
}

func TestEmbedSuccess(t *testing.T) {
	mock := &mockEmbedder{embeddings: []float32{0.5, 0.5, 0.7}}
	g, err := New(mock, log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := g.Embed(context.Background(), "what is the refund policy")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
	if mock.lastInput != "what is the refund policy" {
		t.Errorf("provider received %q", mock.lastInput)
	}
}

func TestEmbedEmptyText(t *testing.T) {
	g, _ := New(&mockEmbedder{}, log.NewNop())

	_, err := g.Embed(context.Background(), "   \n ")
	var verr *chatbot.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestEmbedProviderFailurePropagates(t *testing.T) {
	upstream := errors.New("503 service unavailable")
	g, _ := New(&mockEmbedder{embedErr: upstream}, log.NewNop())

	_, err := g.Embed(context.Background(), "some query")
	var perr *chatbot.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !errors.Is(err, upstream) {
		t.Error("ProviderError should wrap the upstream cause")
	}
	if perr.Op != "embed" {
		t.Errorf("Op = %q, want embed", perr.Op)
	}
}

func TestEmbedEmptyResponseIsProviderError(t *testing.T) {
	g, _ := New(&mockEmbedder{returnEmpty: true}, log.NewNop())

	_, err := g.Embed(context.Background(), "some query")
	var perr *chatbot.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError for empty response, got %v", err)
	}
}
