package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/convo"
	"github.com/askdocs/askdocs/internal/retrieval"
)

type mockConfigs struct {
	cfg *chatbot.Config
	err error
}

func (m *mockConfigs) Load(ctx context.Context, id uuid.UUID) (*chatbot.Config, error) {
	return m.cfg, m.err
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.vec, m.err
}

type mockEngine struct {
	candidates []retrieval.Candidate
	err        error
}

func (m *mockEngine) TopK(ctx context.Context, chatbotID uuid.UUID, query []float32, k int) ([]retrieval.Candidate, error) {
	return m.candidates, m.err
}

type mockPicker struct {
	selected *retrieval.Candidate
	called   bool
}

func (m *mockPicker) Pick(ctx context.Context, query string, candidates []retrieval.Candidate) *retrieval.Candidate {
	m.called = true
	return m.selected
}

type mockSynth struct {
	answer string
	err    error
	called bool
}

func (m *mockSynth) Synthesize(ctx context.Context, cfg *chatbot.Config, selectedContext, question string, sink func(string) error) (string, error) {
	m.called = true
	if m.err != nil {
		return "", m.err
	}
	if sink != nil {
		if err := sink(m.answer); err != nil {
			return "", err
		}
	}
	return m.answer, nil
}

type mockConvos struct {
	appended    []string // user, assistant pairs flattened
	appendOwner string
	appendErr   error
	getErr      error
	getChatbot  uuid.UUID // ChatbotID the stored conversation reports
	returnID    uuid.UUID
}

func (m *mockConvos) Get(ctx context.Context, conversationID uuid.UUID, ownerID string) (*convo.Conversation, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &convo.Conversation{ID: conversationID, ChatbotID: m.getChatbot, OwnerID: ownerID}, nil
}

func (m *mockConvos) Append(ctx context.Context, conversationID, chatbotID uuid.UUID, ownerID, userText, assistantText string) (uuid.UUID, error) {
	if m.appendErr != nil {
		return uuid.Nil, m.appendErr
	}
	m.appendOwner = ownerID
	m.appended = append(m.appended, userText, assistantText)
	return m.returnID, nil
}

type deps struct {
	configs *mockConfigs
	emb     *mockEmbedder
	engine  *mockEngine
	picker  *mockPicker
	synth   *mockSynth
	convos  *mockConvos
}

func defaultDeps(mode chatbot.Mode) *deps {
	return &deps{
		configs: &mockConfigs{cfg: &chatbot.Config{
			ID:      uuid.New(),
			OwnerID: "owner-1",
			Mode:    mode,
		}},
		emb:    &mockEmbedder{vec: []float32{0.1, 0.2}},
		engine: &mockEngine{},
		picker: &mockPicker{},
		synth:  &mockSynth{answer: "the answer"},
		convos: &mockConvos{returnID: uuid.New()},
	}
}

func newService(t *testing.T, d *deps) *Service {
	t.Helper()
	s, err := NewService(d.configs, d.emb, d.engine, d.picker, d.synth, d.convos, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s
}

func turnReq() TurnRequest {
	return TurnRequest{
		ChatbotID: uuid.New(),
		OwnerID:   "owner-1",
		Message:   "What is your refund policy?",
	}
}

// Strict mode with no selected context must refuse without ever calling
// the completion model, and still persist the turn.
func TestTurnStrictNoContextRefuses(t *testing.T) {
	d := defaultDeps(chatbot.ModeStrict)
	d.picker.selected = nil
	s := newService(t, d)

	var streamed strings.Builder
	result, err := s.Turn(context.Background(), turnReq(), func(text string) error {
		streamed.WriteString(text)
		return nil
	})
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}

	if d.synth.called {
		t.Error("synthesizer was invoked for a strict refusal")
	}
	if result.Answer != RefusalText {
		t.Errorf("answer = %q, want refusal text", result.Answer)
	}
	if streamed.String() != RefusalText {
		t.Errorf("streamed = %q, want refusal text", streamed.String())
	}
	if len(d.convos.appended) != 2 {
		t.Fatalf("persisted %d messages, want user/assistant pair", len(d.convos.appended))
	}
	if d.convos.appended[1] != RefusalText {
		t.Errorf("persisted assistant message = %q, want refusal text", d.convos.appended[1])
	}
	if result.ConversationID != d.convos.returnID {
		t.Errorf("conversation id = %s, want %s", result.ConversationID, d.convos.returnID)
	}
}

func TestTurnFlexibleNoContextSynthesizes(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	d.picker.selected = nil
	s := newService(t, d)

	result, err := s.Turn(context.Background(), turnReq(), nil)
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if !d.synth.called {
		t.Error("synthesizer was not invoked in flexible mode")
	}
	if result.Answer != "the answer" {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestTurnStrictWithContextSynthesizes(t *testing.T) {
	d := defaultDeps(chatbot.ModeStrict)
	d.engine.candidates = []retrieval.Candidate{{Text: "refunds within 14 days", Score: 0.9}}
	d.picker.selected = &d.engine.candidates[0]
	s := newService(t, d)

	result, err := s.Turn(context.Background(), turnReq(), nil)
	if err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if !d.synth.called {
		t.Error("synthesizer was not invoked despite selected context")
	}
	if result.Answer == RefusalText {
		t.Error("turn refused despite selected context")
	}
}

func TestTurnValidation(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	s := newService(t, d)

	tests := []struct {
		name string
		req  TurnRequest
	}{
		{"missing chatbot id", TurnRequest{OwnerID: "owner-1", Message: "hi"}},
		{"empty message", TurnRequest{ChatbotID: uuid.New(), OwnerID: "owner-1"}},
		{"whitespace message", TurnRequest{ChatbotID: uuid.New(), OwnerID: "owner-1", Message: "  \n "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Turn(context.Background(), tt.req, nil)
			var ve *chatbot.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("Turn() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestTurnAuthorizationDenied(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	s := newService(t, d)

	req := turnReq()
	req.OwnerID = "someone-else"
	_, err := s.Turn(context.Background(), req, nil)
	if !errors.Is(err, chatbot.ErrAccessDenied) {
		t.Errorf("Turn() error = %v, want ErrAccessDenied", err)
	}
	if d.emb.vec != nil && d.picker.called {
		t.Error("retrieval proceeded for an unauthorized principal")
	}
}

func TestTurnPublicOriginAllowlist(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		origin    string
		wantErr   bool
	}{
		{"listed origin allowed", []string{"https://acme.example"}, "https://acme.example", false},
		{"unlisted origin denied", []string{"https://acme.example"}, "https://evil.example", true},
		{"empty allowlist permits any origin", nil, "https://anywhere.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := defaultDeps(chatbot.ModeFlexible)
			d.configs.cfg.EmbedAllowlist = tt.allowlist
			s := newService(t, d)

			req := turnReq()
			req.OwnerID = ""
			req.Origin = tt.origin
			_, err := s.Turn(context.Background(), req, nil)
			if tt.wantErr {
				if !errors.Is(err, chatbot.ErrAccessDenied) {
					t.Errorf("Turn() error = %v, want ErrAccessDenied", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Turn() error = %v, want nil", err)
			}
		})
	}
}

// Public-embed turns carry no principal; their conversations are
// attributed to the chatbot owner, never to the empty string.
func TestTurnPublicConversationOwnedByChatbotOwner(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	s := newService(t, d)

	req := turnReq()
	req.OwnerID = ""
	req.Origin = "https://anywhere.example"
	if _, err := s.Turn(context.Background(), req, nil); err != nil {
		t.Fatalf("Turn() error = %v", err)
	}
	if d.convos.appendOwner != "owner-1" {
		t.Errorf("conversation owner = %q, want chatbot owner %q", d.convos.appendOwner, "owner-1")
	}
}

func TestTurnCrossChatbotConversationRejected(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	d.convos.getChatbot = uuid.New()
	s := newService(t, d)

	req := turnReq()
	req.ConversationID = uuid.New()
	_, err := s.Turn(context.Background(), req, nil)
	if !errors.Is(err, chatbot.ErrNotFound) {
		t.Errorf("Turn() error = %v, want ErrNotFound", err)
	}
	if d.synth.called {
		t.Error("synthesis proceeded for a conversation of another chatbot")
	}
}

func TestTurnContinuesMatchingConversation(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	s := newService(t, d)

	req := turnReq()
	req.ConversationID = uuid.New()
	d.convos.getChatbot = req.ChatbotID
	if _, err := s.Turn(context.Background(), req, nil); err != nil {
		t.Errorf("Turn() error = %v, want nil", err)
	}
}

func TestTurnForeignConversationDenied(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	d.convos.getErr = chatbot.ErrAccessDenied
	s := newService(t, d)

	req := turnReq()
	req.ConversationID = uuid.New()
	_, err := s.Turn(context.Background(), req, nil)
	if !errors.Is(err, chatbot.ErrAccessDenied) {
		t.Errorf("Turn() error = %v, want ErrAccessDenied", err)
	}
	if d.synth.called {
		t.Error("synthesis proceeded for a foreign conversation")
	}
}

func TestTurnEmbedFailurePropagates(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	upstream := errors.New("embedding service down")
	d.emb.err = &chatbot.ProviderError{Op: "embed", Err: upstream}
	s := newService(t, d)

	_, err := s.Turn(context.Background(), turnReq(), nil)
	if !errors.Is(err, upstream) {
		t.Errorf("Turn() error = %v, want wrapped provider error", err)
	}
	if d.synth.called {
		t.Error("synthesis proceeded after embedding failure")
	}
	if len(d.convos.appended) != 0 {
		t.Error("failed turn was persisted")
	}
}

// A storage failure after the answer was produced degrades to a nil
// conversation id instead of failing the turn.
func TestTurnPersistenceDegrades(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	d.convos.appendErr = errors.New("database unreachable")
	s := newService(t, d)

	result, err := s.Turn(context.Background(), turnReq(), nil)
	if err != nil {
		t.Fatalf("Turn() error = %v, want degraded success", err)
	}
	if result.Answer != "the answer" {
		t.Errorf("answer = %q, lost to persistence failure", result.Answer)
	}
	if result.ConversationID != uuid.Nil {
		t.Errorf("conversation id = %s, want uuid.Nil sentinel", result.ConversationID)
	}
}

// An aborted synthesis drops the turn entirely.
func TestTurnSynthesisFailureNotPersisted(t *testing.T) {
	d := defaultDeps(chatbot.ModeFlexible)
	d.synth.err = context.Canceled
	s := newService(t, d)

	_, err := s.Turn(context.Background(), turnReq(), nil)
	if err == nil {
		t.Fatal("Turn() error = nil, want synthesis failure")
	}
	if len(d.convos.appended) != 0 {
		t.Error("aborted turn was persisted")
	}
}

func TestGate(t *testing.T) {
	tests := []struct {
		name     string
		mode     chatbot.Mode
		selected string
		want     gateDecision
	}{
		{"strict with context answers", chatbot.ModeStrict, "some passage", gateAnswer},
		{"strict without context refuses", chatbot.ModeStrict, "", gateRefuse},
		{"flexible with context answers", chatbot.ModeFlexible, "some passage", gateAnswer},
		{"flexible without context goes general", chatbot.ModeFlexible, "", gateGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gate(tt.mode, tt.selected); got != tt.want {
				t.Errorf("gate(%s, %q) = %d, want %d", tt.mode, tt.selected, got, tt.want)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Run("strict forbids outside knowledge", func(t *testing.T) {
		p := buildSystemPrompt("You are Acme support.", chatbot.ModeStrict, "passage text")
		if !strings.Contains(p, "You are Acme support.") {
			t.Error("persona missing from prompt")
		}
		if !strings.Contains(p, "ONLY") {
			t.Error("strict rules missing from prompt")
		}
		if !strings.Contains(p, "SOURCES:\npassage text") {
			t.Error("selected context missing from prompt")
		}
	})
	t.Run("flexible allows general knowledge", func(t *testing.T) {
		p := buildSystemPrompt("", chatbot.ModeFlexible, "")
		if !strings.Contains(p, "general knowledge") {
			t.Error("flexible rules missing from prompt")
		}
		if !strings.Contains(p, noSourcesMarker) {
			t.Error("none-marker missing when no context selected")
		}
		if !strings.Contains(p, defaultPersona) {
			t.Error("default persona missing for empty persona")
		}
	})
}
