// Package chat orchestrates a single question/answer turn: retrieval,
// mode gating, answer synthesis, and best-effort conversation
// persistence.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/convo"
	"github.com/askdocs/askdocs/internal/retrieval"
)

// embedder is the slice of embed.Gateway the turn needs.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// picker is the slice of rerank.Picker the turn needs.
type picker interface {
	Pick(ctx context.Context, query string, candidates []retrieval.Candidate) *retrieval.Candidate
}

// configLoader resolves chatbot configuration.
type configLoader interface {
	Load(ctx context.Context, id uuid.UUID) (*chatbot.Config, error)
}

// conversations is the slice of convo.Store the turn needs.
type conversations interface {
	Get(ctx context.Context, conversationID uuid.UUID, ownerID string) (*convo.Conversation, error)
	Append(ctx context.Context, conversationID, chatbotID uuid.UUID, ownerID, userText, assistantText string) (uuid.UUID, error)
}

// answerer is the slice of Synthesizer the turn needs.
type answerer interface {
	Synthesize(ctx context.Context, cfg *chatbot.Config, selectedContext, question string, sink func(string) error) (string, error)
}

// TurnRequest carries one chat turn from the transport layer.
type TurnRequest struct {
	ChatbotID      uuid.UUID
	ConversationID uuid.UUID // uuid.Nil starts a new conversation
	OwnerID        string    // empty for public embed callers
	Origin         string    // browser Origin header, checked for public callers
	Message        string
}

// TurnResult is the outcome of a completed turn. ConversationID is
// uuid.Nil when persistence degraded; the answer is still valid.
type TurnResult struct {
	Answer         string
	ConversationID uuid.UUID
}

// Service runs chat turns end to end.
type Service struct {
	configs     configLoader
	embedder    embedder
	engine      retrieval.Engine
	picker      picker
	synthesizer answerer
	convos      conversations
	topK        int
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTopK overrides the retrieval shortlist size.
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService wires a turn pipeline. All dependencies are required
// except logger.
func NewService(configs configLoader, emb embedder, engine retrieval.Engine, picker picker, synth answerer, convos conversations, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	switch {
	case configs == nil:
		return nil, fmt.Errorf("config loader is required")
	case emb == nil:
		return nil, fmt.Errorf("embedder is required")
	case engine == nil:
		return nil, fmt.Errorf("retrieval engine is required")
	case picker == nil:
		return nil, fmt.Errorf("reranker is required")
	case synth == nil:
		return nil, fmt.Errorf("synthesizer is required")
	case convos == nil:
		return nil, fmt.Errorf("conversation store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		configs:     configs,
		embedder:    emb,
		engine:      engine,
		picker:      picker,
		synthesizer: synth,
		convos:      convos,
		topK:        retrieval.DefaultTopK,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Turn runs one question/answer turn. Answer text is streamed through
// sink as it is produced; the full accumulated answer and the
// conversation id come back in the result.
//
// A persistence failure after the answer was produced does not fail the
// turn: the error is logged and the result carries uuid.Nil as the
// conversation id.
func (s *Service) Turn(ctx context.Context, req TurnRequest, sink func(string) error) (*TurnResult, error) {
	if req.ChatbotID == uuid.Nil {
		return nil, &chatbot.ValidationError{Field: "chatbotId", Reason: "is required"}
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		return nil, &chatbot.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	cfg, err := s.configs.Load(ctx, req.ChatbotID)
	if err != nil {
		return nil, err
	}
	// Public embed callers carry no principal; their browser origin
	// must be on the chatbot's embed allowlist, and their
	// conversations belong to the chatbot owner.
	owner := req.OwnerID
	if owner == "" {
		if !cfg.AllowsOrigin(req.Origin) {
			return nil, fmt.Errorf("origin %q not allowed for chatbot %s: %w", req.Origin, cfg.ID, chatbot.ErrAccessDenied)
		}
		owner = cfg.OwnerID
	} else if err := cfg.Authorize(owner); err != nil {
		return nil, err
	}
	// Continuing an existing conversation requires owning it, and the
	// conversation must belong to the requested chatbot. Checked
	// before any retrieval or synthesis happens.
	if req.ConversationID != uuid.Nil {
		conv, err := s.convos.Get(ctx, req.ConversationID, owner)
		if err != nil {
			return nil, err
		}
		if conv.ChatbotID != req.ChatbotID {
			return nil, fmt.Errorf("conversation %s does not belong to chatbot %s: %w", conv.ID, req.ChatbotID, chatbot.ErrNotFound)
		}
	}

	selected, err := s.retrieveContext(ctx, req.ChatbotID, question)
	if err != nil {
		return nil, err
	}

	var answer string
	switch gate(cfg.Mode, selected) {
	case gateRefuse:
		answer = RefusalText
		if sink != nil {
			if err := sink(answer); err != nil {
				return nil, fmt.Errorf("streaming refusal: %w", err)
			}
		}
	default:
		answer, err = s.synthesizer.Synthesize(ctx, cfg, selected, question, sink)
		if err != nil {
			return nil, err
		}
	}

	result := &TurnResult{Answer: answer}
	cid, err := s.convos.Append(ctx, req.ConversationID, req.ChatbotID, owner, question, answer)
	if err != nil {
		// The answer already reached the client; storage trouble must
		// not take it back.
		s.logger.Error("conversation persistence degraded",
			"chatbot_id", req.ChatbotID,
			"conversation_id", req.ConversationID,
			"error", err,
		)
		return result, nil
	}
	result.ConversationID = cid
	return result, nil
}

// retrieveContext embeds the question, ranks the chatbot's chunks, and
// asks the reranker for the single best passage. An empty string means
// no supporting context was found.
func (s *Service) retrieveContext(ctx context.Context, chatbotID uuid.UUID, question string) (string, error) {
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", err
	}

	candidates, err := s.engine.TopK(ctx, chatbotID, vec, s.topK)
	if err != nil {
		return "", fmt.Errorf("retrieving candidates: %w", err)
	}

	best := s.picker.Pick(ctx, question, candidates)
	if best == nil {
		return "", nil
	}
	return best.Text, nil
}
