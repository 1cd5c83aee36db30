package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/askdocs/askdocs/internal/chatbot"
)

// streamErrorMarker is emitted in-band when the provider fails after
// tokens have already reached the client. The stream cannot be retried
// at that point without duplicating visible text.
const streamErrorMarker = "\n[error: answer interrupted]"

// Completer produces a streamed completion for one prompt pair. onChunk
// is invoked for each text fragment as it arrives; the returned string
// is the full accumulated answer.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) (string, error)
}

// GenkitCompleter backs Completer with a Genkit model call.
type GenkitCompleter struct {
	G         *genkit.Genkit
	ModelName string
}

func (c *GenkitCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, onChunk func(string) error) (string, error) {
	resp, err := genkit.Generate(ctx, c.G,
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
		ai.WithModelName(c.ModelName),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if onChunk == nil {
				return nil
			}
			return onChunk(chunk.Text())
		}),
	)
	if err != nil {
		return "", &chatbot.ProviderError{Op: "complete", Err: err}
	}
	return resp.Text(), nil
}

// Synthesizer turns a gated chat turn into streamed answer text.
type Synthesizer struct {
	completer Completer
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) SynthesizerOption {
	return func(s *Synthesizer) { s.retry = cfg }
}

// WithRateLimiter throttles completion attempts.
func WithRateLimiter(l *rate.Limiter) SynthesizerOption {
	return func(s *Synthesizer) { s.limiter = l }
}

// NewSynthesizer creates a Synthesizer. logger may be nil.
func NewSynthesizer(completer Completer, logger *slog.Logger, opts ...SynthesizerOption) (*Synthesizer, error) {
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synthesizer{
		completer: completer,
		retry:     DefaultRetryConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize builds the system prompt for the turn and streams the
// model's answer through sink, returning the full accumulated text.
//
// Failures before the first token surface as errors after retries are
// exhausted. Failures mid-stream degrade in-band instead: the error
// marker is appended to whatever was already streamed and Synthesize
// returns the partial text without an error.
func (s *Synthesizer) Synthesize(ctx context.Context, cfg *chatbot.Config, selectedContext, question string, sink func(string) error) (string, error) {
	system := buildSystemPrompt(cfg.SystemPrompt, cfg.Mode, selectedContext)

	var (
		acc     strings.Builder
		started bool
	)
	forward := func(text string) error {
		started = true
		acc.WriteString(text)
		if sink != nil {
			return sink(text)
		}
		return nil
	}

	err := s.withRetry(ctx, func(ctx context.Context) error {
		full, err := s.completer.Complete(ctx, system, question, forward)
		if err != nil {
			if started {
				return &permanentError{err: err}
			}
			return err
		}
		// Some providers return trailing text never surfaced through
		// the streaming callback. Forward only a true suffix of the
		// final text; a final text that diverges from what was
		// streamed must not be re-emitted on top of it.
		if extra, ok := strings.CutPrefix(full, acc.String()); ok && extra != "" {
			return forward(extra)
		}
		return nil
	})
	if err != nil {
		// Degrade in-band only while the client is still connected;
		// an aborted turn is dropped, not patched up.
		var pe *permanentError
		if errors.As(err, &pe) && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("completion failed mid-stream, degrading in-band", "error", pe.Unwrap())
			acc.WriteString(streamErrorMarker)
			if sink != nil {
				if sinkErr := sink(streamErrorMarker); sinkErr != nil {
					s.logger.Debug("client gone before error marker", "error", sinkErr)
				}
			}
			return acc.String(), nil
		}
		return "", err
	}

	return acc.String(), nil
}
