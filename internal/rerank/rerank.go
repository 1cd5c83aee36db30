// Package rerank runs a secondary relevance judgment over the retrieval
// shortlist. A cheap judge model picks the single best candidate via a
// constrained one-integer response, which is far cheaper than running
// the answer model over every candidate and yields one clean grounding
// passage instead of a noisy concatenation.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/askdocs/askdocs/internal/retrieval"
)

// Timeout bounds the judge call. The response is a single integer, so
// anything slow here is a provider problem, not a workload problem.
const Timeout = 10 * time.Second

// firstInt matches the first integer anywhere in the judge's response,
// tolerating prose like "The answer is 2." from imperfect models.
var firstInt = regexp.MustCompile(`\d+`)

// Judge produces a completion for a rerank prompt. Satisfied by
// GenkitJudge in production and by mocks in tests.
type Judge interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// GenkitJudge invokes the configured judge model through genkit.
type GenkitJudge struct {
	G         *genkit.Genkit
	ModelName string
}

// Judge runs a single non-streaming generation.
func (j *GenkitJudge) Judge(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, j.G,
		ai.WithPrompt(prompt),
		ai.WithModelName(j.ModelName),
	)
	if err != nil {
		return "", fmt.Errorf("judge generation: %w", err)
	}
	return resp.Text(), nil
}

// Picker selects the most relevant candidate for a query.
//
// Picker is safe for concurrent use by multiple goroutines.
type Picker struct {
	judge  Judge
	logger *slog.Logger
}

// NewPicker creates a Picker. logger may be nil.
func NewPicker(judge Judge, logger *slog.Logger) (*Picker, error) {
	if judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Picker{judge: judge, logger: logger}, nil
}

// Pick returns the single best candidate for the query, or nil when
// there is no usable selection.
//
// Failure here is always a soft degrade, never a hard error: an
// unreachable judge, an unparsable response, or an out-of-range index
// all yield a nil selection, and the turn proceeds with empty context.
func (p *Picker) Pick(ctx context.Context, query string, candidates []retrieval.Candidate) *retrieval.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	resp, err := p.judge.Judge(ctx, buildPrompt(query, candidates))
	if err != nil {
		p.logger.Warn("rerank judge failed, proceeding without context", "error", err)
		return nil
	}

	idx, ok := parseSelection(resp, len(candidates))
	if !ok {
		p.logger.Warn("rerank response unusable, proceeding without context",
			"response_len", len(resp), "candidates", len(candidates))
		return nil
	}

	selected := candidates[idx]
	p.logger.Debug("rerank selected candidate", "index", idx+1, "score", selected.Score)
	return &selected
}

// buildPrompt enumerates the candidates with 1-based indices and
// instructs the judge to answer with exactly one integer.
func buildPrompt(query string, candidates []retrieval.Candidate) string {
	var b strings.Builder
	b.WriteString("You are a relevance judge. Given a user question and numbered text passages, ")
	b.WriteString("identify the single passage that best answers the question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, c.Text)
	}
	fmt.Fprintf(&b, "Respond with ONLY the number (1-%d) of the most relevant passage. No other text.", len(candidates))
	return b.String()
}

// parseSelection extracts the first integer from the judge's response
// and maps it into the candidate range. Returns ok=false for no
// integer, zero, or out-of-range values.
func parseSelection(resp string, n int) (int, bool) {
	match := firstInt.FindString(resp)
	if match == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(match)
	if err != nil || idx < 1 || idx > n {
		return 0, false
	}
	return idx - 1, true
}
