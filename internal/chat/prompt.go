package chat

import (
	"fmt"
	"strings"

	"github.com/askdocs/askdocs/internal/chatbot"
)

const defaultPersona = "You are a helpful assistant answering questions about the documents you have been given."

const strictRules = `Answer ONLY from the source passages below. Do not use outside knowledge.
If the passages do not contain the answer, say so instead of guessing.
Answer in the same language the user writes in.`

const flexibleRules = `Prefer the source passages below when they are relevant.
When the passages are absent or insufficient, answer from general knowledge.
Answer in the same language the user writes in.`

const noSourcesMarker = "(no source passages were retrieved for this question)"

// buildSystemPrompt assembles the system prompt for one turn: the
// chatbot's persona, then the mode rules, then a SOURCES section with
// the selected context or an explicit none-marker. Keeping the marker
// explicit stops the model from hallucinating citations to passages
// that were never provided.
func buildSystemPrompt(persona string, mode chatbot.Mode, selectedContext string) string {
	if strings.TrimSpace(persona) == "" {
		persona = defaultPersona
	}

	rules := flexibleRules
	if mode == chatbot.ModeStrict {
		rules = strictRules
	}

	sources := noSourcesMarker
	if selectedContext != "" {
		sources = selectedContext
	}

	return fmt.Sprintf("%s\n\n%s\n\nSOURCES:\n%s", strings.TrimSpace(persona), rules, sources)
}
