package chat

import (
	"github.com/askdocs/askdocs/internal/chatbot"
)

// RefusalText is the answer returned in strict mode when retrieval
// selected no supporting context. It is streamed to the client verbatim
// and persisted as the assistant message.
const RefusalText = "Üzgünüm, bu bilgi yüklediğiniz belgelerde bulunmuyor."

// gateDecision selects the downstream path for a chat turn.
type gateDecision int

const (
	// gateAnswer synthesizes an answer grounded in the selected context.
	gateAnswer gateDecision = iota
	// gateRefuse returns RefusalText without calling the model.
	gateRefuse
	// gateGeneral synthesizes from general knowledge with no sources.
	gateGeneral
)

// gate applies the chatbot's answering policy. Strict chatbots refuse
// the turn when the reranker selected nothing; flexible chatbots fall
// back to the model's general knowledge instead. The gate itself has no
// side effects.
func gate(mode chatbot.Mode, selectedContext string) gateDecision {
	if selectedContext != "" {
		return gateAnswer
	}
	if mode == chatbot.ModeStrict {
		return gateRefuse
	}
	return gateGeneral
}
