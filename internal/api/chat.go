package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/chat"
	"github.com/askdocs/askdocs/internal/stream"
)

// turnRunner is the slice of chat.Service the handler needs.
type turnRunner interface {
	Turn(ctx context.Context, req chat.TurnRequest, sink func(string) error) (*chat.TurnResult, error)
}

type chatHandler struct {
	turns  turnRunner
	logger *slog.Logger
}

type chatRequest struct {
	ChatbotID      string `json:"chatbotId"`
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

// handle streams a chat answer as text/plain: answer tokens as they
// arrive, then the conversation-id marker. Errors that occur before the
// first token produce a JSON error response; once streaming has begun
// the status is already committed, so the stream simply ends.
func (h *chatHandler) handle(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON", h.logger)
		return
	}

	req := chat.TurnRequest{
		OwnerID: ownerID(r),
		Origin:  r.Header.Get("Origin"),
		Message: body.Message,
	}
	if body.ChatbotID != "" {
		id, err := uuid.Parse(body.ChatbotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "chatbotId is not a valid uuid", h.logger)
			return
		}
		req.ChatbotID = id
	}
	if body.ConversationID != "" {
		id, err := uuid.Parse(body.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "conversationId is not a valid uuid", h.logger)
			return
		}
		req.ConversationID = id
	}

	flusher, _ := w.(http.Flusher)
	streamed := false
	sink := func(text string) error {
		if !streamed {
			streamed = true
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}
		if _, err := fmt.Fprint(w, text); err != nil {
			return fmt.Errorf("writing answer chunk: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	result, err := h.turns.Turn(r.Context(), req, sink)
	if err != nil {
		if streamed {
			// Headers are committed; nothing more can be sent safely.
			h.logger.Warn("turn failed mid-stream", "error", err,
				"request_id", requestIDFromContext(r.Context()))
			return
		}
		writeDomainError(w, err, h.logger)
		return
	}

	if !streamed {
		// The synthesizer produced no tokens; still deliver the full
		// answer so the client sees a complete response.
		if err := sink(result.Answer); err != nil {
			return
		}
	}
	if err := stream.WriteMarker(w, result.ConversationID); err != nil {
		h.logger.Debug("writing conversation marker", "error", err)
		return
	}
	if flusher != nil {
		flusher.Flush()
	}
}
