package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/convo"
)

// conversationReader is the slice of convo.Store the handler needs.
type conversationReader interface {
	Get(ctx context.Context, conversationID uuid.UUID, ownerID string) (*convo.Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, ownerID string) ([]convo.Message, error)
}

type conversationHandler struct {
	store  conversationReader
	logger *slog.Logger
}

type conversationResponse struct {
	ID           string    `json:"id"`
	ChatbotID    string    `json:"chatbotId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *conversationHandler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "conversation id is not a valid uuid", h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// get returns one conversation's metadata.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	c, err := h.store.Get(r.Context(), id, ownerID(r))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		ID:           c.ID.String(),
		ChatbotID:    c.ChatbotID.String(),
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, h.logger)
}

// messages returns the full message log in append order.
func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.Messages(r.Context(), id, ownerID(r))
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			Role:      string(m.Role),
			Content:   m.Content,
			Seq:       m.Seq,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out}, h.logger)
}
