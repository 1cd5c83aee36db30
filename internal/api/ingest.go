package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/ingest"
)

// ingester is the slice of ingest.Pipeline the handler needs.
type ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// fileStore is the slice of knowledge.Store the handler needs.
type fileStore interface {
	DeleteByFile(ctx context.Context, chatbotID uuid.UUID, fileName string) (int64, error)
}

// botLoader resolves chatbot configuration for authorization.
type botLoader interface {
	Load(ctx context.Context, id uuid.UUID) (*chatbot.Config, error)
}

type ingestHandler struct {
	pipeline ingester
	files    fileStore
	bots     botLoader
	logger   *slog.Logger
}

type ingestRequest struct {
	ChatbotID     string `json:"chatbotId"`
	FileName      string `json:"fileName"`
	ExtractedText string `json:"extractedText"`
	MimeType      string `json:"mimeType,omitempty"`
}

type ingestResponse struct {
	Chunks   int `json:"chunks"`
	Embedded int `json:"embedded"`
}

// authorize loads the chatbot and checks the caller owns it.
func (h *ingestHandler) authorize(r *http.Request, rawID string) (uuid.UUID, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, &chatbot.ValidationError{Field: "chatbotId", Reason: "is not a valid uuid"}
	}
	cfg, err := h.bots.Load(r.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	if err := cfg.Authorize(ownerID(r)); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// upload ingests one extracted document for a chatbot the caller owns.
func (h *ingestHandler) upload(w http.ResponseWriter, r *http.Request) {
	var body ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON", h.logger)
		return
	}

	id, err := h.authorize(r, body.ChatbotID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), ingest.Request{
		ChatbotID: id,
		FileName:  body.FileName,
		Text:      body.ExtractedText,
		MimeType:  body.MimeType,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Chunks: result.Chunks, Embedded: result.Embedded}, h.logger)
}

type deleteFileRequest struct {
	ChatbotID string `json:"chatbotId"`
	FileName  string `json:"fileName"`
}

// deleteFile removes every chunk of one uploaded file.
func (h *ingestHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	var body deleteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON", h.logger)
		return
	}
	if strings.TrimSpace(body.FileName) == "" {
		writeDomainError(w, &chatbot.ValidationError{Field: "fileName", Reason: "is required"}, h.logger)
		return
	}

	id, err := h.authorize(r, body.ChatbotID)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	deleted, err := h.files.DeleteByFile(r.Context(), id, body.FileName)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted}, h.logger)
}
