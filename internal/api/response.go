package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/askdocs/askdocs/internal/chatbot"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response. Encoding goes to a buffer first so
// headers are only sent after successful encoding and a real 500 can be
// returned when encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("encoding JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Client disconnects are common and expected.
		logger.Debug("writing response body", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}}, logger)
}

// writeDomainError maps pipeline errors onto HTTP responses. Provider
// failures hide upstream detail behind a generic 502.
func writeDomainError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var ve *chatbot.ValidationError
	var pe *chatbot.ProviderError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_error", ve.Error(), logger)
	case errors.Is(err, chatbot.ErrUnextractable):
		writeError(w, http.StatusUnprocessableEntity, "unextractable", "no text could be extracted from the document", logger)
	case errors.Is(err, chatbot.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", "you do not have access to this resource", logger)
	case errors.Is(err, chatbot.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found", logger)
	case errors.As(err, &pe):
		logger.Error("upstream provider failure", "op", pe.Op, "error", pe.Err)
		writeError(w, http.StatusBadGateway, "provider_error", "upstream provider is unavailable", logger)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
