// Package api exposes the ingestion and chat pipeline over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Turns         turnRunner         // Required
	Pipeline      ingester           // Required
	Files         fileStore          // Required
	Chatbots      botLoader          // Required
	Conversations conversationReader // Required
	Pool          *pgxpool.Pool      // Optional: nil disables pool stats in /readyz
	CORSOrigins   []string
	TrustProxy    bool
	RateRPS       float64 // 0 = default 10 tokens/sec
	RateBurst     int     // 0 = default 20
}

// Server is the HTTP server for the pipeline API.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires all routes and middleware.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Turns == nil:
		return nil, errors.New("turn service is required")
	case cfg.Pipeline == nil:
		return nil, errors.New("ingest pipeline is required")
	case cfg.Files == nil:
		return nil, errors.New("file store is required")
	case cfg.Chatbots == nil:
		return nil, errors.New("chatbot loader is required")
	case cfg.Conversations == nil:
		return nil, errors.New("conversation store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{turns: cfg.Turns, logger: logger}
	ih := &ingestHandler{pipeline: cfg.Pipeline, files: cfg.Files, bots: cfg.Chatbots, logger: logger}
	vh := &conversationHandler{store: cfg.Conversations, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.handle)
	mux.HandleFunc("POST /api/v1/ingest", ih.upload)
	mux.HandleFunc("DELETE /api/v1/files", ih.deleteFile)
	mux.HandleFunc("GET /api/v1/conversations/{id}", vh.get)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", vh.messages)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	rl := newRateLimiter(rps, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID sits before Logging so request_id is available in log
	// attributes; CORS before RateLimit so preflight OPTIONS gets
	// proper headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("GET /readyz", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
