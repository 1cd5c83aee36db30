// Package app wires the pipeline together: configuration, database
// pool, Genkit provider clients, stores, and the services built on top
// of them. Provider clients are constructed once here and passed into
// each component explicitly, so tests can substitute stubs.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askdocs/askdocs/internal/chat"
	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/convo"
	"github.com/askdocs/askdocs/internal/ingest"
	"github.com/askdocs/askdocs/internal/knowledge"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Chatbots      *chatbot.Loader
	Knowledge     *knowledge.Store
	Conversations *convo.Store
	Turns         *chat.Service
	Pipeline      *ingest.Pipeline

	otelCleanup func()
	dbCleanup   func()
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
