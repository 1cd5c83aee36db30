package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/askdocs/askdocs/db"
	"github.com/askdocs/askdocs/internal/chat"
	"github.com/askdocs/askdocs/internal/chatbot"
	"github.com/askdocs/askdocs/internal/chunk"
	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/convo"
	"github.com/askdocs/askdocs/internal/embed"
	"github.com/askdocs/askdocs/internal/ingest"
	"github.com/askdocs/askdocs/internal/knowledge"
	"github.com/askdocs/askdocs/internal/observability"
	"github.com/askdocs/askdocs/internal/rerank"
	"github.com/askdocs/askdocs/internal/retrieval"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedder = embedder

	gateway, err := embed.New(embedder, logger)
	if err != nil {
		return nil, err
	}

	a.Chatbots = chatbot.NewLoader(pool)

	a.Knowledge, err = knowledge.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}

	a.Conversations, err = convo.NewStore(pool, logger)
	if err != nil {
		return nil, err
	}

	picker, err := rerank.NewPicker(&rerank.GenkitJudge{G: g, ModelName: cfg.RerankModel}, logger)
	if err != nil {
		return nil, err
	}

	synth, err := chat.NewSynthesizer(
		&chat.GenkitCompleter{G: g, ModelName: cfg.AnswerModel},
		logger,
		chat.WithRateLimiter(rate.NewLimiter(rate.Limit(2), 4)),
	)
	if err != nil {
		return nil, err
	}

	a.Turns, err = chat.NewService(
		a.Chatbots,
		gateway,
		retrieval.NewStoreEngine(a.Knowledge),
		picker,
		synth,
		a.Conversations,
		logger,
		chat.WithTopK(cfg.TopK),
	)
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = ingest.NewPipeline(gateway, a.Knowledge, logger,
		ingest.WithConcurrency(cfg.IngestConcurrency),
		ingest.WithChunkOptions(chunk.Options{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// provideOtelShutdown sets up trace export before Genkit initialization
// so the TracerProvider is ready when the first span starts.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if !cfg.Tracing.Enabled() {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	}, logger)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations, then creates a PostgreSQL connection
// pool and verifies it with a ping.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
