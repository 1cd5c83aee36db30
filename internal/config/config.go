// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./askdocs.yaml)
//  3. Default values
//
// Error handling uses sentinel errors so callers can check specific
// failures with errors.Is.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTopK indicates the retrieval shortlist size is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidChunking indicates the chunk size/overlap pair is unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidConcurrency indicates the ingest concurrency bound is out of range.
	ErrInvalidConcurrency = errors.New("invalid ingest concurrency")

	// ErrInvalidListenAddr indicates the serve address is empty.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

// DefaultEmbedderModel truncates its output to 768 dimensions via
// OutputDimensionality; the pgvector schema matches.
const DefaultEmbedderModel = "gemini-embedding-001"

// Config stores application configuration.
type Config struct {
	// Model configuration
	AnswerModel   string `mapstructure:"answer_model"`
	RerankModel   string `mapstructure:"rerank_model"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Retrieval tuning
	TopK         int `mapstructure:"top_k"`
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Ingestion
	IngestConcurrency int `mapstructure:"ingest_concurrency"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Serve
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig configures the OTLP trace exporter. Disabled unless an
// endpoint is set.
type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Enabled reports whether traces should be exported.
func (t TracingConfig) Enabled() bool { return t.Endpoint != "" }

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("askdocs")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/askdocs")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("answer_model", "googleai/gemini-2.5-flash")
	v.SetDefault("rerank_model", "googleai/gemini-2.5-flash-lite")
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("top_k", 5)
	v.SetDefault("chunk_size", 1100)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("ingest_concurrency", 3)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "askdocs")
	v.SetDefault("postgres_password", "askdocs_dev_password")
	v.SetDefault("postgres_db_name", "askdocs")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("rate_limit_rps", 10.0)
	v.SetDefault("rate_limit_burst", 20)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", true)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "askdocs")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds runtime overrides explicitly. GEMINI_API_KEY
// is read directly by Genkit, not via Viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("answer_model", "ASKDOCS_ANSWER_MODEL")
	mustBind("rerank_model", "ASKDOCS_RERANK_MODEL")
	mustBind("embedder_model", "ASKDOCS_EMBEDDER_MODEL")
	mustBind("listen_addr", "ASKDOCS_LISTEN_ADDR")
	mustBind("log_level", "ASKDOCS_LOG_LEVEL")
	mustBind("tracing.endpoint", "ASKDOCS_TRACING_ENDPOINT")
}

// Validate fails fast on configuration that would break at runtime.
func (c *Config) Validate() error {
	if c.AnswerModel == "" {
		return fmt.Errorf("%w: answer_model is empty", ErrInvalidModelName)
	}
	if c.RerankModel == "" {
		return fmt.Errorf("%w: rerank_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: %d (want 1-100)", ErrInvalidTopK, c.TopK)
	}
	if c.ChunkSize < 100 {
		return fmt.Errorf("%w: chunk_size %d below 100", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap %d must be in [0, chunk_size)", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.IngestConcurrency < 1 || c.IngestConcurrency > 64 {
		return fmt.Errorf("%w: %d (want 1-64)", ErrInvalidConcurrency, c.IngestConcurrency)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return ErrInvalidPostgresDBName
	}
	if c.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	return nil
}
