// Package chatbot defines the domain types shared by the RAG pipeline:
// the answering mode policy, the chatbot configuration read model, and
// the error taxonomy used across ingestion, retrieval, and synthesis.
package chatbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Mode controls whether a chatbot may answer from general knowledge or
// only from retrieved document context.
type Mode string

const (
	// ModeStrict restricts answers to retrieved document context.
	// With no context the turn short-circuits to a canned refusal.
	ModeStrict Mode = "STRICT"

	// ModeFlexible prefers retrieved context but falls back to the
	// model's general knowledge when context is absent or insufficient.
	ModeFlexible Mode = "FLEXIBLE"
)

// ParseMode validates a raw mode string. An unrecognized value is a
// *ValidationError, never silently defaulted.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModeFlexible:
		return Mode(s), nil
	default:
		return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("must be STRICT or FLEXIBLE, got %q", s)}
	}
}

// Config is the chatbot configuration read model. It is owned and
// mutated by the dashboard; this pipeline only reads it.
type Config struct {
	ID             uuid.UUID
	OwnerID        string
	Name           string
	Mode           Mode
	SystemPrompt   string   // base persona; empty = generic assistant default
	EmbedAllowlist []string // origins allowed to embed the public chat widget
}

// AllowsOrigin reports whether origin may embed this chatbot's public
// widget. An empty allowlist permits any origin.
func (c *Config) AllowsOrigin(origin string) bool {
	if len(c.EmbedAllowlist) == 0 {
		return true
	}
	for _, allowed := range c.EmbedAllowlist {
		if allowed == origin {
			return true
		}
	}
	return false
}

// Loader reads chatbot configuration from PostgreSQL.
//
// Loader is safe for concurrent use by multiple goroutines.
type Loader struct {
	pool *pgxpool.Pool
}

// NewLoader creates a configuration loader backed by the given pool.
func NewLoader(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

// Load fetches the configuration for one chatbot.
// Returns ErrNotFound when no such chatbot exists.
func (l *Loader) Load(ctx context.Context, id uuid.UUID) (*Config, error) {
	var (
		cfg     Config
		rawMode string
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, mode, system_prompt, embed_allowlist
		 FROM chatbots WHERE id = $1`,
		id,
	).Scan(&cfg.ID, &cfg.OwnerID, &cfg.Name, &rawMode, &cfg.SystemPrompt, &cfg.EmbedAllowlist)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chatbot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading chatbot %s: %w", id, err)
	}

	mode, err := ParseMode(rawMode)
	if err != nil {
		// A bad persisted mode is a data integrity problem, not a
		// request problem. Surface it instead of guessing a default.
		return nil, fmt.Errorf("chatbot %s has invalid stored mode: %w", id, err)
	}
	cfg.Mode = mode

	return &cfg, nil
}

// Authorize verifies that principal owns the chatbot. An empty
// principal is denied; public-embed chat traffic carries no principal
// and is authorized against the origin allowlist instead, never
// through this check.
func (c *Config) Authorize(principal string) error {
	if principal != "" && principal == c.OwnerID {
		return nil
	}
	return fmt.Errorf("chatbot %s: %w", c.ID, ErrAccessDenied)
}
