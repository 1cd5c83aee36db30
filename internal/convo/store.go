// Package convo persists conversations as append-only logs of
// user/assistant message pairs in PostgreSQL.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askdocs/askdocs/internal/chatbot"
)

// Store manages conversation persistence.
//
// Store is safe for concurrent use by multiple goroutines. Appends to
// the same conversation are serialized with a row lock so sequence
// numbers never collide.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Append records one user/assistant turn pair.
//
// With conversationID == uuid.Nil a new conversation is created, owned
// by ownerID and titled from the first user message. Otherwise the pair
// is appended to the existing conversation, which must belong to
// ownerID (chatbot.ErrAccessDenied if not, chatbot.ErrNotFound if it
// does not exist). Returns the conversation id either way.
func (s *Store) Append(ctx context.Context, conversationID, chatbotID uuid.UUID, ownerID, userText, assistantText string) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var maxSeq int
	if conversationID == uuid.Nil {
		conversationID, err = s.create(ctx, tx, chatbotID, ownerID, userText)
		if err != nil {
			return uuid.Nil, err
		}
	} else {
		maxSeq, err = s.lockAndVerify(ctx, tx, conversationID, ownerID)
		if err != nil {
			return uuid.Nil, err
		}
	}

	pair := []struct {
		role Role
		text string
	}{
		{RoleUser, userText},
		{RoleAssistant, assistantText},
	}
	for i, m := range pair {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_messages (conversation_id, role, content, seq)
			 VALUES ($1, $2, $3, $4)`,
			conversationID, string(m.role), m.text, maxSeq+i+1,
		); err != nil {
			return uuid.Nil, fmt.Errorf("inserting %s message: %w", m.role, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations
		 SET message_count = $1, updated_at = now()
		 WHERE id = $2`,
		maxSeq+len(pair), conversationID,
	); err != nil {
		return uuid.Nil, fmt.Errorf("updating conversation metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended turn pair", "conversation_id", conversationID, "seq", maxSeq+2)
	return conversationID, nil
}

// create inserts a new conversation titled from the first user message.
func (s *Store) create(ctx context.Context, tx pgx.Tx, chatbotID uuid.UUID, ownerID, firstUserText string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx,
		`INSERT INTO conversations (chatbot_id, owner_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		chatbotID, ownerID, DeriveTitle(firstUserText),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating conversation: %w", err)
	}
	return id, nil
}

// lockAndVerify locks the conversation row against concurrent appends,
// checks ownership, and returns the current max sequence number.
func (s *Store) lockAndVerify(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID, ownerID string) (int, error) {
	var storedOwner string
	err := tx.QueryRow(ctx,
		`SELECT owner_id FROM conversations WHERE id = $1 FOR UPDATE`,
		conversationID,
	).Scan(&storedOwner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("conversation %s: %w", conversationID, chatbot.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("locking conversation: %w", err)
	}
	if storedOwner != ownerID {
		return 0, fmt.Errorf("conversation %s: %w", conversationID, chatbot.ErrAccessDenied)
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM conversation_messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("reading max sequence: %w", err)
	}
	return maxSeq, nil
}

// Get returns one conversation, ownership-scoped.
func (s *Store) Get(ctx context.Context, conversationID uuid.UUID, ownerID string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, chatbot_id, owner_id, title, message_count, created_at, updated_at
		 FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&c.ID, &c.ChatbotID, &c.OwnerID, &c.Title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, chatbot.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if c.OwnerID != ownerID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, chatbot.ErrAccessDenied)
	}
	return &c, nil
}

// Messages returns a conversation's log in append order. Rows with an
// unrecognized role are filtered out with a warning instead of being
// passed through as untyped data.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID, ownerID string) ([]Message, error) {
	if _, err := s.Get(ctx, conversationID, ownerID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, seq, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1
		 ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m       Message
			rawRole string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &rawRole, &m.Content, &m.Seq, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = Role(rawRole)
		if !m.Role.Valid() {
			s.logger.Warn("filtering message with unrecognized role",
				"message_id", m.ID, "role", rawRole)
			continue
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}

// DeriveTitle builds a conversation title from the first user message:
// the first TitleMaxLength runes, single-line, ellipsized when longer.
func DeriveTitle(firstUserText string) string {
	title := strings.Join(strings.Fields(firstUserText), " ")
	runes := []rune(title)
	if len(runes) > TitleMaxLength {
		return string(runes[:TitleMaxLength-3]) + "..."
	}
	if title == "" {
		return "New conversation"
	}
	return title
}
