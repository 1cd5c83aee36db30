package convo

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a message with its author. The set is closed; anything else
// is rejected at the persistence boundary rather than trusted on read.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one persisted entry in a conversation's append-only log.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	Seq            int
	CreatedAt      time.Time
}

// Conversation is an ordered, append-only log of user/assistant turn
// pairs owned by one principal. The pipeline only ever appends pairs;
// it never reorders or deletes individual messages.
type Conversation struct {
	ID           uuid.UUID
	ChatbotID    uuid.UUID
	OwnerID      string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TitleMaxLength caps the derived conversation title, taken from the
// first user message.
const TitleMaxLength = 50
