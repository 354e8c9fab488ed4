package history

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. Entries are never edited after append.
type Message struct {
	Role          Role            `json:"role"`
	Content       string          `json:"content"`
	TriggerAction string          `json:"trigger_action,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type Conversation struct {
	ID        string    `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	PromptID  int64     `db:"prompt_id" json:"prompt_id"`
	Messages  []Message `db:"-" json:"messages"`
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Key identifies the conversation a message is appended to.
type Key struct {
	ConversationID string
	PromptID       int64
	UserID         int64
}
