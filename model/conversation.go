package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the persistent container for a message history.
//
// The agent loop treats a conversation as an immutable context argument for
// the duration of one invocation; the selected model may change between
// invocations but never mid-loop.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	EnabledServers []string  `json:"enabled_servers,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewConversation creates a conversation with a fresh id.
func NewConversation(title, model string) Conversation {
	now := time.Now()
	return Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
