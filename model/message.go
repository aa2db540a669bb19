package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser         Role = "user"
	RoleAssistant    Role = "assistant"
	RoleTool         Role = "tool"
	RoleSystem       Role = "system"
	RoleElicitation  Role = "elicitation"
	RoleNotification Role = "notification"
	RoleModelChange  Role = "model-change"
)

// ToolCall is a provider-agnostic tool invocation request.
//
// Arguments holds the parsed form when the provider delivered valid JSON.
// RawArguments preserves the provider's original argument string so that a
// malformed payload can still be reported verbatim instead of being lost.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments,omitempty"`
}

// Attachment is a base64-encoded binary payload carried on a message.
type Attachment struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// Usage records token accounting for a single provider exchange.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Message is one entry in a conversation's history.
//
// Tool-role messages link back to the assistant turn that requested them via
// ToolCallID; the agent loop guarantees that every ToolCallID matches exactly
// one call emitted by a preceding assistant message in the same turn.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Thinking       string       `json:"thinking,omitempty"`
	ToolCalls      []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID     string       `json:"tool_call_id,omitempty"`
	ToolName       string       `json:"tool_name,omitempty"`
	Images         []Attachment `json:"images,omitempty"`
	Audio          []Attachment `json:"audio,omitempty"`
	Usage          *Usage       `json:"usage,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current time.
func NewMessage(conversationID string, role Role, content string) Message {
	return Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
	}
}

// NewModelChangeMessage records a mid-conversation model switch. The marker
// stays in history for rendering but is filtered out of provider payloads.
func NewModelChangeMessage(conversationID, from, to string) Message {
	return NewMessage(conversationID, RoleModelChange, fmt.Sprintf("model changed from %s to %s", from, to))
}

// IsToolCallOnly reports whether this assistant message carries tool calls
// and no text content.
func (m Message) IsToolCallOnly() bool {
	return m.Role == RoleAssistant && m.Content == "" && len(m.ToolCalls) > 0
}
