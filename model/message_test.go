package model

import (
	"strings"
	"testing"
)

func TestNewModelChangeMessage(t *testing.T) {
	msg := NewModelChangeMessage("conv-1", "llama3.2:latest", "qwen3:latest")

	if msg.Role != RoleModelChange {
		t.Errorf("role: got %s, want %s", msg.Role, RoleModelChange)
	}
	if msg.ConversationID != "conv-1" {
		t.Errorf("conversation: got %s", msg.ConversationID)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("expected a fresh id and timestamp")
	}
	if !strings.Contains(msg.Content, "llama3.2:latest") || !strings.Contains(msg.Content, "qwen3:latest") {
		t.Errorf("content should name both models: %q", msg.Content)
	}
}

func TestIsToolCallOnly(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		expected bool
	}{
		{
			name:     "calls without content",
			msg:      Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}},
			expected: true,
		},
		{
			name:     "calls with content",
			msg:      Message{Role: RoleAssistant, Content: "thinking aloud", ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}},
			expected: false,
		},
		{
			name:     "no calls",
			msg:      Message{Role: RoleAssistant},
			expected: false,
		},
		{
			name:     "non-assistant role",
			msg:      Message{Role: RoleTool, ToolCalls: []ToolCall{{ID: "c1", Name: "t"}}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsToolCallOnly(); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
