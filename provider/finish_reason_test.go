package provider

import (
	"testing"

	"tether/model"
)

// Every provider spelling of a terminal condition must land on one of the
// normalized finish reasons, and unrecognized values must survive verbatim
// so callers can still log what the provider said.
func TestNormalizeOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"stop", model.FinishStop},
		{"", model.FinishStop},
		{"length", model.FinishLength},
		{"tool_calls", model.FinishToolCalls},
		{"function_call", model.FinishToolCalls},
		{"content_filter", "content_filter"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeOpenAIFinishReason(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeAnthropicStopReason(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"end_turn", model.FinishStop},
		{"stop_sequence", model.FinishStop},
		{"", model.FinishStop},
		{"max_tokens", model.FinishLength},
		{"tool_use", model.FinishToolCalls},
		{"refusal", "refusal"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeAnthropicStopReason(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeOllamaDoneReason(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"stop", model.FinishStop},
		{"", model.FinishStop},
		{"length", model.FinishLength},
		{"load", "load"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeOllamaDoneReason(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStripProviderPrefix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"meta-llama/llama-3.2-90b-instruct", "llama-3.2-90b-instruct"},
		{"anthropic/claude-sonnet-4", "claude-sonnet-4"},
		{"no-prefix-model", "no-prefix-model"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := stripProviderPrefix(tt.input); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConvertToolNamesForOpenRouter(t *testing.T) {
	if got := convertToolNameFromOpenRouter("server-filesystem__read_file"); got != "server-filesystem.read_file" {
		t.Errorf("got %q", got)
	}
}
