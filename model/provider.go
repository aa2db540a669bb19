package model

import (
	"context"

	"tether/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts LLM provider implementations (Ollama, OpenAI, OpenRouter,
// Anthropic) using provider-agnostic types from tether's model layer.
//
// This interface is defined in the model package (not provider package) to
// avoid import cycles: provider implementations can import model, and model
// can use the Provider interface without importing the provider package.
type Provider interface {
	// Chat sends messages and streams responses back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with available tools and streams responses.
	// Tool calls surface through the callback once they are fully buffered.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// Complete performs a single non-streaming exchange. Used by the sampling
	// bridge where the caller needs the finish reason and the complete tool
	// call batch in one result.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the currently selected model name.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamCallback is called for each chunk of a streamed response. Exactly one
// of chunk, thinking, or toolCalls is populated per call. Returning an error
// stops stream consumption.
type StreamCallback func(chunk string, thinking string, toolCalls []ToolCall) error

// CompletionRequest describes a single non-streaming provider exchange.
type CompletionRequest struct {
	Model      string
	Messages   []Message
	Tools      []mcptypes.Tool
	ToolChoice string
	MaxTokens  int
}

// Finish reasons normalized across providers.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// CompletionResult is the outcome of a non-streaming exchange. FinishReason
// holds one of the normalized Finish* values; unrecognized provider values
// pass through verbatim for the caller to map.
type CompletionResult struct {
	Content      string
	Thinking     string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	Usage        *Usage
}
