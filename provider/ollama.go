package provider

import (
	"context"
	"fmt"

	"tether/mcp"
	"tether/model"
	"tether/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

// OllamaProvider wraps the ollama.Client to implement the Provider interface.
//
// This provider handles all type conversions between tether's
// provider-agnostic types and Ollama's API types: model.Message to
// api.Message, mcptypes.Tool to api.Tool, and api.ToolCall back to
// model.ToolCall.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: The Ollama server URL (e.g., "http://localhost:11434").
//     If empty, defaults to "http://localhost:11434".
//   - model: The model name to use (e.g., "llama3.1:latest").
//     If empty, defaults to "llama3.1:latest".
//
// Returns an error if the baseURL is invalid.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with type conversions.
//
// The response streams back through the callback, which receives text chunks,
// thinking deltas for models that emit a reasoning trace, and any tool calls
// requested by the model, converted to provider-agnostic form.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	ollamaMessages := ConvertToOllamaMessages(messages)

	var ollamaTools []api.Tool
	if len(tools) > 0 {
		ollamaTools = mcp.ToOllamaTools(tools)
	}

	ollamaCallback := func(chunk string, thinking string, ollamaCalls []api.ToolCall) error {
		if callback == nil {
			return nil
		}
		return callback(chunk, thinking, ConvertToProviderToolCalls(ollamaCalls))
	}

	return p.client.ChatWithTools(ctx, ollamaMessages, ollamaTools, ollamaCallback)
}

// Complete implements Provider.Complete with a single non-streaming request.
// A hinted model rides on the request itself rather than mutating the shared
// client, so a concurrent streaming call keeps its own model.
func (p *OllamaProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.client.GetModel()
	}

	var ollamaTools []api.Tool
	if len(req.Tools) > 0 {
		ollamaTools = mcp.ToOllamaTools(req.Tools)
	}

	resp, err := p.client.Complete(ctx, modelName, ConvertToOllamaMessages(req.Messages), ollamaTools)
	if err != nil {
		return nil, err
	}

	result := &model.CompletionResult{
		Content:      resp.Content,
		Thinking:     resp.Thinking,
		ToolCalls:    ConvertToProviderToolCalls(resp.ToolCalls),
		FinishReason: normalizeOllamaDoneReason(resp.DoneReason),
		Model:        modelName,
		Usage: &model.Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
		},
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = model.FinishToolCalls
	}

	return result, nil
}

// normalizeOllamaDoneReason maps Ollama's done_reason values onto the
// normalized finish reasons.
func normalizeOllamaDoneReason(reason string) string {
	switch reason {
	case "stop", "":
		return model.FinishStop
	case "length":
		return model.FinishLength
	default:
		return reason
	}
}

// ListModels implements Provider.ListModels (direct passthrough).
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

// GetModel implements Provider.GetModel (direct passthrough).
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// SetModel implements Provider.SetModel (direct passthrough).
func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Ping implements Provider.Ping (direct passthrough).
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
