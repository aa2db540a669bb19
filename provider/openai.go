package provider

import (
	"context"
	"fmt"
	"strings"

	"tether/mcp"
	"tether/model"
	"tether/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements the Provider interface using OpenAI's official API.
// It uses the official OpenAI Go SDK for direct OpenAI API access.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	messagesWithInstructions := messages
	if len(tools) > 0 {
		toolInstruction := model.Message{
			Role:    model.RoleSystem,
			Content: buildToolInstructions(tools),
		}
		messagesWithInstructions = append([]model.Message{toolInstruction}, messages...)
	}

	openaiMessages := ConvertToOpenAIMessages(messagesWithInstructions)

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToOpenAITools(tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	var contentBuilder strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content := chunk.Choices[0].Delta.Content
			contentBuilder.WriteString(content)
			if callback != nil {
				if err := callback(content, "", nil); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	if callback == nil {
		return nil
	}

	// Tool calls are read from the accumulated message after the stream ends
	// so each call keeps its API-assigned id.
	if calls := accumulatedToolCalls(acc); len(calls) > 0 {
		return callback("", "", calls)
	}

	// Fallback: some models leak the call into the text channel as JSON.
	if leaked := SalvageToolCalls(contentBuilder.String()); len(leaked) > 0 {
		return callback("", "", leaked)
	}

	return nil
}

// accumulatedToolCalls extracts the full tool call batch from a completed
// stream accumulator, parsing each argument string and keeping the raw form.
func accumulatedToolCalls(acc openai.ChatCompletionAccumulator) []model.ToolCall {
	if len(acc.Choices) == 0 {
		return nil
	}

	var calls []model.ToolCall
	for _, tc := range acc.Choices[0].Message.ToolCalls {
		calls = append(calls, model.ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			Arguments:    ParseToolArguments(tc.Function.Arguments),
			RawArguments: tc.Function.Arguments,
		})
	}
	return calls
}

// Complete implements Provider.Complete with a single non-streaming request.
func (p *OpenAIProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	return openAICompatibleComplete(ctx, &p.client, p.model, "OpenAI", req)
}

// openAICompatibleComplete runs a non-streaming chat completion against any
// OpenAI-compatible endpoint. Shared by the OpenAI and OpenRouter providers.
func openAICompatibleComplete(ctx context.Context, client *openai.Client, defaultModel, label string, req model.CompletionRequest) (*model.CompletionResult, error) {
	chatModel := defaultModel
	if req.Model != "" {
		chatModel = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(req.Messages),
		Model:    openai.ChatModel(chatModel),
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ToOpenAITools(req.Tools)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s completion error: %w", label, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s completion returned no choices", label)
	}

	choice := completion.Choices[0]
	result := &model.CompletionResult{
		Content:      choice.Message.Content,
		FinishReason: normalizeOpenAIFinishReason(choice.FinishReason),
		Model:        completion.Model,
		Usage: &model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, model.ToolCall{
			ID:           tc.ID,
			Name:         tc.Function.Name,
			Arguments:    ParseToolArguments(tc.Function.Arguments),
			RawArguments: tc.Function.Arguments,
		})
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = model.FinishToolCalls
	}

	return result, nil
}

// normalizeOpenAIFinishReason maps the API's finish_reason values onto the
// normalized set. OpenAI already uses "stop"/"length"/"tool_calls"; anything
// else passes through verbatim.
func normalizeOpenAIFinishReason(reason string) string {
	switch reason {
	case "stop", "":
		return model.FinishStop
	case "length":
		return model.FinishLength
	case "tool_calls", "function_call":
		return model.FinishToolCalls
	default:
		return reason
	}
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Size:         0, // OpenAI doesn't provide size info
			Provider:     "openai",
		})
	}

	return result, nil
}

// GetModel implements Provider.GetModel.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}
