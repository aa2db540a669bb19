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

// OpenRouterProvider implements the Provider interface using OpenAI's official
// Go SDK. It connects to OpenRouter's API which is OpenAI-compatible.
type OpenRouterProvider struct {
	client  openai.Client
	model   string
	baseURL string
	apiKey  string
}

// NewOpenRouterProvider creates a new OpenRouter provider instance.
//
// Parameters:
//   - baseURL: OpenRouter API base URL ("https://openrouter.ai/api/v1")
//   - apiKey: OpenRouter API key
//   - model: Initial model to use (can be changed with SetModel)
//
// Returns an error if the API key is missing.
func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = "meta-llama/llama-3.2-90b-instruct"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenRouterProvider{
		client:  client,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// shouldSkipToolInstructions checks if a model BREAKS with explicit tool
// instructions. Most models work well with instructions, but some understand
// tools natively and get confused by explicit prompting, leaking calls into
// the text channel.
func shouldSkipToolInstructions(modelName string) bool {
	modelLower := strings.ToLower(modelName)

	skipInstructions := []string{
		"qwen", // leaks with instructions, works natively without them
	}

	for _, prefix := range skipInstructions {
		if strings.Contains(modelLower, prefix) {
			return true
		}
	}

	return false
}

// convertToolNamesForOpenRouter converts tool names from dotted notation to
// underscore notation. OpenRouter requires names matching ^[a-zA-Z0-9_-]{1,64}$
// (no dots). Example: "server-filesystem.read_file" → "server-filesystem__read_file"
func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = strings.ReplaceAll(tool.Name, ".", "__")
	}
	return converted
}

// convertToolNameFromOpenRouter reverses convertToolNamesForOpenRouter.
func convertToolNameFromOpenRouter(toolName string) string {
	return strings.ReplaceAll(toolName, "__", ".")
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *OpenRouterProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	messagesWithInstructions := messages
	if len(tools) > 0 && !shouldSkipToolInstructions(p.model) {
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
		params.Tools = mcp.ToOpenAITools(convertToolNamesForOpenRouter(tools))
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
		return fmt.Errorf("OpenRouter streaming error: %w", err)
	}

	if callback == nil {
		return nil
	}

	if calls := accumulatedToolCalls(acc); len(calls) > 0 {
		for i := range calls {
			calls[i].Name = convertToolNameFromOpenRouter(calls[i].Name)
		}
		return callback("", "", calls)
	}

	if leaked := SalvageToolCalls(contentBuilder.String()); len(leaked) > 0 {
		for i := range leaked {
			leaked[i].Name = convertToolNameFromOpenRouter(leaked[i].Name)
		}
		return callback("", "", leaked)
	}

	return nil
}

// Complete implements Provider.Complete with a single non-streaming request.
func (p *OpenRouterProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	if len(req.Tools) > 0 {
		req.Tools = convertToolNamesForOpenRouter(req.Tools)
	}

	result, err := openAICompatibleComplete(ctx, &p.client, p.model, "OpenRouter", req)
	if err != nil {
		return nil, err
	}

	for i := range result.ToolCalls {
		result.ToolCalls[i].Name = convertToolNameFromOpenRouter(result.ToolCalls[i].Name)
	}
	return result, nil
}

// ListModels implements Provider.ListModels with prefix stripping.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}

	result := make([]ollama.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, ollama.ModelInfo{
			Name:         stripProviderPrefix(m.ID), // display: "llama-3.2-90b-instruct"
			InternalName: m.ID,                      // API: "meta-llama/llama-3.2-90b-instruct"
			Size:         0,
			Provider:     "openrouter",
		})
	}

	return result, nil
}

// GetModel implements Provider.GetModel.
// Returns the full model name with vendor prefix for API calls.
func (p *OpenRouterProvider) GetModel() string {
	return p.model
}

// SetModel implements Provider.SetModel.
func (p *OpenRouterProvider) SetModel(model string) {
	p.model = model
}

// Ping implements Provider.Ping by attempting to list models.
func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

// stripProviderPrefix removes vendor prefixes from OpenRouter model names.
// "meta-llama/llama-3.2-90b-instruct" → "llama-3.2-90b-instruct"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
