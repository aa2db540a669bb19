package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"tether/mcp"
	"tether/model"
	"tether/ollama"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// AnthropicProvider implements the Provider interface using Anthropic's
// official API. It uses the official Anthropic Go SDK for direct Claude
// API access.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
	apiKey  string
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: Initial model to use (default: "claude-sonnet-4-5-20250929")
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	var anthropicModel anthropic.Model
	if model == "" {
		anthropicModel = anthropic.ModelClaudeSonnet4_5_20250929
	} else {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client, // convert value to pointer
		model:   anthropicModel,
		baseURL: baseURL,
		apiKey:  apiKey,
	}, nil
}

// Chat implements Provider.Chat by delegating to ChatWithTools with no tools.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools implements Provider.ChatWithTools with streaming support.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  anthropicMessages,
		MaxTokens: 4096, // required by Anthropic API
	}
	if len(systemPrompt) > 0 {
		params.System = systemPrompt
	}
	if len(tools) > 0 {
		params.Tools = mcp.ToAnthropicTools(tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()

		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if callback != nil {
					if err := callback(deltaVariant.Text, "", nil); err != nil {
						return err
					}
				}
			case anthropic.ThinkingDelta:
				if callback != nil {
					if err := callback("", deltaVariant.Thinking, nil); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	// Tool use blocks only become complete once the stream ends.
	if callback != nil {
		if toolCalls := extractToolCalls(msg.Content); len(toolCalls) > 0 {
			return callback("", "", toolCalls)
		}
	}

	return nil
}

// Complete implements Provider.Complete with a single non-streaming request.
func (p *AnthropicProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	chatModel := p.model
	if req.Model != "" {
		chatModel = anthropic.Model(req.Model)
	}

	anthropicMessages, systemPrompt := convertToAnthropicMessages(req.Messages)

	maxTokens := int64(4096)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     chatModel,
		Messages:  anthropicMessages,
		MaxTokens: maxTokens,
	}
	if len(systemPrompt) > 0 {
		params.System = systemPrompt
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ToAnthropicTools(req.Tools)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Anthropic completion error: %w", err)
	}

	result := &model.CompletionResult{
		FinishReason: normalizeAnthropicStopReason(string(msg.StopReason)),
		Model:        string(msg.Model),
		Usage: &model.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch blockVariant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += blockVariant.Text
		case anthropic.ThinkingBlock:
			result.Thinking += blockVariant.Thinking
		}
	}
	result.ToolCalls = extractToolCalls(msg.Content)
	if len(result.ToolCalls) > 0 {
		result.FinishReason = model.FinishToolCalls
	}

	return result, nil
}

// normalizeAnthropicStopReason maps Anthropic stop reasons onto the
// normalized finish reasons shared across providers.
func normalizeAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence", "":
		return model.FinishStop
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		return reason
	}
}

// ListModels implements Provider.ListModels.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	// Anthropic doesn't have a models list API, so we return a curated list
	// of known Claude models as of the SDK version we're using.
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5_20250929,
		anthropic.ModelClaude3_5Haiku20241022,
		anthropic.ModelClaude_3_Opus_20240229,
		anthropic.ModelClaude_3_Haiku_20240307,
	}

	result := make([]ollama.ModelInfo, 0, len(models))
	for _, m := range models {
		modelStr := string(m)
		result = append(result, ollama.ModelInfo{
			Name:         modelStr,
			InternalName: modelStr,
			Size:         0,
			Provider:     "anthropic",
		})
	}

	return result, nil
}

// GetModel implements Provider.GetModel.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// SetModel implements Provider.SetModel.
func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements Provider.Ping by making a minimal request. Anthropic has no
// ping or health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}

// convertToAnthropicMessages converts tether messages to Anthropic format.
// Returns the message array and any system prompt found. Marker roles are
// dropped, matching the other providers' conversions.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			// Anthropic uses a separate system parameter, not the messages array.
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{
				Text: msg.Content,
			})

		case model.RoleUser:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)

		case model.RoleAssistant:
			content := msg.Content
			if content == "" && len(msg.ToolCalls) > 0 {
				content = describeToolCalls(msg.ToolCalls)
			}
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)),
			)

		case model.RoleTool:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(
					fmt.Sprintf("Result of %s: %s", msg.ToolName, msg.Content),
				)),
			)

		case model.RoleElicitation, model.RoleNotification, model.RoleModelChange:
			continue

		default:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	return anthropicMsgs, systemBlocks
}

// describeToolCalls renders a tool-call-only assistant turn as text. The
// Anthropic API rejects empty text blocks, and the replayed history only
// needs to convey which calls were made.
func describeToolCalls(calls []model.ToolCall) string {
	desc := "Calling tools:"
	for _, call := range calls {
		desc += " " + call.Name
	}
	return desc
}

// extractToolCalls extracts tool calls from Anthropic message content.
func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCall {
	var toolCalls []model.ToolCall

	for _, block := range content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			var args map[string]any
			raw := string(toolUse.Input)
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				args = nil
			}

			toolCalls = append(toolCalls, model.ToolCall{
				ID:           toolUse.ID,
				Name:         toolUse.Name,
				Arguments:    args,
				RawArguments: raw,
			})
		}
	}

	return toolCalls
}
