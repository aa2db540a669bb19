package provider

import (
	"encoding/json"
	"strings"

	"tether/model"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ConvertToOllamaMessages converts tether model.Message to Ollama api.Message.
//
// Conversation-local marker roles (elicitation, notification, model-change)
// are dropped: they exist for session history and the event stream, not for
// the provider. Tool-role messages map to Ollama's "tool" role with the tool
// name attached so the model can pair results with its calls.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleElicitation, model.RoleNotification, model.RoleModelChange:
			continue
		case model.RoleTool:
			result = append(result, api.Message{
				Role:     "tool",
				Content:  msg.Content,
				ToolName: msg.ToolName,
			})
		case model.RoleAssistant:
			result = append(result, api.Message{
				Role:      "assistant",
				Content:   msg.Content,
				Thinking:  msg.Thinking,
				ToolCalls: ConvertFromProviderToolCalls(msg.ToolCalls),
			})
		default:
			result = append(result, api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}
	return result
}

// ConvertToOpenAIMessages converts tether messages to the OpenAI chat format.
//
// Assistant messages that carry tool calls are rebuilt with the original call
// ids and argument strings so the follow-up tool-role messages resolve against
// them. Marker roles are dropped, matching ConvertToOllamaMessages.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case model.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				result = append(result, assistantMessageWithToolCalls(msg))
				continue
			}
			result = append(result, openai.AssistantMessage(msg.Content))
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case model.RoleElicitation, model.RoleNotification, model.RoleModelChange:
			continue
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}

func assistantMessageWithToolCalls(msg model.Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
	for i, call := range msg.ToolCalls {
		calls[i] = openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: toolCallArgumentsJSON(call),
				},
			},
		}
	}

	assistant := &openai.ChatCompletionAssistantMessageParam{
		ToolCalls: calls,
	}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}
}

// toolCallArgumentsJSON returns the argument payload as a JSON string,
// preferring the provider's original raw string when it was preserved.
func toolCallArgumentsJSON(call model.ToolCall) string {
	if call.RawArguments != "" {
		return call.RawArguments
	}
	if call.Arguments == nil {
		return "{}"
	}
	data, err := json.Marshal(call.Arguments)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseToolArguments parses a JSON arguments string into a map.
// Used by OpenAI and OpenRouter providers for tool call parsing.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama api.ToolCall to provider-agnostic
// model.ToolCall.
//
// Ollama does not assign call ids; callers that need per-call correlation
// (the agent loop does) assign ids when the calls are recorded.
//
// Returns nil if the input is nil or empty, maintaining the same nil
// semantics as the Ollama API.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = model.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}

// ConvertFromProviderToolCalls converts provider-agnostic model.ToolCall to
// Ollama api.ToolCall. Used when replaying assistant history to Ollama and by
// tests building fixtures.
//
// Returns nil if the input is nil or empty, maintaining the same nil
// semantics.
func ConvertFromProviderToolCalls(providerCalls []model.ToolCall) []api.ToolCall {
	if len(providerCalls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(providerCalls))
	for i, call := range providerCalls {
		args := call.Arguments
		if args == nil && call.RawArguments != "" {
			args = ParseToolArguments(call.RawArguments)
		}
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: args,
			},
		}
	}
	return result
}

// leakedToolCall matches the JSON shapes models emit when a tool call escapes
// into the text channel instead of the structured tool-call field.
type leakedToolCall struct {
	Name       string         `json:"name"`
	Tool       string         `json:"tool"`
	Arguments  map[string]any `json:"arguments"`
	Parameters map[string]any `json:"parameters"`
}

func (l leakedToolCall) toModel() (model.ToolCall, bool) {
	name := l.Name
	if name == "" {
		name = l.Tool
	}
	if name == "" {
		return model.ToolCall{}, false
	}
	args := l.Arguments
	if args == nil {
		args = l.Parameters
	}
	return model.ToolCall{Name: name, Arguments: args}, true
}

// SalvageToolCalls recovers tool calls that a model leaked into its text
// output as raw JSON. It recognizes a bare object, an array of objects, and
// a fenced ```json code block, each carrying a tool name ("name" or "tool")
// with optional arguments ("arguments" or "parameters").
//
// Returns nil when the content is ordinary prose. Only called as a fallback
// when the provider API reported no structured tool calls.
func SalvageToolCalls(content string) []model.ToolCall {
	candidate := strings.TrimSpace(content)

	// Unwrap a fenced code block if the whole message is one.
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```json")
		candidate = strings.TrimPrefix(candidate, "```")
		candidate = strings.TrimSuffix(strings.TrimSpace(candidate), "```")
		candidate = strings.TrimSpace(candidate)
	}

	switch {
	case strings.HasPrefix(candidate, "{"):
		var leaked leakedToolCall
		if err := json.Unmarshal([]byte(candidate), &leaked); err != nil {
			return nil
		}
		call, ok := leaked.toModel()
		if !ok {
			return nil
		}
		return []model.ToolCall{call}

	case strings.HasPrefix(candidate, "["):
		var leaked []leakedToolCall
		if err := json.Unmarshal([]byte(candidate), &leaked); err != nil {
			return nil
		}
		var calls []model.ToolCall
		for _, l := range leaked {
			if call, ok := l.toModel(); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}

	return nil
}
