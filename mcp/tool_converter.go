package mcp

import (
	"encoding/json"

	"tether/protocol"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ToOllamaTools converts MCP tools to the Ollama API tool format.
func ToOllamaTools(tools []mcptypes.Tool) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(tools))

	for _, tool := range tools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toOllamaParameters(tool.InputSchema),
			},
		})
	}

	return ollamaTools
}

func toOllamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schema.Type,
		Required:   schema.Required,
		Properties: make(map[string]api.ToolProperty),
	}

	if schema.Defs != nil {
		params.Defs = schema.Defs
	}

	for name, value := range schema.Properties {
		params.Properties[name] = toOllamaProperty(value)
	}

	return params
}

func toOllamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}

	propMap, ok := value.(map[string]any)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			return prop
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return prop
		}
		propMap = m
	}

	// type can be a string or a list of strings
	switch t := propMap["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}

	if desc, ok := propMap["description"].(string); ok {
		prop.Description = desc
	}

	if enumVal, ok := propMap["enum"].([]any); ok {
		prop.Enum = enumVal
	}

	if items, ok := propMap["items"]; ok {
		prop.Items = items
	}

	if anyOf, ok := propMap["anyOf"].([]any); ok {
		props := make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			props = append(props, toOllamaProperty(item))
		}
		prop.AnyOf = props
	}

	return prop
}

// ToOpenAITools converts MCP tools to OpenAI's function-tool format. Both
// sides are JSON Schema; values pass through untranslated.
func ToOpenAITools(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(tools))

	for i, tool := range tools {
		params := openai.FunctionParameters{
			"type":       tool.InputSchema.Type,
			"properties": tool.InputSchema.Properties,
		}

		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}

		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  params,
			},
		)
	}

	return result
}

// ToAnthropicTools converts MCP tools to Anthropic's tool format.
func ToAnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}

		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}

		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)

		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}

	return result
}

// FromProtocolTools converts sampling-request tool declarations into the MCP
// tool type the provider converters consume. Schemas that fail to decode
// contribute an empty object schema rather than dropping the tool.
func FromProtocolTools(tools []protocol.Tool) []mcptypes.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted := mcptypes.Tool{
			Name:        tool.Name,
			Description: tool.Description,
		}

		var schema mcptypes.ToolInputSchema
		if len(tool.InputSchema) > 0 && json.Unmarshal(tool.InputSchema, &schema) == nil {
			converted.InputSchema = schema
		} else {
			converted.InputSchema = mcptypes.ToolInputSchema{Type: "object"}
		}

		result[i] = converted
	}

	return result
}
