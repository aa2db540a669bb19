package mcp

import (
	"encoding/json"
	"testing"

	"tether/protocol"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

func TestToOllamaTools(t *testing.T) {
	tests := []struct {
		name     string
		input    []mcptypes.Tool
		validate func(t *testing.T, result []api.Tool)
	}{
		{
			name:  "empty tools",
			input: []mcptypes.Tool{},
			validate: func(t *testing.T, result []api.Tool) {
				if len(result) != 0 {
					t.Errorf("expected empty slice, got %d tools", len(result))
				}
			},
		},
		{
			name: "simple tool",
			input: []mcptypes.Tool{
				{
					Name:        "get_weather",
					Description: "Get current weather",
					InputSchema: mcptypes.ToolInputSchema{
						Type:       "object",
						Properties: map[string]any{},
					},
				},
			},
			validate: func(t *testing.T, result []api.Tool) {
				if result[0].Type != "function" {
					t.Errorf("expected type 'function', got %q", result[0].Type)
				}
				if result[0].Function.Name != "get_weather" {
					t.Errorf("expected name 'get_weather', got %q", result[0].Function.Name)
				}
			},
		},
		{
			name: "tool with typed properties and enum",
			input: []mcptypes.Tool{
				{
					Name: "calculate",
					InputSchema: mcptypes.ToolInputSchema{
						Type: "object",
						Properties: map[string]any{
							"operation": map[string]any{
								"type":        "string",
								"description": "The operation to perform",
								"enum":        []any{"add", "subtract"},
							},
							"a": map[string]any{"type": "number"},
						},
						Required: []string{"operation", "a"},
					},
				},
			},
			validate: func(t *testing.T, result []api.Tool) {
				params := result[0].Function.Parameters
				if len(params.Required) != 2 {
					t.Errorf("required not carried over: %v", params.Required)
				}
				op := params.Properties["operation"]
				if len(op.Type) != 1 || op.Type[0] != "string" {
					t.Errorf("unexpected property type %v", op.Type)
				}
				if len(op.Enum) != 2 {
					t.Errorf("enum not carried over: %v", op.Enum)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, ToOllamaTools(tt.input))
		})
	}
}

func TestToOpenAIToolsSchemaPassthrough(t *testing.T) {
	tools := []mcptypes.Tool{
		{
			Name:        "search",
			Description: "Search the web",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"query": map[string]any{"type": "string"},
				},
				Required: []string{"query"},
			},
		},
	}

	result := ToOpenAITools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}

	if ToOpenAITools(nil) != nil {
		t.Error("nil input should produce nil output")
	}
}

func TestToAnthropicTools(t *testing.T) {
	tools := []mcptypes.Tool{
		{
			Name:        "search",
			Description: "Search the web",
			InputSchema: mcptypes.ToolInputSchema{
				Type:     "object",
				Required: []string{"query"},
			},
		},
	}

	result := ToAnthropicTools(tools)
	if len(result) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(result))
	}
	if result[0].OfTool.Name != "search" {
		t.Errorf("unexpected name %q", result[0].OfTool.Name)
	}
}

func TestFromProtocolTools(t *testing.T) {
	tools := []protocol.Tool{
		{
			Name:        "lookup",
			Description: "Look things up",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`),
		},
		{
			Name:        "bare",
			InputSchema: json.RawMessage(`not a schema`),
		},
	}

	result := FromProtocolTools(tools)
	if len(result) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result))
	}

	if result[0].InputSchema.Type != "object" || len(result[0].InputSchema.Required) != 1 {
		t.Errorf("schema not decoded: %+v", result[0].InputSchema)
	}

	// A bad schema degrades to an empty object schema, not a dropped tool.
	if result[1].InputSchema.Type != "object" {
		t.Errorf("fallback schema missing: %+v", result[1].InputSchema)
	}
}
