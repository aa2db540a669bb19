package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildToolInstructions creates a system prompt nudging the model to call
// tools through the structured tool-call channel. Shared by the OpenAI and
// OpenRouter providers; Ollama and Anthropic handle tools natively without
// extra prompting.
func buildToolInstructions(tools []mcptypes.Tool) string {
	toolNames := []string{}
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When the user asks you to do something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Execute the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Emit tool calls as JSON in your text response",
	}, "\n")
}
