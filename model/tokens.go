package model

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// EstimateTokens counts tokens for text using the encoding associated with
// model, falling back to cl100k_base for models tiktoken does not know.
// A zero count plus non-empty text means encoding setup failed entirely; in
// that case a rough length/4 heuristic is returned instead so usage metadata
// is never absent.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return len(text) / 4
	}

	return len(enc.Encode(text, nil, nil))
}

// EstimateUsage approximates usage for an exchange when the provider did not
// report it: prompt tokens from the request history, completion tokens from
// the assistant output.
func EstimateUsage(model string, history []Message, completion string) Usage {
	var prompt strings.Builder
	for _, msg := range history {
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n")
	}

	return Usage{
		PromptTokens:     EstimateTokens(model, prompt.String()),
		CompletionTokens: EstimateTokens(model, completion),
	}
}
