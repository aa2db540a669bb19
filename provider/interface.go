// Package provider implements the LLM provider backends (Ollama, OpenAI,
// OpenRouter, Anthropic) behind the model.Provider interface.
//
// The interface itself lives in the model package to avoid import cycles;
// this package supplies the implementations plus all type conversions
// between tether's provider-agnostic types and each vendor SDK.
//
// Two call shapes exist:
//   - streaming ChatWithTools, used by the agent loop, which folds deltas
//     into an in-progress assistant message and surfaces tool-call batches
//     once fully buffered
//   - non-streaming Complete, used by the sampling bridge, which needs the
//     finish reason and the whole tool-call batch in one result
//
// Finish reasons are normalized to model.FinishStop / FinishLength /
// FinishToolCalls at this layer so callers never see vendor spellings.
package provider

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}

// StatusCode extracts the HTTP status from a vendor SDK error, or 0 when
// err carries none. Callers use this to keep conditions like a 402
// payment-required distinguishable from generic failures.
func StatusCode(err error) int {
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	return 0
}
