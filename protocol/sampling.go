package protocol

import (
	"encoding/json"
	"fmt"
)

// MethodCreateMessage is the MCP sampling request method.
const MethodCreateMessage = "sampling/createMessage"

// StopReason values the sampling result may carry.
const (
	StopEndTurn   = "endTurn"
	StopMaxTokens = "maxTokens"
	StopToolUse   = "toolUse"
)

// ModelHint names a suggested model or model family.
type ModelHint struct {
	Name string `json:"name"`
}

// ModelPreferences guides client-side model selection for a sampling request.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         float64     `json:"costPriority,omitempty"`
	SpeedPriority        float64     `json:"speedPriority,omitempty"`
	IntelligencePriority float64     `json:"intelligencePriority,omitempty"`
}

// SamplingMessage is one prompt message in a sampling request. Content
// accepts a typed block, a bare string, or an array of blocks.
type SamplingMessage struct {
	Role    string      `json:"role"`
	Content ContentList `json:"content"`
}

// Tool is a tool declaration carried on a tool-bearing sampling request.
// InputSchema passes through verbatim; no schema translation happens here.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// SamplingParams are the params of a sampling/createMessage request.
type SamplingParams struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	MaxTokens        int               `json:"maxTokens,omitempty"`
	Tools            []Tool            `json:"tools,omitempty"`
}

// SamplingRequest is a pending server-initiated completion request, keyed by
// its JSON-RPC id. It lives only for the duration of one round-trip.
type SamplingRequest struct {
	ID       any
	ServerID string
	Params   SamplingParams
}

// HintedModel returns the first model-preference hint, if any. Hints
// override, never merge with, the caller's preferred model.
func (r SamplingRequest) HintedModel() string {
	if r.Params.ModelPreferences == nil {
		return ""
	}
	for _, h := range r.Params.ModelPreferences.Hints {
		if h.Name != "" {
			return h.Name
		}
	}
	return ""
}

// ParseSamplingParams decodes loosely-typed createMessage params. It accepts
// both the enveloped shape {"messages": ...} and raw param objects coming off
// a client library that has already stripped the envelope.
func ParseSamplingParams(raw json.RawMessage) (SamplingParams, error) {
	var params SamplingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return SamplingParams{}, fmt.Errorf("invalid sampling params: %w", err)
	}
	if len(params.Messages) == 0 {
		return SamplingParams{}, fmt.Errorf("invalid sampling params: no messages")
	}
	return params, nil
}

// SamplingResult is the MCP-shaped response to sampling/createMessage.
//
// Content is a single block object for plain-text results and always an
// array of blocks for tool-use results, even when there is exactly one call.
type SamplingResult struct {
	Role       string `json:"role"`
	Content    any    `json:"content"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stopReason,omitempty"`
}

// NewTextResult builds a single-text sampling result.
func NewTextResult(text, model, stopReason string) *SamplingResult {
	return &SamplingResult{
		Role:       "assistant",
		Content:    NewTextBlock(text),
		Model:      model,
		StopReason: stopReason,
	}
}

// NewToolUseResult builds a tool-use sampling result. Content serializes as
// an array regardless of the number of calls.
func NewToolUseResult(blocks []ContentBlock, model string) *SamplingResult {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return &SamplingResult{
		Role:       "assistant",
		Content:    blocks,
		Model:      model,
		StopReason: StopToolUse,
	}
}
