package agent

import (
	"context"
	"encoding/json"

	"tether/mcp"
	"tether/model"
	"tether/protocol"

	"go.uber.org/zap"
)

// DefaultSamplingMaxRounds caps provider round-trips inside one sampling
// exchange. The cap is an implementation constant, not a protocol
// requirement, so it stays configurable.
const DefaultSamplingMaxRounds = 10

// ApprovalFunc is the human-in-the-loop gate for sampling requests. It may
// block on user input; returning false rejects the request.
type ApprovalFunc func(ctx context.Context, req protocol.SamplingRequest) (bool, error)

// Bridge services MCP sampling/createMessage requests: it converts the
// server's prompt into a completion-provider call, runs a bounded inner
// tool-use loop, and converts the outcome back into MCP's content-block
// shape.
type Bridge struct {
	provider  model.Provider
	executor  ToolExecutor
	approve   ApprovalFunc
	bus       *Bus
	logger    *zap.Logger
	maxRounds int
}

// BridgeOption customizes bridge construction.
type BridgeOption func(*Bridge)

// WithSamplingMaxRounds overrides the inner tool-loop cap.
func WithSamplingMaxRounds(n int) BridgeOption {
	return func(b *Bridge) {
		if n > 0 {
			b.maxRounds = n
		}
	}
}

// WithApproval installs the human-in-the-loop gate. Without one, requests
// are auto-approved.
func WithApproval(fn ApprovalFunc) BridgeOption {
	return func(b *Bridge) {
		b.approve = fn
	}
}

// WithToolExecutor lets the bridge execute tool calls itself between rounds.
// Without one, the first tool-call batch is surfaced to the calling server
// as tool_use content blocks instead.
func WithToolExecutor(executor ToolExecutor) BridgeOption {
	return func(b *Bridge) {
		b.executor = executor
	}
}

// NewBridge creates a sampling bridge over p.
func NewBridge(p model.Provider, bus *Bus, logger *zap.Logger, opts ...BridgeOption) *Bridge {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		provider:  p,
		bus:       bus,
		logger:    logger,
		maxRounds: DefaultSamplingMaxRounds,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ProcessSamplingRequest services one server-initiated completion request.
//
// Model selection: a modelPreferences hint overrides preferredModel, which
// overrides the provider's current model. Overrides never merge.
//
// A rejected approval fails the request with ErrSamplingRejected so the MCP
// error the server sees identifies user rejection.
func (b *Bridge) ProcessSamplingRequest(ctx context.Context, req protocol.SamplingRequest, preferredModel string) (*protocol.SamplingResult, error) {
	b.bus.Publish(Event{Type: EventSamplingRequestReceived, Sampling: &req, ServerID: req.ServerID})

	if b.approve != nil {
		ok, err := b.approve(ctx, req)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSamplingRejected
		}
	}

	chatModel := req.HintedModel()
	if chatModel == "" {
		chatModel = preferredModel
	}

	messages := convertSamplingMessages(req.Params)
	tools := mcp.FromProtocolTools(req.Params.Tools)

	var lastCalls []model.ToolCall
	var lastModel string

	for round := 1; round <= b.maxRounds; round++ {
		result, err := b.provider.Complete(ctx, model.CompletionRequest{
			Model:     chatModel,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: req.Params.MaxTokens,
		})
		if err != nil {
			return nil, NewCompletionError(err)
		}

		if len(result.ToolCalls) == 0 {
			return protocol.NewTextResult(result.Content, result.Model, MapFinishReason(result.FinishReason)), nil
		}

		lastCalls = result.ToolCalls
		lastModel = result.Model

		// Without an executor the calls go back to the requesting server as
		// tool_use blocks; the server executes them and follows up with
		// tool_result blocks in a fresh request.
		if b.executor == nil || round == b.maxRounds {
			break
		}

		assistant := model.Message{
			Role:      model.RoleAssistant,
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		}
		messages = append(messages, assistant)

		for _, call := range result.ToolCalls {
			outcome := b.executor.Execute(ctx, call)
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Content:    outcome.Content,
				ToolCallID: call.ID,
				ToolName:   outcome.ToolName,
			})
		}
	}

	if b.executor != nil {
		b.logger.Warn("sampling tool loop cap reached",
			zap.String("server", req.ServerID),
			zap.Int("rounds", b.maxRounds))
	}
	return protocol.NewToolUseResult(toolUseBlocks(lastCalls), lastModel), nil
}

// MapFinishReason maps normalized provider finish reasons onto MCP stop
// reasons. The mapping is total: anything unrecognized, including empty,
// becomes endTurn.
func MapFinishReason(reason string) string {
	switch reason {
	case model.FinishStop:
		return protocol.StopEndTurn
	case model.FinishLength:
		return protocol.StopMaxTokens
	case model.FinishToolCalls:
		return protocol.StopToolUse
	default:
		return protocol.StopEndTurn
	}
}

// convertSamplingMessages maps MCP sampling messages onto provider chat
// messages. Only text content is forwarded; image and audio blocks in the
// input are dropped. tool_use and tool_result blocks from a follow-up
// request reconstruct the assistant turn and its results so the inner loop
// can continue.
func convertSamplingMessages(params protocol.SamplingParams) []model.Message {
	var messages []model.Message

	if params.SystemPrompt != "" {
		messages = append(messages, model.Message{
			Role:    model.RoleSystem,
			Content: params.SystemPrompt,
		})
	}

	for _, sm := range params.Messages {
		var text string
		var calls []model.ToolCall

		for _, block := range sm.Content.Known() {
			switch block.Type {
			case protocol.ContentText:
				text += block.Text
			case protocol.ContentToolUse:
				calls = append(calls, model.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: block.Input,
				})
			case protocol.ContentToolResult:
				messages = append(messages, model.Message{
					Role:       model.RoleTool,
					Content:    block.Content.JoinText(),
					ToolCallID: block.ToolUseID,
				})
			}
		}

		if text != "" || len(calls) > 0 {
			messages = append(messages, model.Message{
				Role:      model.Role(sm.Role),
				Content:   text,
				ToolCalls: calls,
			})
		}
	}

	return messages
}

// toolUseBlocks converts provider tool calls into MCP tool_use content
// blocks.
func toolUseBlocks(calls []model.ToolCall) []protocol.ContentBlock {
	blocks := make([]protocol.ContentBlock, 0, len(calls))
	for _, call := range calls {
		input := call.Arguments
		if input == nil && call.RawArguments != "" {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(call.RawArguments), &parsed); err == nil {
				input = parsed
			}
		}
		blocks = append(blocks, protocol.NewToolUseBlock(call.ID, call.Name, input))
	}
	return blocks
}
